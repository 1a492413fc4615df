package wallet

import (
	"context"
	"crypto/ecdsa"

	"github.com/tessera-cash/wallet-sdk/types"
)

const (
	SingleKeyWallet = "singlekey"
)

// WalletService owns the account's P-256 signing keys. Keys are encrypted at
// rest and signing is only possible while the wallet is unlocked.
type WalletService interface {
	GetType() string
	Create(ctx context.Context, password string) (address string, err error)
	Unlock(ctx context.Context, password string) (alreadyUnlocked bool, err error)
	Lock(ctx context.Context) error
	IsLocked() bool
	GetAddresses(ctx context.Context) ([]string, error)
	SignHash(ctx context.Context, address string, hash []byte) (types.InputSignature, error)
	PublicKey(ctx context.Context, address string) (*ecdsa.PublicKey, error)
	Dump(ctx context.Context) (key string, err error)
}
