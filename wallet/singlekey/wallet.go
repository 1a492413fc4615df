// Package singlekeywallet implements WalletService around one P-256 private
// key, encrypted at rest with AES-256-GCM under a PBKDF2-derived key.
package singlekeywallet

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/tessera-cash/wallet-sdk/internal/utils"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/tessera-cash/wallet-sdk/wallet"
	walletstore "github.com/tessera-cash/wallet-sdk/wallet/singlekey/store"
)

var ErrWalletLocked = errors.New("wallet is locked")

type singlekeyWallet struct {
	store      walletstore.WalletStore
	mu         *sync.Mutex
	privateKey *ecdsa.PrivateKey
	walletData *walletstore.WalletData
}

func NewWallet(store walletstore.WalletStore) (wallet.WalletService, error) {
	if store == nil {
		return nil, fmt.Errorf("missing wallet store")
	}
	svc := &singlekeyWallet{store: store, mu: &sync.Mutex{}}
	if data, err := store.GetWallet(); err == nil {
		svc.walletData = data
	}
	return svc, nil
}

func (w *singlekeyWallet) GetType() string {
	return wallet.SingleKeyWallet
}

func (w *singlekeyWallet) Create(_ context.Context, password string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData != nil {
		return "", fmt.Errorf("wallet already initialized")
	}
	if password == "" {
		return "", fmt.Errorf("missing password")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", err
	}

	keyBytes := key.D.FillBytes(make([]byte, 32))
	encrypted, err := utils.EncryptAES256(keyBytes, []byte(password))
	if err != nil {
		return "", err
	}

	data := walletstore.WalletData{
		EncryptedKey: encrypted,
		PasswordHash: utils.HashPassword([]byte(password)),
		PubKey:       elliptic.MarshalCompressed(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y),
	}
	if err := w.store.AddWallet(data); err != nil {
		return "", err
	}

	w.walletData = &data
	return addressFromPubKey(data.PubKey), nil
}

func (w *singlekeyWallet) Unlock(_ context.Context, password string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData == nil {
		return false, fmt.Errorf("wallet not initialized")
	}
	if w.privateKey != nil {
		return true, nil
	}
	if !bytes.Equal(utils.HashPassword([]byte(password)), w.walletData.PasswordHash) {
		return false, fmt.Errorf("invalid password")
	}

	keyBytes, err := utils.DecryptAES256(w.walletData.EncryptedKey, []byte(password))
	if err != nil {
		return false, err
	}

	d := new(big.Int).SetBytes(keyBytes)
	x, y := elliptic.P256().ScalarBaseMult(keyBytes)
	w.privateKey = &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}
	return false, nil
}

func (w *singlekeyWallet) Lock(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData == nil {
		return fmt.Errorf("wallet not initialized")
	}
	w.privateKey = nil
	return nil
}

func (w *singlekeyWallet) IsLocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.privateKey == nil
}

func (w *singlekeyWallet) GetAddresses(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData == nil {
		return nil, fmt.Errorf("wallet not initialized")
	}
	return []string{addressFromPubKey(w.walletData.PubKey)}, nil
}

func (w *singlekeyWallet) SignHash(
	_ context.Context, address string, hash []byte,
) (types.InputSignature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData == nil {
		return types.InputSignature{}, fmt.Errorf("wallet not initialized")
	}
	if w.privateKey == nil {
		return types.InputSignature{}, ErrWalletLocked
	}
	if address != addressFromPubKey(w.walletData.PubKey) {
		return types.InputSignature{}, fmt.Errorf("no key for address %s", address)
	}
	if len(hash) != sha256.Size {
		return types.InputSignature{}, fmt.Errorf("pre-image hash must be %d bytes", sha256.Size)
	}

	r, s, err := ecdsa.Sign(rand.Reader, w.privateKey, hash)
	if err != nil {
		return types.InputSignature{}, err
	}

	return types.InputSignature{
		PublicKey: hex.EncodeToString(w.walletData.PubKey),
		R:         hex.EncodeToString(r.FillBytes(make([]byte, 32))),
		S:         hex.EncodeToString(s.FillBytes(make([]byte, 32))),
	}, nil
}

func (w *singlekeyWallet) PublicKey(_ context.Context, address string) (*ecdsa.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walletData == nil {
		return nil, fmt.Errorf("wallet not initialized")
	}
	if address != addressFromPubKey(w.walletData.PubKey) {
		return nil, fmt.Errorf("no key for address %s", address)
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), w.walletData.PubKey)
	if x == nil {
		return nil, fmt.Errorf("corrupted wallet public key")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

func (w *singlekeyWallet) Dump(_ context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.privateKey == nil {
		return "", ErrWalletLocked
	}
	return hex.EncodeToString(w.privateKey.D.FillBytes(make([]byte, 32))), nil
}

// addressFromPubKey derives the account address: the first 20 bytes of the
// SHA256 of the compressed public key, hex encoded.
func addressFromPubKey(pubKey []byte) string {
	hash := sha256.Sum256(pubKey)
	return hex.EncodeToString(hash[:20])
}
