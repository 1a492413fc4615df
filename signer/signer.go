// Package signer computes canonical digests over draft transactions and
// produces the per-input P-256 signatures that authorize each spend. Spending
// authority is independent per input, so signatures attach to inputs rather
// than to the transaction as a whole.
package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ccoveille/go-safecast"
	"github.com/tessera-cash/wallet-sdk/types"
)

var ErrSignatureFailed = errors.New("signature failed: signing key unavailable")

// KeySource produces an input signature over a 32-byte pre-image hash with
// the key owning address. Implemented by the wallet service.
type KeySource interface {
	SignHash(ctx context.Context, address string, hash []byte) (types.InputSignature, error)
}

type Signer struct {
	keys KeySource
}

func New(keys KeySource) *Signer {
	return &Signer{keys: keys}
}

// SignTransaction finalizes a draft in place: it computes the canonical
// digest, signs every input, and fills in the serialized size. Signing is
// all-or-nothing; on any failure the draft is left without signatures.
func (s *Signer) SignTransaction(ctx context.Context, tx *types.Transaction) error {
	digest, err := TransactionDigest(*tx)
	if err != nil {
		return err
	}
	tx.Digest = digest

	signatures := make([]types.InputSignature, len(tx.Inputs))
	for i, input := range tx.Inputs {
		preimage := inputPreimage(input, digest)
		hash := chainhash.HashB(preimage)

		sig, err := s.keys.SignHash(ctx, input.Address, hash)
		if err != nil {
			return fmt.Errorf("%w: input %s: %s", ErrSignatureFailed, input.Outpoint(), err)
		}
		signatures[i] = sig
	}

	// All inputs signed, attach them atomically.
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = signatures[i]
	}

	wire, err := serializeTransaction(*tx, true)
	if err != nil {
		return err
	}
	size, err := safecast.ToUint32(len(wire))
	if err != nil {
		return err
	}
	tx.SerializedSize = size

	return nil
}

// SignAggregate computes the wrapper digest over the already-signed inner
// transactions. The outer group signature stays empty on open-market
// submissions: only the inner per-input signatures carry authority there.
func (s *Signer) SignAggregate(_ context.Context, wrapper *types.AggregateWrapper) error {
	digest, err := AggregateDigest(*wrapper)
	if err != nil {
		return err
	}
	wrapper.Digest = digest
	return nil
}

// TransactionDigest hashes the deterministic serialization of the
// transaction, excluding every digest-derived field (the digest itself, the
// serialized size and the input signatures). The result is the transaction's
// own identifier.
func TransactionDigest(tx types.Transaction) (string, error) {
	buf, err := serializeTransaction(tx, false)
	if err != nil {
		return "", err
	}
	return chainhash.DoubleHashH(buf).String(), nil
}

// AggregateDigest hashes the wrapper metadata plus the canonical form of
// every inner transaction, excluding the wrapper digest and the outer group
// signature.
func AggregateDigest(wrapper types.AggregateWrapper) (string, error) {
	w := newWriter()
	w.writeUint32(uint32(len(wrapper.Txs)))
	for _, tx := range wrapper.Txs {
		inner, err := serializeTransaction(tx, true)
		if err != nil {
			return "", err
		}
		w.writeBytes(inner)
	}
	w.writeUint64(uint64(wrapper.Timestamp))
	if w.err != nil {
		return "", w.err
	}
	return chainhash.DoubleHashH(w.bytes()).String(), nil
}

// VerifyInputSignature checks one input's signature against the transaction
// digest it was produced under.
func VerifyInputSignature(input types.TxInput, digest string) bool {
	preimage := inputPreimage(input, digest)
	hash := chainhash.HashB(preimage)

	pubBytes, err := hex.DecodeString(input.Signature.PublicKey)
	if err != nil {
		return false
	}
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pubBytes)
	if x == nil {
		return false
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	rBytes, err := hex.DecodeString(input.Signature.R)
	if err != nil || len(rBytes) != 32 {
		return false
	}
	sBytes, err := hex.DecodeString(input.Signature.S)
	if err != nil || len(sBytes) != 32 {
		return false
	}

	r := new(big.Int).SetBytes(rBytes)
	s := new(big.Int).SetBytes(sBytes)
	return ecdsa.Verify(pub, hash, r, s)
}

// inputPreimage binds the input's originating transaction, its position and
// the enclosing draft's digest context.
func inputPreimage(input types.TxInput, digest string) []byte {
	w := newWriter()
	w.writeString(input.Txid)
	w.writeUint32(input.VOut)
	w.writeUint64(input.Position.Block)
	w.writeUint32(input.Position.Slot)
	w.writeString(digest)
	return w.bytes()
}
