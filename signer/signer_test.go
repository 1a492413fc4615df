package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-cash/wallet-sdk/types"
)

type testKeySource struct {
	keys map[string]*ecdsa.PrivateKey
}

func newTestKeySource(t *testing.T, addresses ...string) *testKeySource {
	t.Helper()
	ks := &testKeySource{keys: make(map[string]*ecdsa.PrivateKey)}
	for _, addr := range addresses {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		ks.keys[addr] = key
	}
	return ks
}

func (ks *testKeySource) SignHash(
	_ context.Context, address string, hash []byte,
) (types.InputSignature, error) {
	key, ok := ks.keys[address]
	if !ok {
		return types.InputSignature{}, fmt.Errorf("no key for %s", address)
	}
	r, s, err := ecdsa.Sign(rand.Reader, key, hash)
	if err != nil {
		return types.InputSignature{}, err
	}
	compressed := elliptic.MarshalCompressed(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	return types.InputSignature{
		PublicKey: hex.EncodeToString(compressed),
		R:         hex.EncodeToString(r.FillBytes(make([]byte, 32))),
		S:         hex.EncodeToString(s.FillBytes(make([]byte, 32))),
	}, nil
}

func testTransaction() types.Transaction {
	return types.Transaction{
		Inputs: []types.TxInput{
			{
				Txid: "aa11", VOut: 0,
				Position: types.Position{Block: 12, Slot: 3},
				Amount:   70, Currency: "usd", Address: "addr-1",
			},
			{
				Txid: "bb22", VOut: 1,
				Position: types.Position{Block: 15, Slot: 0},
				Amount:   30, Currency: "usd", Address: "addr-2",
			},
		},
		Outputs: []types.TxOutput{
			{Address: "addr-dest", Amount: 80, Currency: "usd"},
			{Address: "addr-1", Amount: 15, Currency: "usd", IsChange: true},
		},
		Fee:       5,
		Timestamp: 1700000000,
	}
}

func TestTransactionDigestExcludesDerivedFields(t *testing.T) {
	tx := testTransaction()
	base, err := TransactionDigest(tx)
	require.NoError(t, err)
	require.Len(t, base, 64)

	mutated := tx
	mutated.Digest = "ffffffff"
	mutated.SerializedSize = 9999
	mutated.Inputs = append([]types.TxInput{}, tx.Inputs...)
	mutated.Inputs[0].Signature = types.InputSignature{
		PublicKey: "02aa", R: "bb", S: "cc",
	}
	got, err := TransactionDigest(mutated)
	require.NoError(t, err)
	require.Equal(t, base, got)
}

func TestTransactionDigestBindsContent(t *testing.T) {
	tx := testTransaction()
	base, err := TransactionDigest(tx)
	require.NoError(t, err)

	amountChanged := testTransaction()
	amountChanged.Outputs[0].Amount++
	got, err := TransactionDigest(amountChanged)
	require.NoError(t, err)
	require.NotEqual(t, base, got)

	feeChanged := testTransaction()
	feeChanged.Fee++
	got, err = TransactionDigest(feeChanged)
	require.NoError(t, err)
	require.NotEqual(t, base, got)
}

func TestSignTransaction(t *testing.T) {
	ks := newTestKeySource(t, "addr-1", "addr-2")
	s := New(ks)

	tx := testTransaction()
	require.NoError(t, s.SignTransaction(context.Background(), &tx))

	require.NotEmpty(t, tx.Digest)
	require.Greater(t, tx.SerializedSize, uint32(0))
	for _, input := range tx.Inputs {
		require.False(t, input.Signature.IsZero())
		require.Len(t, input.Signature.R, 64)
		require.Len(t, input.Signature.S, 64)
		require.True(t, VerifyInputSignature(input, tx.Digest))
	}

	// A signature does not verify under a different digest context.
	otherDigest := hex.EncodeToString(sha256.New().Sum(nil))
	require.False(t, VerifyInputSignature(tx.Inputs[0], otherDigest))
}

func TestSignTransactionAllOrNothing(t *testing.T) {
	// Key for the first input only.
	ks := newTestKeySource(t, "addr-1")
	s := New(ks)

	tx := testTransaction()
	err := s.SignTransaction(context.Background(), &tx)
	require.ErrorIs(t, err, ErrSignatureFailed)
	for _, input := range tx.Inputs {
		require.True(t, input.Signature.IsZero())
	}
}

func TestSignAggregate(t *testing.T) {
	ks := newTestKeySource(t, "addr-1", "addr-2")
	s := New(ks)

	tx := testTransaction()
	require.NoError(t, s.SignTransaction(context.Background(), &tx))

	wrapper := types.AggregateWrapper{
		Txs:       []types.Transaction{tx},
		Timestamp: 1700000001,
	}
	require.NoError(t, s.SignAggregate(context.Background(), &wrapper))
	require.NotEmpty(t, wrapper.Digest)
	require.Empty(t, wrapper.GroupSignature)

	// The wrapper digest covers the inner signatures.
	tampered := wrapper
	tampered.Txs = append([]types.Transaction{}, wrapper.Txs...)
	tampered.Txs[0].Inputs = append([]types.TxInput{}, wrapper.Txs[0].Inputs...)
	tampered.Txs[0].Inputs[0].Signature.R = tampered.Txs[0].Inputs[0].Signature.S
	got, err := AggregateDigest(tampered)
	require.NoError(t, err)
	require.NotEqual(t, wrapper.Digest, got)
}
