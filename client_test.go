package walletsdk

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tessera-cash/wallet-sdk/capsule"
	"github.com/tessera-cash/wallet-sdk/signer"
	"github.com/tessera-cash/wallet-sdk/store"
	"github.com/tessera-cash/wallet-sdk/types"
	"github.com/tessera-cash/wallet-sdk/wallet"
)

type fakeTransport struct {
	mu sync.Mutex

	groupKeys  map[string]*ecdsa.PrivateKey
	affiliated map[string]bool

	accept bool
	reason string

	directSubmissions    int
	aggregateSubmissions int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		groupKeys:  make(map[string]*ecdsa.PrivateKey),
		affiliated: make(map[string]bool),
		accept:     true,
	}
}

func (f *fakeTransport) addGroup(t *testing.T, groupId string, affiliated bool) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupKeys[groupId] = key
	f.affiliated[groupId] = affiliated
	return key
}

func (f *fakeTransport) GetGroupInfo(
	_ context.Context, groupId string,
) (*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.groupKeys[groupId]
	if !ok {
		return nil, errors.New("unknown group")
	}
	compressed := elliptic.MarshalCompressed(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	return &types.GroupInfo{
		GroupId:            groupId,
		PublicKey:          hex.EncodeToString(compressed),
		SettlementEndpoint: "http://settlement.test",
		IsAffiliated:       f.affiliated[groupId],
	}, nil
}

func (f *fakeTransport) SubmitTransaction(
	_ context.Context, _ string, _ *types.Transaction,
) (*types.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directSubmissions++
	return &types.SubmissionResult{Accepted: f.accept, Reason: f.reason}, nil
}

func (f *fakeTransport) SubmitAggregate(
	_ context.Context, _ *types.AggregateWrapper,
) (*types.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregateSubmissions++
	return &types.SubmissionResult{Accepted: f.accept, Reason: f.reason}, nil
}

func (f *fakeTransport) GetEventStream(
	_ context.Context, _ string,
) (<-chan types.ChainEvent, <-chan error, error) {
	return nil, nil, errors.New("stream not supported")
}

func (f *fakeTransport) GetEvents(
	_ context.Context, _ string, _ uint64,
) ([]types.ChainEvent, uint64, error) {
	return nil, 0, nil
}

func (f *fakeTransport) Close() {}

type testClient struct {
	WalletClient
	transport *fakeTransport
	store     types.Store
	address   string
	groupKey  *ecdsa.PrivateKey
}

func newTestClient(t *testing.T, groupId string, tweaks ...func(*InitArgs)) *testClient {
	t.Helper()

	appStore, err := store.NewStore(store.Config{
		ConfigStoreType:  types.InMemoryStore,
		AppDataStoreType: types.InMemoryStore,
	})
	require.NoError(t, err)

	transport := newFakeTransport()
	if groupId != "" {
		transport.addGroup(t, groupId, true)
	}
	destKey := transport.addGroup(t, "grp-dest", false)

	client, err := NewWalletClient(appStore, WithTransportClient(transport))
	require.NoError(t, err)

	ctx := context.Background()
	args := InitArgs{
		ServerUrl:  "http://server.test",
		GroupId:    groupId,
		Network:    "testnet",
		WalletType: wallet.SingleKeyWallet,
		ClientType: RestClient,
		Password:   "password",
	}
	for _, tweak := range tweaks {
		tweak(&args)
	}
	require.NoError(t, client.Init(ctx, args))
	require.NoError(t, client.Unlock(ctx, "password"))
	t.Cleanup(client.Stop)

	address, err := client.Receive(ctx)
	require.NoError(t, err)

	return &testClient{
		WalletClient: client,
		transport:    transport,
		store:        appStore,
		address:      address,
		groupKey:     destKey,
	}
}

func (c *testClient) seedRecords(t *testing.T, amounts ...uint64) {
	t.Helper()
	records := make([]types.Record, 0, len(amounts))
	for i, amount := range amounts {
		records = append(records, types.Record{
			Outpoint: types.Outpoint{Txid: "seed", VOut: uint32(i)},
			Address:  c.address,
			Amount:   amount,
			Currency: "usd",
			Position: types.Position{Block: 1, Slot: uint32(i)},
		})
	}
	_, err := c.store.RecordStore().AddRecords(context.Background(), records)
	require.NoError(t, err)
}

func (c *testClient) destCapsule(t *testing.T) string {
	t.Helper()
	encoded, err := capsule.Encode("grp-dest", []byte("dest-account"), c.groupKey)
	require.NoError(t, err)
	return encoded
}

func TestBuildAndSignAndSubmit(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 70, 30, 10)
	ctx := context.Background()

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 80, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, payload.Direct)
	require.Nil(t, payload.Aggregate)

	tx := payload.Direct
	require.Len(t, tx.Inputs, 2)
	require.Equal(t, uint64(70), tx.Inputs[0].Amount)
	require.Equal(t, uint64(30), tx.Inputs[1].Amount)
	for _, input := range tx.Inputs {
		require.True(t, signer.VerifyInputSignature(input, tx.Digest))
	}

	var change *types.TxOutput
	for i := range tx.Outputs {
		if tx.Outputs[i].IsChange {
			change = &tx.Outputs[i]
		}
	}
	require.NotNil(t, change)
	require.Equal(t, uint64(20), change.Amount)
	require.Equal(t, c.address, change.Address)

	// Selected inputs are held, only the untouched record counts.
	balance, err := c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)

	result, err := c.Submit(ctx, payload)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, 1, c.transport.directSubmissions)

	// Submitted holds persist.
	balance, err = c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)
}

func TestBuildAndSignExactMatchHasNoChange(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 70, 30)
	ctx := context.Background()

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 100, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, payload.Direct)
	for _, output := range payload.Direct.Outputs {
		require.False(t, output.IsChange)
	}
}

func TestBuildAndSignUnaffiliatedUsesAggregate(t *testing.T) {
	c := newTestClient(t, "")
	c.seedRecords(t, 100)
	ctx := context.Background()

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.Nil(t, payload.Direct)
	require.NotNil(t, payload.Aggregate)
	require.Empty(t, payload.Aggregate.GroupSignature)
	require.NotEmpty(t, payload.Aggregate.Digest)

	result, err := c.Submit(ctx, payload)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, 1, c.transport.aggregateSubmissions)
	require.Zero(t, c.transport.directSubmissions)
}

func TestBuildAndSignInsufficientFunds(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 30, 10)
	ctx := context.Background()

	_, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 80, Currency: "usd"},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// No lock side effects.
	balance, err := c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(40), balance)
}

func TestBuildAndSignRejectsTamperedCapsule(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 100)
	ctx := context.Background()

	// Swapping the issuing group id invalidates the signature binding.
	dest := c.destCapsule(t)
	tampered := "grp-self" + dest[len("grp-dest"):]

	_, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: tampered, Amount: 50, Currency: "usd"},
		},
	})
	require.ErrorIs(t, err, ErrAddressVerificationFailed)

	balance, err := c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)
}

func TestSubmitRejectedReleasesHolds(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 100)
	ctx := context.Background()

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.NoError(t, err)

	c.transport.mu.Lock()
	c.transport.accept = false
	c.transport.reason = "fee too low"
	c.transport.mu.Unlock()

	result, err := c.Submit(ctx, payload)
	var rejected SubmissionRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "fee too low", rejected.Reason)
	require.False(t, result.Accepted)

	// Holds released, the full balance is spendable again.
	balance, err := c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)
}

func TestCancelDraft(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 100)
	ctx := context.Background()

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.NoError(t, err)

	balance, err := c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Zero(t, balance)

	require.NoError(t, c.CancelDraft(ctx, payload.DraftId))

	balance, err = c.GetAvailableBalance(ctx, "", "usd")
	require.NoError(t, err)
	require.Equal(t, uint64(100), balance)

	require.Error(t, c.CancelDraft(ctx, payload.DraftId))
}

func TestBuildAndSignPrefersCertificates(t *testing.T) {
	c := newTestClient(t, "grp-self")
	c.seedRecords(t, 60)
	ctx := context.Background()

	_, err := c.store.CertificateStore().AddCertificates(ctx, []types.Certificate{{
		Id:        "cert-1",
		Address:   c.address,
		Amount:    55,
		Currency:  "usd",
		Origin:    types.Outpoint{Txid: "origin", VOut: 0},
		Position:  types.Position{Block: 2, Slot: 0},
		Status:    types.CertificateRedeemable,
		CreatedAt: time.Now(),
	}})
	require.NoError(t, err)

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, payload.Direct)
	require.Len(t, payload.Direct.Inputs, 1)
	require.Equal(t, "origin", payload.Direct.Inputs[0].Txid)
}

func TestSubmitRetakesExpiredHolds(t *testing.T) {
	c := newTestClient(t, "grp-self", func(args *InitArgs) {
		args.DraftHoldDuration = 1
	})
	c.seedRecords(t, 100)
	ctx := context.Background()

	stale, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 80, Currency: "usd"},
		},
	})
	require.NoError(t, err)

	// Let the hold lapse, then draft again: the record is up for grabs and
	// the newer draft takes it.
	time.Sleep(1200 * time.Millisecond)

	fresh, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 80, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, stale.Direct.Inputs[0].Txid, fresh.Direct.Inputs[0].Txid)

	// The stale payload no longer owns its inputs and must not reach the
	// network.
	_, err = c.Submit(ctx, stale)
	require.ErrorIs(t, err, ErrRecordRaceLost)
	require.Equal(t, 0, c.transport.directSubmissions)

	result, err := c.Submit(ctx, fresh)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, 1, c.transport.directSubmissions)
}

func TestSubmitRejectionAppliesDeferredInvalidation(t *testing.T) {
	c := newTestClient(t, "grp-self")
	ctx := context.Background()

	_, err := c.store.CertificateStore().AddCertificates(ctx, []types.Certificate{{
		Id:        "cert-1",
		Address:   c.address,
		Amount:    100,
		Currency:  "usd",
		Origin:    types.Outpoint{Txid: "origin", VOut: 0},
		Position:  types.Position{Block: 2, Slot: 0},
		Status:    types.CertificateRedeemable,
		CreatedAt: time.Now(),
	}})
	require.NoError(t, err)

	payload, err := c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "origin", payload.Direct.Inputs[0].Txid)

	// The group invalidates the certificate while the draft holds it: the
	// mutation is deferred, the local copy stays redeemable.
	wc := c.WalletClient.(*walletClient)
	deferred := wc.locks.Dispatch("cert-1", types.ChainEvent{
		Kind:          types.EventCertificateStatusChanged,
		CertificateId: "cert-1",
		Payload:       map[string]any{"status": "invalid"},
	})
	require.True(t, deferred)

	certificates, err := c.store.CertificateStore().GetCertificates(ctx, []string{"cert-1"})
	require.NoError(t, err)
	require.Equal(t, types.CertificateRedeemable, certificates[0].Status)

	c.transport.mu.Lock()
	c.transport.accept = false
	c.transport.reason = "certificate cert-1 is invalid"
	c.transport.mu.Unlock()

	// The server rejects the draft; releasing the hold replays the
	// invalidation.
	result, err := c.Submit(ctx, payload)
	var rejected SubmissionRejectedError
	require.ErrorAs(t, err, &rejected)
	require.False(t, result.Accepted)

	certificates, err = c.store.CertificateStore().GetCertificates(ctx, []string{"cert-1"})
	require.NoError(t, err)
	require.Equal(t, types.CertificateInvalid, certificates[0].Status)

	// The invalidated certificate is no longer spendable.
	_, err = c.BuildAndSign(ctx, types.PaymentRequest{
		Targets: []types.PaymentTarget{
			{To: c.destCapsule(t), Amount: 50, Currency: "usd"},
		},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}
