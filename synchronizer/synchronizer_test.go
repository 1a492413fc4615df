package synchronizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tessera-cash/wallet-sdk/locker"
	"github.com/tessera-cash/wallet-sdk/store"
	"github.com/tessera-cash/wallet-sdk/types"
)

type fakeTransport struct {
	mu     sync.Mutex
	events []types.ChainEvent
	cursor uint64

	streamCh    chan types.ChainEvent
	streamErrCh chan error
	streamDials int
}

func (f *fakeTransport) GetGroupInfo(
	_ context.Context, groupId string,
) (*types.GroupInfo, error) {
	return &types.GroupInfo{GroupId: groupId}, nil
}

func (f *fakeTransport) SubmitTransaction(
	_ context.Context, _ string, _ *types.Transaction,
) (*types.SubmissionResult, error) {
	return &types.SubmissionResult{Accepted: true}, nil
}

func (f *fakeTransport) SubmitAggregate(
	_ context.Context, _ *types.AggregateWrapper,
) (*types.SubmissionResult, error) {
	return &types.SubmissionResult{Accepted: true}, nil
}

func (f *fakeTransport) GetEventStream(
	_ context.Context, _ string,
) (<-chan types.ChainEvent, <-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamDials++
	return f.streamCh, f.streamErrCh, nil
}

func (f *fakeTransport) GetEvents(
	_ context.Context, _ string, cursor uint64,
) ([]types.ChainEvent, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ChainEvent
	for _, event := range f.events {
		if event.Sequence > cursor {
			out = append(out, event)
		}
	}
	return out, f.cursor, nil
}

func (f *fakeTransport) Close() {}

func (f *fakeTransport) pushEvents(events ...types.ChainEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	for _, event := range events {
		if event.Sequence > f.cursor {
			f.cursor = event.Sequence
		}
	}
}

func newTestService(t *testing.T, withStream bool) (*Service, *fakeTransport, types.Store, *locker.Manager) {
	t.Helper()

	appStore, err := store.NewStore(store.Config{
		ConfigStoreType:  types.InMemoryStore,
		AppDataStoreType: types.InMemoryStore,
	})
	require.NoError(t, err)
	t.Cleanup(appStore.Close)

	locks := locker.NewManager()
	transport := &fakeTransport{
		streamCh:    make(chan types.ChainEvent, 10),
		streamErrCh: make(chan error, 1),
	}

	svc, err := NewService(
		transport, appStore, locks, "addr-test", 20*time.Millisecond, withStream,
	)
	require.NoError(t, err)
	return svc, transport, appStore, locks
}

func recordAddedEvent(txid string, seq uint64) types.ChainEvent {
	return types.ChainEvent{
		Kind:     types.EventRecordAdded,
		RecordId: txid + ":0",
		Sequence: seq,
		Payload: map[string]any{
			"address":  "addr-test",
			"amount":   uint64(100),
			"currency": "usd",
			"position": map[string]any{"block": uint64(10), "slot": uint32(1)},
		},
	}
}

func TestEventIdempotence(t *testing.T) {
	svc, _, appStore, locks := newTestService(t, false)
	require.NoError(t, locks.SetApplier(svc.apply))

	ctx := context.Background()
	event := recordAddedEvent("aa", 1)
	svc.intake(ctx, event)
	svc.intake(ctx, event)

	spendable, _, err := appStore.RecordStore().GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 1)
	require.Equal(t, uint64(100), spendable[0].Amount)

	cursor, err := appStore.CursorStore().GetCursor(ctx, "addr-test")
	require.NoError(t, err)
	require.Equal(t, uint64(1), cursor)
}

func TestHeldTargetDeferred(t *testing.T) {
	svc, _, appStore, locks := newTestService(t, false)
	require.NoError(t, locks.SetApplier(svc.apply))

	ctx := context.Background()
	event := recordAddedEvent("bb", 2)
	target := event.TargetId()

	require.True(t, locks.AcquireDraft(target, "op-1"))
	svc.intake(ctx, event)

	spendable, _, err := appStore.RecordStore().GetAllRecords(ctx)
	require.NoError(t, err)
	require.Empty(t, spendable)

	locks.Release(target, "op-1")

	spendable, _, err = appStore.RecordStore().GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 1)

	// A replayed event never applies twice.
	svc.intake(ctx, event)
	spendable, _, err = appStore.RecordStore().GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, spendable, 1)
}

func TestCertificateInvalidatedWhileDrafting(t *testing.T) {
	svc, _, appStore, locks := newTestService(t, false)
	require.NoError(t, locks.SetApplier(svc.apply))

	ctx := context.Background()
	certificate := types.Certificate{
		Id:       "cert-1",
		Address:  "addr-test",
		Amount:   50,
		Currency: "usd",
		Status:   types.CertificateRedeemable,
	}
	_, err := appStore.CertificateStore().AddCertificates(
		ctx, []types.Certificate{certificate},
	)
	require.NoError(t, err)

	require.True(t, locks.AcquireDraft("cert-1", "op-1"))

	svc.intake(ctx, types.ChainEvent{
		Kind:          types.EventCertificateStatusChanged,
		CertificateId: "cert-1",
		Sequence:      3,
		Payload:       map[string]any{"status": "invalid"},
	})

	// Untouched while held.
	certificates, err := appStore.CertificateStore().GetCertificates(ctx, []string{"cert-1"})
	require.NoError(t, err)
	require.Equal(t, types.CertificateRedeemable, certificates[0].Status)

	locks.Release("cert-1", "op-1")

	certificates, err = appStore.CertificateStore().GetCertificates(ctx, []string{"cert-1"})
	require.NoError(t, err)
	require.Equal(t, types.CertificateInvalid, certificates[0].Status)
}

func TestStreamDropFallsBackToPolling(t *testing.T) {
	svc, transport, appStore, _ := newTestService(t, true)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	// Delivered over the stream.
	transport.streamCh <- recordAddedEvent("cc", 1)

	require.Eventually(t, func() bool {
		spendable, _, err := appStore.RecordStore().GetAllRecords(ctx)
		return err == nil && len(spendable) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Drop the stream; the next event is only visible to polling.
	transport.pushEvents(recordAddedEvent("dd", 2))
	transport.streamErrCh <- errStreamDropped{}

	require.Eventually(t, func() bool {
		spendable, _, err := appStore.RecordStore().GetAllRecords(ctx)
		return err == nil && len(spendable) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

type errStreamDropped struct{}

func (errStreamDropped) Error() string { return "stream dropped" }
