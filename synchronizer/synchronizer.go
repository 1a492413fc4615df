// Package synchronizer keeps the local record and certificate stores
// consistent with the network. It prefers the push stream and degrades to
// polling with capped exponential backoff when the stream is unavailable;
// both paths feed the same intake so downstream behavior never depends on
// the source.
package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/gateway"
	"github.com/tessera-cash/wallet-sdk/internal/utils"
	"github.com/tessera-cash/wallet-sdk/locker"
	"github.com/tessera-cash/wallet-sdk/types"
)

const (
	// Consecutive poll failures before the account is flagged stale.
	staleAfterFailures = 3

	sweepInterval = 10 * time.Second
)

type Service struct {
	transport gateway.TransportClient
	store     types.Store
	locks     *locker.Manager
	address   string

	pollInterval time.Duration
	withStream   bool

	mu       sync.Mutex
	applied  map[string]struct{}
	synced   bool
	failures int

	syncCh *utils.Broadcaster[types.SyncEvent]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	transport gateway.TransportClient,
	store types.Store,
	locks *locker.Manager,
	address string,
	pollInterval time.Duration,
	withStream bool,
) (*Service, error) {
	if transport == nil || store == nil || locks == nil {
		return nil, fmt.Errorf("missing synchronizer dependencies")
	}
	if address == "" {
		return nil, fmt.Errorf("missing account address")
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Service{
		transport:    transport,
		store:        store,
		locks:        locks,
		address:      address,
		pollInterval: pollInterval,
		withStream:   withStream,
		applied:      make(map[string]struct{}),
		syncCh:       utils.NewBroadcaster[types.SyncEvent](),
	}, nil
}

// Start registers the lock-manager applier and launches the sync loop.
func (s *Service) Start(ctx context.Context) error {
	if err := s.locks.SetApplier(s.apply); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.run(runCtx)
	go s.sweepLoop(runCtx)
	return nil
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.syncCh.Close()
}

// SyncEventChannel notifies subscribers of staleness transitions.
func (s *Service) SyncEventChannel() <-chan types.SyncEvent {
	return s.syncCh.Subscribe(10)
}

func (s *Service) IsSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if s.withStream {
			if err := s.streamOnce(ctx); err != nil {
				retry, delay := utils.ShouldReconnect(err)
				if !retry {
					return
				}
				log.WithError(err).Debug("synchronizer: stream dropped, degrading to polling")
				s.pollUntilStreamable(ctx, delay)
				continue
			}
			return
		}

		s.pollUntilStreamable(ctx, s.pollInterval)
	}
}

// streamOnce catches up through one poll round, then consumes the push
// stream until it fails or the context ends.
func (s *Service) streamOnce(ctx context.Context) error {
	eventCh, errCh, err := s.transport.GetEventStream(ctx, s.address)
	if err != nil {
		return err
	}

	// Events published while the stream was down are only visible to the
	// poll endpoint, fetch those first.
	if err := s.pollOnce(ctx); err != nil {
		log.WithError(err).Debug("synchronizer: catch-up poll failed")
	}
	s.setSynced(true, nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-eventCh:
			if !ok {
				return fmt.Errorf("%w: event stream closed", gateway.ErrNetworkUnavailable)
			}
			s.intake(ctx, event)
		case err, ok := <-errCh:
			if !ok || err == nil {
				return fmt.Errorf("%w: event stream closed", gateway.ErrNetworkUnavailable)
			}
			return err
		}
	}
}

// pollUntilStreamable polls on a capped exponential backoff. When streaming
// is enabled it returns as soon as a poll round succeeds so the caller can
// attempt to re-establish the stream.
func (s *Service) pollUntilStreamable(ctx context.Context, initialDelay time.Duration) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = utils.ReconnectConfig.InitialDelay
	if initialDelay > 0 {
		policy.InitialInterval = initialDelay
	}
	policy.Multiplier = utils.ReconnectConfig.Multiplier
	policy.MaxInterval = utils.ReconnectConfig.MaxDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(policy.NextBackOff()):
		}

		if err := s.pollOnce(ctx); err != nil {
			s.recordFailure(err)
			continue
		}
		policy.Reset()
		s.setSynced(true, nil)

		if s.withStream {
			return
		}
	}
}

// pollOnce fetches every event past the persisted cursor and feeds it
// through the same intake as the push path.
func (s *Service) pollOnce(ctx context.Context) error {
	cursor, err := s.store.CursorStore().GetCursor(ctx, s.address)
	if err != nil {
		return err
	}

	events, next, err := s.transport.GetEvents(ctx, s.address, cursor)
	if err != nil {
		return err
	}

	for _, event := range events {
		s.intake(ctx, event)
	}

	if next > cursor {
		if err := s.store.CursorStore().SetCursor(ctx, s.address, next); err != nil {
			return err
		}
	}
	return nil
}

// intake deduplicates, advances the cursor and hands the event to the lock
// manager, which queues it behind a hold or applies it atomically. Replays
// coming back from the lock manager skip intake, so a deferred event is
// applied exactly once.
func (s *Service) intake(ctx context.Context, event types.ChainEvent) {
	key := event.DedupKey()

	s.mu.Lock()
	if _, done := s.applied[key]; done {
		s.mu.Unlock()
		return
	}
	s.applied[key] = struct{}{}
	s.mu.Unlock()

	if event.Sequence > 0 {
		cursor, err := s.store.CursorStore().GetCursor(ctx, s.address)
		if err == nil && event.Sequence > cursor {
			if err := s.store.CursorStore().SetCursor(
				ctx, s.address, event.Sequence,
			); err != nil {
				log.WithError(err).Warn("synchronizer: failed to persist cursor")
			}
		}
	}

	if s.locks.Dispatch(event.TargetId(), event) {
		log.Tracef(
			"synchronizer: deferred %s for held target %s",
			event.Kind, event.TargetId(),
		)
	}
}

// apply mutates the stores for one event. Also invoked by the lock manager
// when deferred events replay after a hold is released.
func (s *Service) apply(event types.ChainEvent) {
	ctx := context.Background()

	switch event.Kind {
	case types.EventRecordAdded:
		outpoint, err := parseOutpoint(event.RecordId)
		if err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		var payload recordAddedPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		if _, err := s.store.RecordStore().AddRecords(
			ctx, []types.Record{payload.toRecord(outpoint)},
		); err != nil {
			log.WithError(err).Warn("synchronizer: failed to add record")
		}

	case types.EventRecordSpent:
		outpoint, err := parseOutpoint(event.RecordId)
		if err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		var payload recordSpentPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		if _, err := s.store.RecordStore().SpendRecords(
			ctx, map[types.Outpoint]string{outpoint: payload.SpentBy},
		); err != nil {
			log.WithError(err).Warn("synchronizer: failed to mark record spent")
		}

	case types.EventCertificateIssued, types.EventCrossDomainCertificate:
		var payload certificateIssuedPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		if _, err := s.store.CertificateStore().AddCertificates(
			ctx, []types.Certificate{payload.toCertificate(event.CertificateId)},
		); err != nil {
			log.WithError(err).Warn("synchronizer: failed to add certificate")
		}

	case types.EventCertificateStatusChanged:
		var payload certificateStatusPayload
		if err := decodePayload(event.Payload, &payload); err != nil {
			log.WithError(err).Warnf("synchronizer: dropping %s event", event.Kind)
			return
		}
		certificates, err := s.store.CertificateStore().GetCertificates(
			ctx, []string{event.CertificateId},
		)
		if err != nil || len(certificates) == 0 {
			log.Warnf(
				"synchronizer: status change for unknown certificate %s",
				event.CertificateId,
			)
			return
		}
		certificate := certificates[0]
		certificate.Status = types.CertificateStatus(payload.Status)
		if _, err := s.store.CertificateStore().UpdateCertificates(
			ctx, []types.Certificate{certificate},
		); err != nil {
			log.WithError(err).Warn("synchronizer: failed to update certificate")
		}

	case types.EventUnknown:
		log.Warnf("synchronizer: dropping event with unknown kind for %s", event.TargetId())
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.locks.Sweep()
		}
	}
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	stale := s.failures >= staleAfterFailures && s.synced
	if stale {
		s.synced = false
	}
	s.mu.Unlock()

	if stale {
		log.WithError(err).Warn("synchronizer: account state is stale")
		s.syncCh.Publish(types.SyncEvent{
			Synced: false,
			Err:    fmt.Errorf("%w: %s", gateway.ErrNetworkUnavailable, err),
		})
	}
}

func (s *Service) setSynced(synced bool, err error) {
	s.mu.Lock()
	changed := s.synced != synced
	s.synced = synced
	s.failures = 0
	s.mu.Unlock()

	if changed {
		s.syncCh.Publish(types.SyncEvent{Synced: synced, Err: err})
	}
}
