// Package locker tracks short-lived drafting holds and long-lived submitted
// holds per record identifier. It is the sole arbiter of mutation permission:
// the synchronizer routes every incoming mutation through Dispatch, and queued
// mutations are replayed in arrival order once the hold is gone.
package locker

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tessera-cash/wallet-sdk/types"
)

type HoldState int

const (
	HoldNone HoldState = iota
	HoldDrafting
	HoldSubmitted
)

func (s HoldState) String() string {
	return map[HoldState]string{
		HoldNone:      "none",
		HoldDrafting:  "drafting",
		HoldSubmitted: "submitted",
	}[s]
}

const (
	DefaultDraftHoldDuration     = 30 * time.Second
	DefaultSubmittedHoldDuration = 24 * time.Hour
)

// Applier replays a deferred mutation against the record store. It is
// registered once by the synchronizer at startup.
type Applier func(event types.ChainEvent)

// An entry in the draining state is past its hold but still owns the target
// until its queued mutations have been applied, so a new acquisition cannot
// observe a half-replayed backlog.
type entry struct {
	state    HoldState
	holder   string
	refs     int
	expiry   time.Time
	draining bool
	pending  []types.ChainEvent
}

type Manager struct {
	mu           *sync.Mutex
	entries      map[string]*entry
	applier      Applier
	draftTTL     time.Duration
	submittedTTL time.Duration
	now          func() time.Time
}

type Option func(*Manager)

func WithDraftHoldDuration(d time.Duration) Option {
	return func(m *Manager) { m.draftTTL = d }
}

func WithSubmittedHoldDuration(d time.Duration) Option {
	return func(m *Manager) { m.submittedTTL = d }
}

// WithClock overrides the time source, used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		mu:           &sync.Mutex{},
		entries:      make(map[string]*entry),
		draftTTL:     DefaultDraftHoldDuration,
		submittedTTL: DefaultSubmittedHoldDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetApplier registers the replay callback. It may be called exactly once.
func (m *Manager) SetApplier(fn Applier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applier != nil {
		return fmt.Errorf("applier already registered")
	}
	m.applier = fn
	return nil
}

// AcquireDraft grants a short hold on the given identifier. It returns false
// if another holder owns the identifier, if it is already submitted or if a
// released hold is still draining its backlog. Re-acquisition by the same
// holder is ref-counted so a retry does not need to re-run selection.
func (m *Manager) AcquireDraft(id, holder string) bool {
	m.expire(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		m.entries[id] = &entry{
			state:  HoldDrafting,
			holder: holder,
			refs:   1,
			expiry: m.now().Add(m.draftTTL),
		}
		return true
	}
	if e.draining || e.state == HoldSubmitted || e.holder != holder {
		return false
	}
	e.refs++
	e.expiry = m.now().Add(m.draftTTL)
	return true
}

// Reacquire retakes a draft hold ahead of submission, recreating it when it
// expired in the meantime. Unlike AcquireDraft it adds no reference when the
// holder already owns the entry, so the release accounting of the original
// draft stays balanced.
func (m *Manager) Reacquire(id, holder string) bool {
	m.expire(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		m.entries[id] = &entry{
			state:  HoldDrafting,
			holder: holder,
			refs:   1,
			expiry: m.now().Add(m.draftTTL),
		}
		return true
	}
	if e.draining || e.state == HoldSubmitted || e.holder != holder {
		return false
	}
	e.expiry = m.now().Add(m.draftTTL)
	return true
}

// PromoteToSubmitted extends the hold to the long submitted duration.
// Idempotent; promoting an unknown identifier creates the hold.
func (m *Manager) PromoteToSubmitted(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		m.entries[id] = &entry{
			state:  HoldSubmitted,
			refs:   1,
			expiry: m.now().Add(m.submittedTTL),
		}
		return
	}
	e.state = HoldSubmitted
	e.draining = false
	if e.refs < 1 {
		e.refs = 1
	}
	e.expiry = m.now().Add(m.submittedTTL)
}

// Release drops one reference held by holder. When the last reference is
// gone the entry drains: every queued mutation is replayed in its original
// arrival order while the entry keeps blocking new acquisitions. Submitted
// holds are released regardless of holder since confirmation is not tied to
// the drafting operation.
func (m *Manager) Release(id, holder string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.draining {
		m.mu.Unlock()
		return
	}
	if e.state == HoldDrafting && e.holder != holder {
		log.Debugf("locker: release of %s ignored, held by another operation", id)
		m.mu.Unlock()
		return
	}

	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	if len(e.pending) == 0 {
		delete(m.entries, id)
		m.mu.Unlock()
		return
	}
	e.draining = true
	m.mu.Unlock()
	m.drain(id)
}

// IsHeld reports the current hold state, treating expired entries as gone.
// A draining entry still reports its last state so selection skips it until
// the backlog has been applied.
func (m *Manager) IsHeld(id string) HoldState {
	m.expire(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return HoldNone
	}
	return e.state
}

// Dispatch routes one incoming mutation: queued behind the hold when the
// target is held or draining, applied through the registered applier
// otherwise. The direct apply runs under the manager mutex so a hold taken
// concurrently can never observe a half-applied mutation. It returns true
// when the event was deferred.
func (m *Manager) Dispatch(id string, event types.ChainEvent) bool {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		if e.draining || m.now().Before(e.expiry) {
			e.pending = append(e.pending, event)
			m.mu.Unlock()
			return true
		}
		// The hold expired with this event already behind it: retire the
		// entry and apply the whole backlog in order.
		log.Debugf("locker: %s hold on %s expired", e.state, id)
		e.draining = true
		e.pending = append(e.pending, event)
		m.mu.Unlock()
		m.drain(id)
		return false
	}

	applier := m.applier
	if applier == nil {
		m.mu.Unlock()
		log.Warnf("locker: dropping event for %s, no applier registered", id)
		return false
	}
	applier(event)
	m.mu.Unlock()
	return false
}

// Sweep expires every stale entry and drains their queued mutations. The
// synchronizer calls it periodically as a backstop; expiry is otherwise
// checked lazily on access.
func (m *Manager) Sweep() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.expire(id)
	}
}

// expire retires the entry when past expiry and drains its backlog. Caller
// must not hold m.mu.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.draining || m.now().Before(e.expiry) {
		m.mu.Unlock()
		return
	}
	log.Debugf("locker: %s hold on %s expired", e.state, id)
	if len(e.pending) == 0 {
		delete(m.entries, id)
		m.mu.Unlock()
		return
	}
	e.draining = true
	m.mu.Unlock()
	m.drain(id)
}

// drain applies the retired entry's backlog and removes it. Events arriving
// mid-drain land on pending and are picked up by the next pass, preserving
// arrival order. The entry keeps blocking acquisition until the backlog is
// empty. Caller must not hold m.mu.
func (m *Manager) drain(id string) {
	for {
		m.mu.Lock()
		e, ok := m.entries[id]
		if !ok || !e.draining {
			m.mu.Unlock()
			return
		}
		if len(e.pending) == 0 {
			delete(m.entries, id)
			m.mu.Unlock()
			return
		}
		pending := e.pending
		e.pending = nil
		applier := m.applier
		m.mu.Unlock()

		if applier == nil {
			log.Warnf("locker: dropping %d deferred events, no applier registered", len(pending))
			continue
		}
		for _, event := range pending {
			applier(event)
		}
	}
}
