package licensing

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultLedgerTTL is how long processed event ids are remembered.
	DefaultLedgerTTL = 72 * time.Hour

	// DefaultClaimTTL bounds how long an in-flight claim blocks redeliveries.
	// It outlives a request so a crashed worker's claim lapses on its own.
	DefaultClaimTTL = 2 * time.Minute
)

// ClaimState is the ledger state an event id was found in.
type ClaimState int

const (
	// ClaimAcquired means the caller now owns the id and must apply it.
	ClaimAcquired ClaimState = iota
	// ClaimPending means another delivery is processing the id.
	ClaimPending
	// ClaimDone means the id was applied.
	ClaimDone
)

func (s ClaimState) String() string {
	switch s {
	case ClaimAcquired:
		return "acquired"
	case ClaimPending:
		return "pending"
	case ClaimDone:
		return "done"
	}
	return "unknown"
}

// Ledger records provider event ids so redeliveries are acknowledged without
// being applied twice.
//
// Claim reserves an unknown id for ttl and otherwise reports the state it is
// in. Complete marks a claimed id as done for ttl. Release drops a pending
// claim so a later redelivery can retry.
type Ledger interface {
	Claim(ctx context.Context, id string, ttl time.Duration) (ClaimState, error)
	Complete(ctx context.Context, id string, ttl time.Duration) error
	Release(ctx context.Context, id string) error
}

type ledgerEntry struct {
	done    bool
	expires time.Time
}

// MemoryLedger is a process-local Ledger with lazy expiry.
type MemoryLedger struct {
	mu        sync.Mutex
	entries   map[string]ledgerEntry
	now       func() time.Time
	nextSweep int
}

// MemoryLedgerOption configures a MemoryLedger.
type MemoryLedgerOption func(*MemoryLedger)

// WithLedgerClock sets the time source used for expiry.
func WithLedgerClock(now func() time.Time) MemoryLedgerOption {
	return func(l *MemoryLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(opts ...MemoryLedgerOption) *MemoryLedger {
	l := &MemoryLedger{
		entries:   make(map[string]ledgerEntry),
		now:       time.Now,
		nextSweep: 1024,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLedger) Claim(_ context.Context, id string, ttl time.Duration) (ClaimState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[id]; ok && now.Before(e.expires) {
		if e.done {
			return ClaimDone, nil
		}
		return ClaimPending, nil
	}
	l.entries[id] = ledgerEntry{expires: now.Add(ttl)}
	l.sweep(now)
	return ClaimAcquired, nil
}

func (l *MemoryLedger) Complete(_ context.Context, id string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[id] = ledgerEntry{done: true, expires: l.now().Add(ttl)}
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[id]; ok && !e.done {
		delete(l.entries, id)
	}
	return nil
}

// sweep drops expired entries whenever the map doubles past the last sweep.
func (l *MemoryLedger) sweep(now time.Time) {
	if len(l.entries) < l.nextSweep {
		return
	}
	for id, e := range l.entries {
		if !now.Before(e.expires) {
			delete(l.entries, id)
		}
	}
	l.nextSweep = max(1024, 2*len(l.entries))
}
