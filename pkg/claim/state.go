package claim

import (
	"context"
	"sync"
	"time"

	"github.com/roomkeeper/roomkeeper/pkg/identity"
)

// State is the claim worker's day-scoped bookkeeping. It is never shared with
// presence state.
type State struct {
	// LastClaimTime is nil until the first claim call of the day.
	LastClaimTime *time.Time `json:"last_claim_time,omitempty"`
	// MaxHPReachedToday trips the breaker until the day changes.
	MaxHPReachedToday bool `json:"max_hp_reached_today"`
	// LastCheckDay is the day of month of the last tick, 0 when unset.
	LastCheckDay int `json:"last_check_day"`
}

// Attempt is one claim call for the ledger.
type Attempt struct {
	At     time.Time
	Result identity.Result
}

// StateStore persists State between process runs.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Ledger records claim attempts. Stores may implement it alongside StateStore.
type Ledger interface {
	Record(ctx context.Context, a Attempt) error
}

// MemoryStore keeps State in memory. It also implements Ledger.
type MemoryStore struct {
	mu       sync.Mutex
	state    State
	attempts []Attempt
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone(), nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.clone()
	return nil
}

// Record appends a to the in-memory ledger.
func (m *MemoryStore) Record(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

// Attempts returns the recorded attempts in order.
func (m *MemoryStore) Attempts() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attempt(nil), m.attempts...)
}

func (s State) clone() State {
	if s.LastClaimTime != nil {
		t := *s.LastClaimTime
		s.LastClaimTime = &t
	}
	return s
}
