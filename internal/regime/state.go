package regime

import (
	"sync"
	"time"
)

// State remembers the last regime value and when a notification was last
// attempted. It lives for the process and is shared by every evaluation; all
// access goes through its mutex.
type State struct {
	mu             sync.Mutex
	last           bool
	lastNotifiedAt time.Time
}

// Snapshot is a copy of State taken under its lock.
type Snapshot struct {
	Last           bool      `json:"last_value"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

// NewState starts with "not altseason" and no prior notification.
func NewState() *State {
	return &State{}
}

// RestoreState builds a state with a known prior value.
func RestoreState(last bool, lastNotifiedAt time.Time) *State {
	return &State{last: last, lastNotifiedAt: lastNotifiedAt}
}

// Snapshot copies the current values.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Last: s.last, LastNotifiedAt: s.lastNotifiedAt}
}

// claim decides whether this evaluation must notify and, if so, records the
// attempt before releasing the lock. Concurrent callers observing the same
// transition therefore see the updated value and do not notify twice.
func (s *State) claim(value, force bool, now time.Time) (attempt, transitioned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transitioned = value != s.last
	if !transitioned && !force {
		return false, false
	}
	s.last = value
	s.lastNotifiedAt = now
	return true, transitioned
}
