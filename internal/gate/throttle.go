package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounceWindow is the minimum interval between two persisted events
// for the same identity.
const DefaultDebounceWindow = 60 * time.Second

// Throttle decides whether a verdict for an identity is persisted now.
//
// Entries are keyed by identity id and live as long as the owning session.
// Nothing is evicted; the number of distinct workers passing one gate is
// small enough that the map stays bounded in practice.
type Throttle struct {
	window time.Duration

	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		last:   make(map[uuid.UUID]time.Time),
	}
}

// ShouldRecord reports whether more than the window has elapsed since the
// last recorded event for id. A true result stamps now as the new last
// recorded time before returning, so a second call in the same tick fails.
func (t *Throttle) ShouldRecord(id uuid.UUID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[id]; ok && now.Sub(last) <= t.window {
		return false
	}
	t.last[id] = now
	return true
}

// LastRecorded returns the last recorded time for id.
func (t *Throttle) LastRecorded(id uuid.UUID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[id]
	return last, ok
}
