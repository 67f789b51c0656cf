package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func TestThrottleWithinWindow(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	id := uuid.New()

	first := th.ShouldRecord(id, t0)
	second := th.ShouldRecord(id, t0.Add(45*time.Second))
	if !first || second {
		t.Fatalf("calls 45s apart = (%v, %v), want (true, false)", first, second)
	}
}

func TestThrottleAfterWindow(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	id := uuid.New()

	first := th.ShouldRecord(id, t0)
	second := th.ShouldRecord(id, t0.Add(61*time.Second))
	if !first || !second {
		t.Fatalf("calls 61s apart = (%v, %v), want (true, true)", first, second)
	}
}

func TestThrottleScenario(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	x := uuid.New()

	if !th.ShouldRecord(x, t0) {
		t.Fatal("first verdict not recorded")
	}
	if th.ShouldRecord(x, t0.Add(45*time.Second)) {
		t.Fatal("verdict at 45s recorded")
	}
	if last, _ := th.LastRecorded(x); !last.Equal(t0) {
		t.Fatalf("suppressed call moved the timestamp to %v", last)
	}
	if !th.ShouldRecord(x, t0.Add(61*time.Second)) {
		t.Fatal("verdict at 61s not recorded")
	}
	if last, _ := th.LastRecorded(x); !last.Equal(t0.Add(61 * time.Second)) {
		t.Fatalf("timestamp = %v, want t0+61s", last)
	}
	// The window restarts from 61s.
	if th.ShouldRecord(x, t0.Add(100*time.Second)) {
		t.Fatal("verdict at 100s recorded")
	}
}

func TestThrottleExactWindowBoundary(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	id := uuid.New()
	th.ShouldRecord(id, t0)
	if th.ShouldRecord(id, t0.Add(60*time.Second)) {
		t.Fatal("recorded at exactly the window; the rule is strictly greater")
	}
}

func TestThrottleIdentitiesIndependent(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	a, b := uuid.New(), uuid.New()
	if !th.ShouldRecord(a, t0) || !th.ShouldRecord(b, t0.Add(time.Second)) {
		t.Fatal("distinct identities throttled together")
	}
}

func TestThrottleConcurrentSameTick(t *testing.T) {
	th := NewThrottle(DefaultDebounceWindow)
	id := uuid.New()

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.ShouldRecord(id, t0) {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()
	if passed.Load() != 1 {
		t.Fatalf("%d calls passed in the same tick, want 1", passed.Load())
	}
}
