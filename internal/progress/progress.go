package progress

import (
	"sync"

	"craefto/internal/stage"
)

// Compute derives overall run progress from stage state: the weight of every
// completed stage plus the running stage's weight scaled by its local
// progress. The result is floored and clamped to 0..100.
func Compute(stages []stage.Stage) int {
	total := 0
	partial := 0
	for _, s := range stages {
		switch s.Status {
		case stage.StatusCompleted:
			total += s.Weight
		case stage.StatusRunning:
			partial += s.Weight * clamp(s.Progress)
		}
	}
	return clamp(total + partial/100)
}

// Tracker reports progress that never decreases within a run.
type Tracker struct {
	mu      sync.Mutex
	current int
}

// Observe folds a newly computed value into the tracker and returns the
// monotonic result.
func (t *Tracker) Observe(value int) int {
	value = clamp(value)
	t.mu.Lock()
	defer t.mu.Unlock()
	if value > t.current {
		t.current = value
	}
	return t.current
}

// Complete pins progress to 100.
func (t *Tracker) Complete() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = 100
	return t.current
}

// Value returns the last reported progress.
func (t *Tracker) Value() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Reset starts a new run at zero.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = 0
	t.mu.Unlock()
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
