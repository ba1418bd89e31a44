package observability

import (
	"sync"
	"time"
)

// Status tracks where a single pipeline run is. It is safe for concurrent use.
type Status struct {
	mu      sync.RWMutex
	stage   string
	step    int
	total   int
	started time.Time
}

// Snapshot is a copy of a Status at one point in time.
type Snapshot struct {
	Stage   string
	Step    int
	Total   int
	Elapsed time.Duration
}

func NewStatus() *Status {
	return &Status{stage: "idle", started: time.Now()}
}

// SetStage records a stage change and clears step progress.
func (s *Status) SetStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	s.step, s.total = 0, 0
}

func (s *Status) SetProgress(step, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step, s.total = step, total
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Stage:   s.stage,
		Step:    s.step,
		Total:   s.total,
		Elapsed: time.Since(s.started).Round(time.Second),
	}
}
