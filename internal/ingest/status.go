package ingest

import (
	"sync"
	"time"
)

// State of the ingestion loop.
type State string

const (
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateStopped      State = "stopped"
)

// Status is the loop's externally visible health. Safe for concurrent use.
type Status struct {
	mu          sync.RWMutex
	state       State
	session     string
	accepted    uint64
	discarded   uint64
	lastFrameAt time.Time
	lastError   string
}

// StatusSnapshot is a plain copy of Status.
type StatusSnapshot struct {
	State           State      `json:"state"`
	Session         string     `json:"session,omitempty"`
	FramesAccepted  uint64     `json:"frames_accepted"`
	FramesDiscarded uint64     `json:"frames_discarded"`
	LastFrameAt     *time.Time `json:"last_frame_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

func NewStatus() *Status {
	return &Status{state: StateStarting}
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		State:           s.state,
		Session:         s.session,
		FramesAccepted:  s.accepted,
		FramesDiscarded: s.discarded,
		LastError:       s.lastError,
	}
	if !s.lastFrameAt.IsZero() {
		t := s.lastFrameAt
		snap.LastFrameAt = &t
	}
	return snap
}

// Healthy reports whether counts are currently being updated.
func (s *Status) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateRunning
}

func (s *Status) begin(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateRunning
	s.session = session
}

func (s *Status) set(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *Status) frame(at time.Time, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if accepted {
		s.accepted++
	} else {
		s.discarded++
	}
	s.lastFrameAt = at
}
