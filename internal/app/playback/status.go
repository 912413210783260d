package playback

import (
	"sync"

	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// Status is the externally visible playback status.
type Status struct {
	State      State
	Song       *track.Track
	ProgressMs *int
}

// Equal compares two statuses by state, song ID and progress.
func (s Status) Equal(o Status) bool {
	if s.State != o.State {
		return false
	}
	if (s.Song == nil) != (o.Song == nil) {
		return false
	}
	if s.Song != nil && s.Song.ID != o.Song.ID {
		return false
	}
	if (s.ProgressMs == nil) != (o.ProgressMs == nil) {
		return false
	}
	return s.ProgressMs == nil || *s.ProgressMs == *o.ProgressMs
}

// Evaluate derives the status from the session, device and the remote
// playback context. A missing context is treated as an idle device.
func Evaluate(authenticated, hasDevice bool, pc *player.Context) Status {
	if !authenticated {
		return Status{State: StateNoAuth}
	}
	if !hasDevice {
		return Status{State: StateNoDevice}
	}
	if pc == nil {
		return Status{State: StateNeedsSong}
	}

	st := Status{Song: pc.Track, ProgressMs: pc.ProgressMs}
	switch {
	case pc.IsPlaying:
		st.State = StatePlaying
	case pc.Progress() > 0:
		st.State = StatePaused
	default:
		st.State = StateNeedsSong
	}
	return st
}

// Store holds the latest status for readers outside the worker.
type Store struct {
	mu     sync.RWMutex
	status Status
}

// NewStore creates a store in StateUnknown.
func NewStore() *Store {
	return &Store{status: Status{State: StateUnknown}}
}

// Get returns the current status.
func (s *Store) Get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Set replaces the status. It reports false and leaves the store untouched
// when st equals the current status.
func (s *Store) Set(st Status) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Equal(st) {
		return Event{}, false
	}
	ev := Event{From: s.status.State, To: st.State, Status: st}
	s.status = st
	return ev, true
}
