// Package playback tracks the playback state of the remote player.
package playback

import "github.com/cockroachdb/errors"

// State represents the playback state.
type State int

const (
	StateUnknown            State = iota // Not evaluated yet
	StateNoAuth                          // No authenticated session
	StateNoDevice                        // Session but no active device
	StateNeedsSong                       // Device is idle and wants a track
	StatePlaying                         // Track is playing
	StatePaused                          // Track is paused mid-way
	StateEnqueuedAndWaiting              // A track was started, waiting for the player to report it
)

var stateNames = map[State]string{
	StateUnknown:            "Unknown",
	StateNoAuth:             "NoAuth",
	StateNoDevice:           "NoDevice",
	StateNeedsSong:          "NeedsSong",
	StatePlaying:            "Playing",
	StatePaused:             "Paused",
	StateEnqueuedAndWaiting: "EnqueuedAndWaiting",
}

// String returns the string representation of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return errors.Newf("unknown playback state: %q", string(b))
}
