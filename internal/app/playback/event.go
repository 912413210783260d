package playback

// Event describes a state transition recorded by the Store.
type Event struct {
	From   State
	To     State
	Status Status // Status after the transition
}

// StateChanged reports whether the state itself changed, as opposed to only
// the song or progress.
func (e Event) StateChanged() bool {
	return e.From != e.To
}
