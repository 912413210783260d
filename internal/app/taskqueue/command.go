package taskqueue

import (
	"fmt"

	"golang.org/x/oauth2"
)

// TaskID correlates a command with its response. IDs are strictly increasing
// and never reused.
type TaskID uint64

// Command is a unit of work executed by the worker.
type Command interface {
	fmt.Stringer
	isCommand()
}

type (
	// Resume resumes playback on the active device.
	Resume struct{}
	// Pause pauses playback on the active device.
	Pause struct{}
	// Skip skips to the next track on the active device.
	Skip struct{}
	// Request adds a vote for a track.
	Request struct{ TrackID string }
	// Downvote removes a vote from a track.
	Downvote struct{ TrackID string }
	// Search looks up tracks; the result is published under TaskID.
	Search struct {
		Query  string
		TaskID TaskID
	}
	// ListDevices lists playback devices; the result is published under TaskID.
	ListDevices struct{ TaskID TaskID }
	// SetActiveDevice selects the device used for playback.
	SetActiveDevice struct{ DeviceID string }
	// ClearDevice forgets the active device.
	ClearDevice struct{}
	// SetAuthToken installs a session built from Token.
	SetAuthToken struct{ Token *oauth2.Token }
	// ClearAuth drops the session.
	ClearAuth struct{}
)

func (Resume) isCommand()          {}
func (Pause) isCommand()           {}
func (Skip) isCommand()            {}
func (Request) isCommand()         {}
func (Downvote) isCommand()        {}
func (Search) isCommand()          {}
func (ListDevices) isCommand()     {}
func (SetActiveDevice) isCommand() {}
func (ClearDevice) isCommand()     {}
func (SetAuthToken) isCommand()    {}
func (ClearAuth) isCommand()       {}

func (Resume) String() string            { return "resume" }
func (Pause) String() string             { return "pause" }
func (Skip) String() string              { return "skip" }
func (c Request) String() string         { return "request(" + c.TrackID + ")" }
func (c Downvote) String() string        { return "downvote(" + c.TrackID + ")" }
func (c Search) String() string          { return fmt.Sprintf("search(%q, task=%d)", c.Query, c.TaskID) }
func (c ListDevices) String() string     { return fmt.Sprintf("list_devices(task=%d)", c.TaskID) }
func (c SetActiveDevice) String() string { return "set_active_device(" + c.DeviceID + ")" }
func (ClearDevice) String() string       { return "clear_device" }

// String omits the token itself.
func (SetAuthToken) String() string { return "set_auth_token" }
func (ClearAuth) String() string    { return "clear_auth" }
