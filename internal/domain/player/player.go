// Package player provides the remote player domain types: devices, the
// playback context reported by the remote service, and the error taxonomy
// shared by everything that talks to it.
package player

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/jukeula/internal/domain/track"
)

var (
	// ErrNotAuthenticated is returned when no authenticated session exists
	// or the remote service rejected the session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoDevice is returned when no active device is selected or the
	// remote service reports no active device.
	ErrNoDevice = errors.New("no active device")
	// ErrDeviceNotFound is returned when a named device is not listed.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrTrackNotFound is returned when the remote service does not know a track.
	ErrTrackNotFound = errors.New("track not found")
	// ErrTransport marks network and remote-service failures.
	ErrTransport = errors.New("remote service failure")
)

// Device is a playback device known to the remote service.
type Device struct {
	ID         string
	Name       string
	Type       string
	Active     bool
	Restricted bool
	Volume     int
}

// Context is a snapshot of what the remote service is playing.
type Context struct {
	IsPlaying  bool
	ProgressMs *int         // nil when the service does not report progress
	Track      *track.Track // nil when nothing is loaded
}

// Progress returns the reported progress, treating an absent value as zero.
func (c *Context) Progress() int {
	if c == nil || c.ProgressMs == nil {
		return 0
	}
	return *c.ProgressMs
}

// FindDevice returns the device with the given ID.
func FindDevice(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
