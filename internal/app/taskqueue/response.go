package taskqueue

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// ErrTimeout is returned when a response did not arrive in time.
var ErrTimeout = errors.New("timed out")

// ErrorKind classifies an ErrorValue.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindAuth
	KindDevice
	KindTimeout
)

// Response is the outcome of a Search or ListDevices command.
type Response struct {
	TaskID TaskID
	Value  Value
}

// Value is the payload of a Response.
type Value interface {
	isValue()
}

// SearchResult holds the tracks found by a search.
type SearchResult struct {
	Tracks []track.Track
}

// DeviceList holds the devices visible to the session.
type DeviceList struct {
	Devices []player.Device
}

// ErrorValue reports a failed command.
type ErrorValue struct {
	Message string
	Kind    ErrorKind
}

func (SearchResult) isValue() {}
func (DeviceList) isValue()   {}
func (ErrorValue) isValue()   {}

// ErrorValueFrom converts err into an ErrorValue, keeping its class.
func ErrorValueFrom(err error) ErrorValue {
	kind := KindOther
	switch {
	case errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, player.ErrNotAuthenticated):
		kind = KindAuth
	case errors.Is(err, player.ErrNoDevice), errors.Is(err, player.ErrDeviceNotFound):
		kind = KindDevice
	}
	return ErrorValue{Message: err.Error(), Kind: kind}
}

// Err returns the error carried by the response, or nil.
func (r Response) Err() error {
	ev, ok := r.Value.(ErrorValue)
	if !ok {
		return nil
	}
	err := errors.New(ev.Message)
	switch ev.Kind {
	case KindTimeout:
		return errors.Mark(err, ErrTimeout)
	case KindAuth:
		return errors.Mark(err, player.ErrNotAuthenticated)
	case KindDevice:
		return errors.Mark(err, player.ErrNoDevice)
	}
	return errors.Mark(err, player.ErrTransport)
}
