// Package connect serves the jukebox over Connect RPC. Messages are protobuf
// well-known types so no generated code is needed on either side.
package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/jukeula/internal/app/notification"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// ServiceName is the fully qualified service name.
const ServiceName = "jukebox.v1.JukeboxService"

// Procedure paths.
const (
	ResumeProcedure      = "/" + ServiceName + "/Resume"
	PauseProcedure       = "/" + ServiceName + "/Pause"
	SkipProcedure        = "/" + ServiceName + "/Skip"
	ClearDeviceProcedure = "/" + ServiceName + "/ClearDevice"
	RequestProcedure     = "/" + ServiceName + "/Request"
	DownvoteProcedure    = "/" + ServiceName + "/Downvote"
	SetDeviceProcedure   = "/" + ServiceName + "/SetDevice"
	SearchProcedure      = "/" + ServiceName + "/Search"
	ListDevicesProcedure = "/" + ServiceName + "/ListDevices"
	GetStatusProcedure   = "/" + ServiceName + "/GetStatus"
	GetQueueProcedure    = "/" + ServiceName + "/GetQueue"
)

// Jukebox is the producer-side API the service exposes.
type Jukebox interface {
	Resume()
	Pause()
	Skip()
	ClearDevice()
	Request(trackID string) error
	Downvote(trackID string) error
	SetDevice(deviceID string) error
	Search(ctx context.Context, query string) ([]track.Track, error)
	ListDevices(ctx context.Context) ([]player.Device, error)
	Status() playback.Status
	Queue() []songlist.Entry
}

// Service implements JukeboxService.
type Service struct {
	jukebox Jukebox
}

// NewService creates a new Service.
func NewService(jukebox Jukebox) *Service {
	return &Service{jukebox: jukebox}
}

// Handler returns the path prefix and the handler serving every procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, s.Resume, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.Pause, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, s.Skip, opts...))
	mux.Handle(ClearDeviceProcedure, connect.NewUnaryHandler(ClearDeviceProcedure, s.ClearDevice, opts...))
	mux.Handle(RequestProcedure, connect.NewUnaryHandler(RequestProcedure, s.Request, opts...))
	mux.Handle(DownvoteProcedure, connect.NewUnaryHandler(DownvoteProcedure, s.Downvote, opts...))
	mux.Handle(SetDeviceProcedure, connect.NewUnaryHandler(SetDeviceProcedure, s.SetDevice, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, s.Search, opts...))
	mux.Handle(ListDevicesProcedure, connect.NewUnaryHandler(ListDevicesProcedure, s.ListDevices, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(GetQueueProcedure, connect.NewUnaryHandler(GetQueueProcedure, s.GetQueue, opts...))
	return "/" + ServiceName + "/", mux
}

func empty() *connect.Response[emptypb.Empty] {
	return connect.NewResponse(&emptypb.Empty{})
}

// Resume resumes playback.
func (s *Service) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	s.jukebox.Resume()
	return empty(), nil
}

// Pause pauses playback.
func (s *Service) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	s.jukebox.Pause()
	return empty(), nil
}

// Skip skips the current track.
func (s *Service) Skip(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	s.jukebox.Skip()
	return empty(), nil
}

// ClearDevice forgets the active device.
func (s *Service) ClearDevice(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	s.jukebox.ClearDevice()
	return empty(), nil
}

// Request votes for a track.
func (s *Service) Request(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.jukebox.Request(req.Msg.GetValue()); err != nil {
		return nil, toConnectError(err)
	}
	return empty(), nil
}

// Downvote removes a vote from a track.
func (s *Service) Downvote(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.jukebox.Downvote(req.Msg.GetValue()); err != nil {
		return nil, toConnectError(err)
	}
	return empty(), nil
}

// SetDevice selects the playback device.
func (s *Service) SetDevice(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	if err := s.jukebox.SetDevice(req.Msg.GetValue()); err != nil {
		return nil, toConnectError(err)
	}
	return empty(), nil
}

// Search searches tracks and returns a list of songs.
func (s *Service) Search(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.ListValue], error) {
	tracks, err := s.jukebox.Search(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, toConnectError(err)
	}
	return listResponse(notification.NewSongs(tracks))
}

// ListDevices lists the devices of the session.
func (s *Service) ListDevices(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.ListValue], error) {
	devices, err := s.jukebox.ListDevices(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return listResponse(notification.NewDevices(devices))
}

// GetStatus returns the playback status.
func (s *Service) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	st, err := toStruct(notification.NewStatus(s.jukebox.Status()))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// GetQueue returns the list ordered by votes.
func (s *Service) GetQueue(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.ListValue], error) {
	return listResponse(notification.NewQueue(s.jukebox.Queue()))
}

func listResponse(v any) (*connect.Response[structpb.ListValue], error) {
	list, err := toList(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
	}
	return connect.NewResponse(list), nil
}
