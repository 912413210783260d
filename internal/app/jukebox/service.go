// Package jukebox is the producer side of the task queue. HTTP and RPC
// handlers submit commands through it and read the shared status and list.
package jukebox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// ErrInvalidArgument is returned for empty ids and queries.
var ErrInvalidArgument = errors.New("invalid argument")

// Config holds producer-side limits.
type Config struct {
	WaitTimeout      time.Duration // How long Search and ListDevices wait for the worker
	SearchRatePerSec float64
	SearchBurst      int
}

// Service submits commands and answers reads without touching the remote.
type Service struct {
	queue   *taskqueue.Queue
	list    *songlist.List
	status  *playback.Store
	timeout time.Duration
	limiter *rate.Limiter
}

// New creates a service over the shared queue, list and status store.
func New(cfg Config, queue *taskqueue.Queue, list *songlist.List, status *playback.Store) *Service {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.SearchRatePerSec > 0 {
		limit = rate.Limit(cfg.SearchRatePerSec)
	}
	if cfg.SearchBurst <= 0 {
		cfg.SearchBurst = 1
	}
	return &Service{
		queue:   queue,
		list:    list,
		status:  status,
		timeout: cfg.WaitTimeout,
		limiter: rate.NewLimiter(limit, cfg.SearchBurst),
	}
}

func (s *Service) submit(cmd taskqueue.Command) {
	zlog.Debug().Msgf("command submitted: command=%s", cmd)
	s.queue.Enqueue(cmd)
}

// Resume resumes playback on the active device.
func (s *Service) Resume() { s.submit(taskqueue.Resume{}) }

// Pause pauses playback on the active device.
func (s *Service) Pause() { s.submit(taskqueue.Pause{}) }

// Skip skips the current track.
func (s *Service) Skip() { s.submit(taskqueue.Skip{}) }

// ClearDevice forgets the active device.
func (s *Service) ClearDevice() { s.submit(taskqueue.ClearDevice{}) }

// ClearAuth drops the session.
func (s *Service) ClearAuth() { s.submit(taskqueue.ClearAuth{}) }

// Request adds a vote for trackID. The track is resolved by the worker.
func (s *Service) Request(trackID string) error {
	if trackID == "" {
		return errors.Wrap(ErrInvalidArgument, "track id is required")
	}
	s.submit(taskqueue.Request{TrackID: trackID})
	return nil
}

// Downvote removes a vote from trackID.
func (s *Service) Downvote(trackID string) error {
	if trackID == "" {
		return errors.Wrap(ErrInvalidArgument, "track id is required")
	}
	s.submit(taskqueue.Downvote{TrackID: trackID})
	return nil
}

// SetDevice selects the device that plays.
func (s *Service) SetDevice(deviceID string) error {
	if deviceID == "" {
		return errors.Wrap(ErrInvalidArgument, "device id is required")
	}
	s.submit(taskqueue.SetActiveDevice{DeviceID: deviceID})
	return nil
}

// SetAuthToken installs a session built from token.
func (s *Service) SetAuthToken(token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return errors.Wrap(ErrInvalidArgument, "token is empty")
	}
	s.submit(taskqueue.SetAuthToken{Token: token})
	return nil
}

// Search asks the worker to search and waits for the result.
func (s *Service) Search(ctx context.Context, query string) ([]track.Track, error) {
	if query == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "query is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "search rate limit")
	}

	id := s.queue.NextTaskID()
	s.submit(taskqueue.Search{Query: query, TaskID: id})

	resp := s.queue.Wait(ctx, id, s.timeout)
	if err := resp.Err(); err != nil {
		return nil, errors.Wrapf(err, "search: query=%q", query)
	}
	result, ok := resp.Value.(taskqueue.SearchResult)
	if !ok {
		return nil, errors.Newf("search: unexpected response %T", resp.Value)
	}
	return result.Tracks, nil
}

// ListDevices asks the worker for the devices of the session.
func (s *Service) ListDevices(ctx context.Context) ([]player.Device, error) {
	id := s.queue.NextTaskID()
	s.submit(taskqueue.ListDevices{TaskID: id})

	resp := s.queue.Wait(ctx, id, s.timeout)
	if err := resp.Err(); err != nil {
		return nil, errors.Wrap(err, "list devices")
	}
	result, ok := resp.Value.(taskqueue.DeviceList)
	if !ok {
		return nil, errors.Newf("list devices: unexpected response %T", resp.Value)
	}
	return result.Devices, nil
}

// Status returns the latest published playback status.
func (s *Service) Status() playback.Status {
	return s.status.Get()
}

// Queue returns the list ordered by votes.
func (s *Service) Queue() []songlist.Entry {
	return s.list.Snapshot()
}
