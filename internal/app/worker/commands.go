package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/app/filter"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
)

// execute runs one command against the session.
func (w *Worker) execute(ctx context.Context, cmd taskqueue.Command) error {
	switch c := cmd.(type) {
	case taskqueue.Resume:
		return w.transport(ctx, "resume", w.remoteResume)
	case taskqueue.Pause:
		return w.transport(ctx, "pause", w.remotePause)
	case taskqueue.Skip:
		return w.transport(ctx, "skip", w.remoteSkip)
	case taskqueue.Request:
		return w.request(ctx, c.TrackID)
	case taskqueue.Downvote:
		w.downvote(c.TrackID)
		return nil
	case taskqueue.Search:
		return w.search(ctx, c)
	case taskqueue.ListDevices:
		return w.listDevices(ctx, c)
	case taskqueue.SetActiveDevice:
		return w.setActiveDevice(ctx, c.DeviceID)
	case taskqueue.ClearDevice:
		w.deviceID = ""
		w.forceStatusCheck()
		zlog.Info().Msg("active device cleared")
		return nil
	case taskqueue.SetAuthToken:
		return w.setAuthToken(ctx, c)
	case taskqueue.ClearAuth:
		w.clearSession()
		zlog.Info().Msg("session cleared")
		return nil
	default:
		return errors.Newf("unknown command: %T", cmd)
	}
}

func (w *Worker) remoteResume(ctx context.Context) error { return w.remote.Resume(ctx, w.deviceID) }
func (w *Worker) remotePause(ctx context.Context) error  { return w.remote.Pause(ctx, w.deviceID) }
func (w *Worker) remoteSkip(ctx context.Context) error   { return w.remote.Skip(ctx, w.deviceID) }

// transport runs a playback control and polls the status right after.
func (w *Worker) transport(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := w.requireDevice(); err != nil {
		return errors.Wrap(err, name)
	}
	if err := fn(ctx); err != nil {
		return errors.Wrap(err, name)
	}
	w.forceStatusCheck()
	return nil
}

// request resolves the track, runs the filters and adds a vote.
func (w *Worker) request(ctx context.Context, trackID string) error {
	if err := w.requireSession(); err != nil {
		return errors.Wrap(err, "request")
	}

	t, err := w.remote.GetTrack(ctx, trackID)
	if err != nil {
		if errors.Is(err, player.ErrTrackNotFound) {
			zlog.Info().Msgf("requested track not found: track_id=%s", trackID)
			return nil
		}
		return errors.Wrap(err, "request")
	}

	if result := w.filters.Execute(ctx, *t, filter.OriginRequest); !result.Accepted {
		zlog.Info().Msgf("request rejected: track_id=%s name=%s reason=%s", t.ID, t.Name, result.Code)
		return nil
	}

	votes := w.list.Add(*t)
	zlog.Info().Msgf("track requested: track_id=%s name=%s votes=%d", t.ID, t.Name, votes)
	w.listChanged()
	return nil
}

func (w *Worker) downvote(trackID string) {
	votes, evicted, ok := w.list.Downvote(trackID)
	if !ok {
		zlog.Debug().Msgf("downvote for unknown track ignored: track_id=%s", trackID)
		return
	}
	if evicted {
		zlog.Info().Msgf("track evicted: track_id=%s votes=%d", trackID, votes)
	} else {
		zlog.Debug().Msgf("track downvoted: track_id=%s votes=%d", trackID, votes)
	}
	w.listChanged()
}

// search always publishes a response for the task.
func (w *Worker) search(ctx context.Context, c taskqueue.Search) error {
	value, err := w.runSearch(ctx, c.Query)
	w.respond(c.TaskID, value, err)
	return errors.Wrapf(err, "search: query=%q", c.Query)
}

func (w *Worker) runSearch(ctx context.Context, query string) (taskqueue.Value, error) {
	if err := w.requireSession(); err != nil {
		return nil, err
	}
	tracks, err := w.remote.Search(ctx, query, w.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	return taskqueue.SearchResult{Tracks: tracks}, nil
}

// listDevices always publishes a response for the task.
func (w *Worker) listDevices(ctx context.Context, c taskqueue.ListDevices) error {
	value, err := w.runListDevices(ctx)
	w.respond(c.TaskID, value, err)
	return errors.Wrap(err, "list devices")
}

func (w *Worker) runListDevices(ctx context.Context) (taskqueue.Value, error) {
	if err := w.requireSession(); err != nil {
		return nil, err
	}
	devices, err := w.remote.Devices(ctx)
	if err != nil {
		return nil, err
	}
	return taskqueue.DeviceList{Devices: devices}, nil
}

func (w *Worker) respond(id taskqueue.TaskID, value taskqueue.Value, err error) {
	if err != nil {
		value = taskqueue.ErrorValueFrom(err)
	}
	w.queue.Publish(taskqueue.Response{TaskID: id, Value: value})
}

// setActiveDevice selects a device listed by the session.
func (w *Worker) setActiveDevice(ctx context.Context, deviceID string) error {
	if err := w.requireSession(); err != nil {
		return errors.Wrap(err, "set active device")
	}
	devices, err := w.remote.Devices(ctx)
	if err != nil {
		return errors.Wrap(err, "set active device")
	}
	d, ok := player.FindDevice(devices, deviceID)
	if !ok {
		return errors.Wrapf(player.ErrDeviceNotFound, "set active device: id=%s", deviceID)
	}

	w.deviceID = d.ID
	w.forceStatusCheck()
	zlog.Info().Msgf("active device set: id=%s name=%s type=%s", d.ID, d.Name, d.Type)
	return nil
}

// setAuthToken installs a session. A token without an access token is
// refreshed on the next routine step.
func (w *Worker) setAuthToken(ctx context.Context, c taskqueue.SetAuthToken) error {
	if c.Token == nil {
		return errors.Wrap(player.ErrNotAuthenticated, "set auth token: empty token")
	}
	remote, err := w.connector.Connect(ctx, c.Token)
	if err != nil {
		return errors.Wrap(err, "set auth token")
	}

	w.token = c.Token
	w.remote = remote
	if c.Token.AccessToken == "" {
		w.lastTokenRefresh = time.Time{}
	} else {
		w.lastTokenRefresh = w.now()
	}
	w.forceStatusCheck()
	zlog.Info().Msgf("session installed: expiry=%s", c.Token.Expiry.Format(time.RFC3339))
	return nil
}

func (w *Worker) clearSession() {
	w.token = nil
	w.remote = nil
	w.deviceID = ""
	w.lastTokenRefresh = time.Time{}
	w.forceStatusCheck()
}
