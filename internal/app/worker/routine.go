package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/app/filter"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// routine refreshes the token and polls the status when their timers are
// due, then drops stale responses.
func (w *Worker) routine(ctx context.Context) error {
	var errs error
	now := w.now()

	if w.token != nil && due(w.lastTokenRefresh, w.cfg.TokenRefreshInterval, now) {
		if err := w.refreshToken(ctx); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}

	if due(w.lastStatusCheck, w.cfg.StatusInterval, now) {
		w.lastStatusCheck = now
		if err := w.updateStatus(ctx); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}

	if n := w.queue.Sweep(w.cfg.ResponseTTL); n > 0 {
		zlog.Debug().Msgf("dropped unclaimed responses: count=%d", n)
	}
	return errs
}

// refreshToken exchanges the refresh token and reconnects. A rejected
// refresh token ends the session; other failures are retried soon.
func (w *Worker) refreshToken(ctx context.Context) error {
	now := w.now()
	fresh, err := w.connector.Refresh(ctx, w.token)
	if err == nil {
		var remote Remote
		remote, err = w.connector.Connect(ctx, fresh)
		if err == nil {
			w.token = fresh
			w.remote = remote
			w.lastTokenRefresh = now
			zlog.Info().Msgf("access token refreshed: expiry=%s", fresh.Expiry.Format("15:04:05"))
			return nil
		}
	}

	if errors.Is(err, player.ErrNotAuthenticated) {
		zlog.Warn().Msgf("refresh token rejected, session dropped: error=%v", err)
		w.clearSession()
		w.setStatus(playback.Status{State: playback.StateNoAuth})
		return errors.Wrap(err, "refresh token")
	}

	// due again after tokenRetryDelay
	w.lastTokenRefresh = now.Add(tokenRetryDelay - w.cfg.TokenRefreshInterval)
	return errors.Wrap(err, "refresh token")
}

// updateStatus evaluates the state machine and starts a track when the
// device needs one.
func (w *Worker) updateStatus(ctx context.Context) error {
	if !w.authenticated() {
		w.setStatus(playback.Evaluate(false, false, nil))
		return nil
	}
	if w.deviceID == "" {
		w.setStatus(playback.Evaluate(true, false, nil))
		return nil
	}

	pc, err := w.remote.CurrentPlayback(ctx)
	if err != nil {
		switch {
		case errors.Is(err, player.ErrNotAuthenticated):
			w.setStatus(playback.Status{State: playback.StateNoAuth})
			// the access token expired early, refresh now
			w.lastTokenRefresh = time.Time{}
		case errors.Is(err, player.ErrNoDevice):
			w.setStatus(playback.Status{State: playback.StateNoDevice})
		}
		return errors.Wrap(err, "status check")
	}

	st := playback.Evaluate(true, true, pc)
	if st.State == playback.StateNeedsSong && w.waitingForPlayback() {
		return nil
	}
	w.setStatus(st)

	if st.State != playback.StateNeedsSong {
		return nil
	}
	return w.enqueueNext(ctx, pc)
}

// waitingForPlayback reports whether an auto-played track may still be
// starting on the device.
func (w *Worker) waitingForPlayback() bool {
	return w.status.Get().State == playback.StateEnqueuedAndWaiting &&
		w.now().Sub(w.enqueuedAt) < w.cfg.EnqueueGrace
}

// enqueueNext plays the next track from the list, or from the fallback
// providers when the list is empty.
func (w *Worker) enqueueNext(ctx context.Context, pc *player.Context) error {
	if entry, ok := w.list.NextUp(); ok {
		w.listChanged()
		if err := w.play(ctx, entry.Track); err != nil {
			w.list.Restore(entry)
			w.listChanged()
			return errors.Wrapf(err, "enqueue: track_id=%s", entry.Track.ID)
		}
		zlog.Info().Msgf("playing requested track: track_id=%s name=%s votes=%d", entry.Track.ID, entry.Track.Name, entry.Votes)
		return nil
	}

	return w.enqueueFallback(ctx, pc)
}

func (w *Worker) enqueueFallback(ctx context.Context, pc *player.Context) error {
	if w.fallback.Empty() || w.now().Before(w.fallbackAfter) {
		return nil
	}

	exclude := make(map[string]bool, len(w.recentFallback)+1)
	for _, id := range w.recentFallback {
		exclude[id] = true
	}
	if pc != nil && pc.Track != nil {
		exclude[pc.Track.ID] = true
	}

	candidates, err := w.fallback.GetCandidates(ctx, w.remote, w.played, exclude)
	if err != nil {
		w.fallbackAfter = w.now().Add(w.cfg.FallbackBackoff)
		return errors.Wrap(err, "fallback")
	}

	for _, c := range candidates {
		if result := w.filters.Execute(ctx, c.Track, filter.OriginFallback); !result.Accepted {
			zlog.Debug().Msgf("fallback candidate rejected: track_id=%s reason=%s", c.Track.ID, result.Code)
			continue
		}
		if err := w.play(ctx, c.Track); err != nil {
			return errors.Wrapf(err, "fallback: track_id=%s", c.Track.ID)
		}
		w.rememberFallback(c.Track.ID)
		zlog.Info().Msgf("playing fallback track: track_id=%s name=%s provider=%s", c.Track.ID, c.Track.Name, c.DisplayName)
		return nil
	}

	zlog.Warn().Msg("no suitable fallback candidates")
	w.fallbackAfter = w.now().Add(w.cfg.FallbackBackoff)
	return nil
}

// play starts t and moves to EnqueuedAndWaiting.
func (w *Worker) play(ctx context.Context, t track.Track) error {
	if err := w.remote.Play(ctx, w.deviceID, t); err != nil {
		return err
	}
	w.enqueuedAt = w.now()
	w.played = append(w.played, t)
	if len(w.played) > seedSize {
		w.played = w.played[len(w.played)-seedSize:]
	}
	song := t
	w.setStatus(playback.Status{State: playback.StateEnqueuedAndWaiting, Song: &song})
	return nil
}

func (w *Worker) rememberFallback(id string) {
	w.recentFallback = append(w.recentFallback, id)
	if len(w.recentFallback) > recentFallbackSize {
		w.recentFallback = w.recentFallback[len(w.recentFallback)-recentFallbackSize:]
	}
}
