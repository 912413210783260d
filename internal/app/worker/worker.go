// Package worker runs the single loop that owns the remote playback session.
// Producers reach it only through the task queue.
package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/jukeula/internal/app/fallback"
	"github.com/osa030/jukeula/internal/app/filter"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// Remote is an authenticated session with the playback service.
type Remote interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
	Devices(ctx context.Context) ([]player.Device, error)
	Pause(ctx context.Context, deviceID string) error
	Resume(ctx context.Context, deviceID string) error
	Skip(ctx context.Context, deviceID string) error
	Play(ctx context.Context, deviceID string, t track.Track) error
	CurrentPlayback(ctx context.Context) (*player.Context, error)
	GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error)
}

// Connector builds sessions from OAuth tokens.
type Connector interface {
	Connect(ctx context.Context, token *oauth2.Token) (Remote, error)
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// Notifier is told about status and list changes.
type Notifier interface {
	StatusChanged(st playback.Status)
	QueueChanged(entries []songlist.Entry)
}

// Config holds worker timing.
type Config struct {
	StatusInterval       time.Duration // Poll interval for the remote status
	TokenRefreshInterval time.Duration // Access token refresh interval
	IdleInterval         time.Duration // Sleep when there is nothing to do
	ResponseTTL          time.Duration // Unclaimed responses are dropped after this
	SearchLimit          int
	EnqueueGrace         time.Duration // NeedsSong polls are ignored this long after an auto-play
	FallbackBackoff      time.Duration // Wait after a fallback attempt found nothing
}

func (c *Config) setDefaults() {
	if c.StatusInterval <= 0 {
		c.StatusInterval = time.Second
	}
	if c.TokenRefreshInterval <= 0 {
		c.TokenRefreshInterval = 5 * time.Minute
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 50 * time.Millisecond
	}
	if c.ResponseTTL <= 0 {
		c.ResponseTTL = time.Minute
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 40
	}
	if c.EnqueueGrace < 0 {
		c.EnqueueGrace = 0
	}
	if c.FallbackBackoff <= 0 {
		c.FallbackBackoff = 30 * time.Second
	}
}

// tokenRetryDelay is how soon a failed token refresh is retried.
const tokenRetryDelay = 30 * time.Second

// recentFallbackSize bounds the fallback history used to avoid repeats.
const recentFallbackSize = 20

// seedSize is how many recently played tracks seed the fallback providers.
const seedSize = 3

// Dependencies are the collaborators shared with producers.
type Dependencies struct {
	Queue     *taskqueue.Queue
	List      *songlist.List
	Status    *playback.Store
	Connector Connector
	Filters   *filter.Chain   // optional
	Fallback  *fallback.Chain // optional
	Notifier  Notifier        // optional
}

// Worker executes commands and keeps the playback going.
type Worker struct {
	cfg       Config
	queue     *taskqueue.Queue
	list      *songlist.List
	status    *playback.Store
	connector Connector
	filters   *filter.Chain
	fallback  *fallback.Chain
	notifier  Notifier
	now       func() time.Time

	// Owned by the loop goroutine.
	token            *oauth2.Token
	remote           Remote
	deviceID         string
	lastStatusCheck  time.Time
	lastTokenRefresh time.Time
	enqueuedAt       time.Time
	fallbackAfter    time.Time
	recentFallback   []string
	played           []track.Track
}

// New creates a worker.
func New(cfg Config, deps Dependencies) *Worker {
	cfg.setDefaults()

	w := &Worker{
		cfg:       cfg,
		queue:     deps.Queue,
		list:      deps.List,
		status:    deps.Status,
		connector: deps.Connector,
		filters:   deps.Filters,
		fallback:  deps.Fallback,
		notifier:  deps.Notifier,
		now:       time.Now,
	}
	if w.filters == nil {
		w.filters = filter.NewChain()
	}
	if w.notifier == nil {
		w.notifier = nopNotifier{}
	}
	return w
}

// Run drives the loop until ctx is done. Each iteration executes one command
// if any is pending, otherwise the routine step.
func (w *Worker) Run(ctx context.Context) {
	zlog.Info().Msgf("worker started: status_interval=%s token_refresh_interval=%s",
		w.cfg.StatusInterval, w.cfg.TokenRefreshInterval)

	idle := time.NewTicker(w.cfg.IdleInterval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			zlog.Info().Msg("worker stopped")
			return
		}

		if w.step(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			zlog.Info().Msg("worker stopped")
			return
		case <-w.queue.Ready():
		case <-idle.C:
		}
	}
}

// step runs one iteration and reports whether a command was executed.
// Errors and panics are logged and never escape.
func (w *Worker) step(ctx context.Context) (executed bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("worker iteration panicked: %v", r)
		}
	}()

	if cmd, ok := w.queue.Dequeue(); ok {
		zlog.Debug().Msgf("command dequeued: command=%s pending=%d", cmd, w.queue.Len())
		if err := w.execute(ctx, cmd); err != nil {
			zlog.Error().Msgf("command failed: command=%s error=%v", cmd, err)
		}
		return true
	}

	if err := w.routine(ctx); err != nil {
		zlog.Error().Msgf("routine failed: error=%v", err)
	}
	return false
}

// authenticated reports whether a session exists.
func (w *Worker) authenticated() bool {
	return w.remote != nil
}

func (w *Worker) requireSession() error {
	if !w.authenticated() {
		return errors.WithStack(player.ErrNotAuthenticated)
	}
	return nil
}

func (w *Worker) requireDevice() error {
	if err := w.requireSession(); err != nil {
		return err
	}
	if w.deviceID == "" {
		return errors.WithStack(player.ErrNoDevice)
	}
	return nil
}

// forceStatusCheck makes the next routine step poll the remote status.
func (w *Worker) forceStatusCheck() {
	w.lastStatusCheck = time.Time{}
}

func (w *Worker) setStatus(st playback.Status) {
	ev, changed := w.status.Set(st)
	if !changed {
		return
	}
	if ev.StateChanged() {
		zlog.Info().Msgf("playback state changed: from=%s to=%s", ev.From, ev.To)
	}
	w.notifier.StatusChanged(st)
}

func (w *Worker) listChanged() {
	w.notifier.QueueChanged(w.list.Snapshot())
}

func due(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(playback.Status)   {}
func (nopNotifier) QueueChanged([]songlist.Entry) {}
