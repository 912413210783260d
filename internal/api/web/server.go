// Package web serves the jukebox over plain HTTP: JSON endpoints, the live
// WebSocket channel, the OAuth flow and the static front end.
package web

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/osa030/jukeula/internal/app/notification"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// Jukebox is the producer-side API the handlers use.
type Jukebox interface {
	Resume()
	Pause()
	Skip()
	ClearDevice()
	ClearAuth()
	Request(trackID string) error
	Downvote(trackID string) error
	SetDevice(deviceID string) error
	SetAuthToken(token *oauth2.Token) error
	Search(ctx context.Context, query string) ([]track.Track, error)
	ListDevices(ctx context.Context) ([]player.Device, error)
	Status() playback.Status
	Queue() []songlist.Entry
}

// Authenticator runs the OAuth consent flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error)
}

// Config holds web server options.
type Config struct {
	StaticDir  string
	AdminToken string // guards playback control and logout; empty leaves them open
}

// Server holds the handlers.
type Server struct {
	cfg      Config
	jukebox  Jukebox
	auth     Authenticator
	notifier *notification.Manager
	now      func() time.Time

	mu     sync.Mutex
	states map[string]time.Time // pending OAuth states and when they expire
}

// NewServer creates the web handlers.
func NewServer(cfg Config, jukebox Jukebox, auth Authenticator, notifier *notification.Manager) *Server {
	return &Server{
		cfg:      cfg,
		jukebox:  jukebox,
		auth:     auth,
		notifier: notifier,
		now:      time.Now,
		states:   make(map[string]time.Time),
	}
}

// Router builds the gin engine. Extra handlers, such as the RPC service, are
// mounted under their path prefix for every method.
func (s *Server) Router(mounts map[string]http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	admin := requireAdmin(s.cfg.AdminToken)

	api := r.Group("/api")
	api.GET("/resume", admin, s.control(s.jukebox.Resume))
	api.GET("/pause", admin, s.control(s.jukebox.Pause))
	api.GET("/skip", admin, s.control(s.jukebox.Skip))
	api.GET("/request/:id", s.submit(s.jukebox.Request))
	api.GET("/downvote/:id", s.submit(s.jukebox.Downvote))
	api.GET("/device/list", s.listDevices)
	api.GET("/device/set/:id", admin, s.submit(s.jukebox.SetDevice))
	api.GET("/device/clear", admin, s.control(s.jukebox.ClearDevice))
	api.GET("/status", s.status)
	api.GET("/queue", s.queue)

	r.GET("/search/track/:term", s.search)
	r.GET("/ws", gin.WrapH(s.websocketHandler()))

	r.GET("/auth", s.authStart)
	r.GET("/auth/callback", s.authCallback)
	r.GET("/auth/destroy", admin, s.authDestroy)

	for prefix, h := range mounts {
		r.Any(prefix+"*procedure", gin.WrapH(h))
	}

	if s.cfg.StaticDir != "" {
		r.Static("/static", s.cfg.StaticDir)
		r.StaticFile("/", filepath.Join(s.cfg.StaticDir, "index.html"))
	} else {
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, "jukeula")
		})
	}
	return r
}
