// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/oauth2"

	apiconnect "github.com/osa030/jukeula/internal/api/connect"
	"github.com/osa030/jukeula/internal/api/web"
	"github.com/osa030/jukeula/internal/app/fallback"
	"github.com/osa030/jukeula/internal/app/filter"
	"github.com/osa030/jukeula/internal/app/jukebox"
	"github.com/osa030/jukeula/internal/app/notification"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/app/worker"
	"github.com/osa030/jukeula/internal/infra/config"
	"github.com/osa030/jukeula/internal/infra/logger"
	"github.com/osa030/jukeula/internal/infra/spotify"
)

var (
	app        = kingpin.New("jukeula-server", "jukeula jukebox server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	if _, err := logger.Init(loggerConfig(config.LogConfig{})); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	closer, err := logger.Init(loggerConfig(cfg.Log))
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// loggerConfig merges the config file section with command-line flags.
func loggerConfig(lc config.LogConfig) logger.Config {
	out := logger.Config{Output: lc.Output, Level: lc.Level, File: lc.File}
	if out.Output == "" {
		out.Output = "stdout"
	}
	if out.Level == "" {
		out.Level = "info"
	}
	if *verbose {
		out.Level = "debug"
	}
	if *logfile != "" {
		out.Output = "file"
		out.File = *logfile
	}
	return out
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	queue := taskqueue.New()
	list := songlist.New(cfg.EvictThreshold())
	status := playback.NewStore()
	notifier := notification.NewManager()
	defer notifier.Close()

	filters, err := filter.BuildChain(cfg.Spotify.Market, filterSettings(cfg.Filters), list)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	fallbackChain, err := fallback.NewChainFromConfig(cfg.Fallback)
	if err != nil {
		return errors.Wrap(err, "invalid fallback config")
	}

	auth, err := spotify.NewAuthenticator(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.Spotify.RedirectURL,
		Market:       cfg.Spotify.Market,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify authenticator")
	}

	w := worker.New(worker.Config{
		StatusInterval:       cfg.Worker.StatusInterval(),
		TokenRefreshInterval: cfg.Worker.TokenRefreshInterval(),
		IdleInterval:         cfg.Worker.IdleInterval(),
		ResponseTTL:          cfg.Worker.ResponseTTL(),
		SearchLimit:          cfg.Requests.SearchLimit,
		EnqueueGrace:         cfg.Worker.EnqueueGrace(),
		FallbackBackoff:      cfg.Worker.FallbackBackoff(),
	}, worker.Dependencies{
		Queue:     queue,
		List:      list,
		Status:    status,
		Connector: connector{auth: auth},
		Filters:   filters,
		Fallback:  fallbackChain,
		Notifier:  notifier,
	})

	svc := jukebox.New(jukebox.Config{
		WaitTimeout:      cfg.Requests.WaitTimeout(),
		SearchRatePerSec: cfg.Requests.SearchRatePerSec,
		SearchBurst:      cfg.Requests.SearchBurst,
	}, queue, list, status)

	if cfg.Spotify.RefreshToken != "" {
		zlog.Info().Msg("Installing configured refresh token")
		if err := svc.SetAuthToken(&oauth2.Token{RefreshToken: cfg.Spotify.RefreshToken}); err != nil {
			return errors.Wrap(err, "failed to install refresh token")
		}
	}

	rpcPath, rpcHandler := apiconnect.NewService(svc).Handler(
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	)
	router := web.NewServer(web.Config{StaticDir: cfg.Server.StaticDir, AdminToken: cfg.Admin.Token}, svc, auth, notifier).
		Router(map[string]http.Handler{rpcPath: rpcHandler})

	serverAddr := cfg.Server.Addr
	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(workerCtx)
	}()

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received shutdown signal: %s", sig)
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	stopWorker()
	<-workerDone

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close subscriptions first so live connections do not hold shutdown
	notifier.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return runErr
}

// connector builds worker sessions from the Spotify authenticator.
type connector struct {
	auth *spotify.Authenticator
}

func (c connector) Connect(ctx context.Context, token *oauth2.Token) (worker.Remote, error) {
	client, err := c.auth.Connect(ctx, token)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c connector) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return c.auth.Refresh(ctx, token)
}

func filterSettings(in map[string]config.FilterConfig) map[string]filter.Settings {
	out := make(map[string]filter.Settings, len(in))
	for name, fc := range in {
		out[name] = filter.Settings{Enabled: fc.Enabled, Settings: fc.Settings}
	}
	return out
}

// printFilters prints available filters.
func printFilters() {
	printFiltersTo(os.Stdout)
}

func printFiltersTo(out io.Writer) {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	// the playable filter is always on and not configurable
	filters := []filter.Filter{filter.NewPlayableFilter("")}
	for _, name := range names {
		filters = append(filters, registry[name]())
	}

	fmt.Fprintln(out, "Available Filters:")
	for _, f := range filters {
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Fprintf(out, "  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
