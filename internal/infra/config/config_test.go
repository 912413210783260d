package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
spotify:
  client_id: "test-client-id"
  client_secret: "test-client-secret"
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN", "ADMIN_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "http://127.0.0.1:8081/auth/callback", cfg.Spotify.RedirectURL)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, time.Second, cfg.Worker.StatusInterval())
	assert.Equal(t, 5*time.Minute, cfg.Worker.TokenRefreshInterval())
	assert.Equal(t, 50*time.Millisecond, cfg.Worker.IdleInterval())
	assert.Equal(t, time.Minute, cfg.Worker.ResponseTTL())
	assert.Equal(t, 3*time.Second, cfg.Worker.EnqueueGrace())
	assert.Equal(t, 30*time.Second, cfg.Worker.FallbackBackoff())

	assert.Equal(t, 15*time.Second, cfg.Requests.WaitTimeout())
	assert.Equal(t, 40, cfg.Requests.SearchLimit)
	assert.Equal(t, 5.0, cfg.Requests.SearchRatePerSec)
	assert.Equal(t, 3, cfg.Requests.SearchBurst)

	assert.Equal(t, -1, cfg.EvictThreshold())
	assert.Equal(t, 5, cfg.Fallback.CandidateCount)
	assert.Empty(t, cfg.Fallback.Providers)
}

func TestParse_FullConfig(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(`
server:
  addr: ":9000"
  static_dir: "./public"
  hooks:
    on_started: ["echo started"]
admin:
  token: "secret"
spotify:
  client_id: "id"
  client_secret: "secret"
  refresh_token: "refresh"
  market: "US"
list:
  evict_threshold: 0
fallback:
  candidate_count: 10
  providers:
    - type: playlist
      display_name: "House"
      settings:
        playlist_url: "https://open.spotify.com/playlist/abc"
filters:
  duration_limit_filter:
    enabled: true
    settings:
      max_minutes: 8
  title_blocklist_filter:
    enabled: true
    settings:
      words: ["scatman", "freestyler"]
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, "secret", cfg.Admin.Token)
	assert.Equal(t, "US", cfg.Spotify.Market)
	assert.Equal(t, 0, cfg.EvictThreshold(), "explicit zero is kept")
	require.Len(t, cfg.Fallback.Providers, 1)
	assert.Equal(t, "playlist", cfg.Fallback.Providers[0].Type)
	assert.True(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("remaster_duplicate_filter"))
	assert.Equal(t, []any{"scatman", "freestyler"}, cfg.Filters["title_blocklist_filter"].Settings["words"])
}

func TestParse_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing client id", yaml: `spotify: {client_secret: "s"}`},
		{name: "missing client secret", yaml: `spotify: {client_id: "i"}`},
		{name: "bad market", yaml: minimalYAML + `  market: "JPN"`},
		{name: "positive evict threshold", yaml: minimalYAML + "list:\n  evict_threshold: 2\n"},
		{name: "unknown provider", yaml: minimalYAML + "fallback:\n  providers:\n    - type: radio\n      settings: {a: b}\n"},
		{name: "status interval too small", yaml: minimalYAML + "worker:\n  status_interval_ms: 5\n"},
		{name: "bad log level", yaml: minimalYAML + "log:\n  level: loud\n"},
		{name: "broken yaml", yaml: "spotify: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "env-refresh")
	t.Setenv("ADMIN_TOKEN", "env-admin")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "test-client-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "env-refresh", cfg.Spotify.RefreshToken)
	assert.Equal(t, "env-admin", cfg.Admin.Token)
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", cfg.Spotify.ClientID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
