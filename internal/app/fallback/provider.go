// Package fallback provides tracks to play when nobody has requested any.
package fallback

import (
	"context"

	"github.com/osa030/jukeula/internal/domain/track"
)

// Provider is the interface for fallback track providers.
type Provider interface {
	// GetCandidates retrieves up to count tracks using src. seeds are the
	// most recently played tracks, oldest first, and may be empty.
	// exclude holds track IDs that must not be returned.
	GetCandidates(ctx context.Context, src Source, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// Source is the part of the remote session providers need. The session can
// change between calls, so it is passed per call.
type Source interface {
	GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}
