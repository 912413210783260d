package fallback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukeula/internal/domain/track"
)

type PlaylistProviderConfig struct {
	PlaylistURL string `yaml:"playlist_url" mapstructure:"playlist_url" validate:"required"`
}

// PlaylistProvider provides tracks by randomly selecting from a configured playlist.
// It keeps a cache of candidates to reduce Spotify API calls.
type PlaylistProvider struct {
	mu             sync.Mutex
	cache          []track.Track
	candidateCount int // Target cache size
	config         *PlaylistProviderConfig
}

// NewPlaylistProvider creates a new PlaylistProvider.
func NewPlaylistProvider(candidateCount int, settings map[string]any) (*PlaylistProvider, error) {
	var config PlaylistProviderConfig
	if err := decodeSettings("playlist", settings, &config); err != nil {
		return nil, err
	}
	return &PlaylistProvider{
		cache:          make([]track.Track, 0),
		candidateCount: candidateCount,
		config:         &config,
	}, nil
}

// GetCandidates returns random tracks from the playlist, refilling the cache
// from Spotify when it runs short.
func (p *PlaylistProvider) GetCandidates(ctx context.Context, src Source, count int, _ []track.Track, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := withoutExcluded(p.cache, exclude)

	if len(available) < count {
		needed := p.candidateCount - len(available)
		if needed < count {
			needed = count
		}
		fetched, err := src.GetPlaylistTracksRandom(ctx, p.config.PlaylistURL, needed)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get random tracks from playlist")
		}
		available = appendUnique(available, withoutExcluded(fetched, exclude))
	}

	n := min(count, len(available))
	result := available[:n:n]
	p.cache = append([]track.Track(nil), available[n:]...)
	return result, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}

func withoutExcluded(tracks []track.Track, exclude map[string]bool) []track.Track {
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if !exclude[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func appendUnique(dst, src []track.Track) []track.Track {
	seen := make(map[string]bool, len(dst))
	for _, t := range dst {
		seen[t.ID] = true
	}
	for _, t := range src {
		if !seen[t.ID] {
			seen[t.ID] = true
			dst = append(dst, t)
		}
	}
	return dst
}
