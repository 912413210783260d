package fallback

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/domain/track"
	"github.com/osa030/jukeula/internal/infra/lastfm"
)

type SimilarProviderConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	SeedTrackCount int     `yaml:"seed_track_count" mapstructure:"seed_track_count" default:"3" validate:"gte=1,lte=10"`
	TagCount       int     `yaml:"tag_count" mapstructure:"tag_count" default:"3" validate:"gte=0,lte=10"`
	TagWeight      float64 `yaml:"tag_weight" mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1"`
	SimilarWeight  float64 `yaml:"similar_weight" mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1"`
}

// LastFM is the part of the Last.fm client the provider uses.
type LastFM interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

// SimilarProvider picks tracks related to what was played recently, using
// Last.fm similarity and tags. Without seeds it falls back to the global
// chart. Names found on Last.fm are resolved through Spotify search.
type SimilarProvider struct {
	config *SimilarProviderConfig
	lastfm LastFM

	mu       sync.Mutex
	rng      *rand.Rand
	resolved map[string]*track.Track // nil value: not found on Spotify
}

type scored struct {
	name   string
	artist string
	score  float64
}

// NewSimilarProvider creates a new SimilarProvider talking to Last.fm.
func NewSimilarProvider(settings map[string]any) (*SimilarProvider, error) {
	config, err := similarConfig(settings)
	if err != nil {
		return nil, err
	}
	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newSimilarProvider(config, client), nil
}

func similarConfig(settings map[string]any) (*SimilarProviderConfig, error) {
	var config SimilarProviderConfig
	if err := decodeSettings("similar", settings, &config); err != nil {
		return nil, err
	}
	const epsilon = 0.001
	if sum := config.TagWeight + config.SimilarWeight; sum < 1-epsilon || sum > 1+epsilon {
		return nil, errors.Newf("tag_weight + similar_weight must be 1.0, got %.2f", sum)
	}
	return &config, nil
}

func newSimilarProvider(config *SimilarProviderConfig, client LastFM) *SimilarProvider {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return &SimilarProvider{
		config:   config,
		lastfm:   client,
		rng:      rand.New(rand.NewSource(seed)),
		resolved: make(map[string]*track.Track),
	}
}

// GetCandidates returns up to count tracks drawn from the best scored Last.fm
// hits for the seeds.
func (p *SimilarProvider) GetCandidates(ctx context.Context, src Source, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	if len(seeds) > p.config.SeedTrackCount {
		seeds = seeds[len(seeds)-p.config.SeedTrackCount:]
	}

	var hits []scored
	var err error
	if len(seeds) == 0 {
		hits, err = p.chartHits(ctx)
	} else {
		hits, err = p.seededHits(ctx, seeds)
	}
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []track.Track{}, nil
	}

	// Shuffle within the top of the ranking so the same seeds do not always
	// give the same tracks
	pool := hits[:min(len(hits), count*2)]
	p.mu.Lock()
	p.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	p.mu.Unlock()

	out := make([]track.Track, 0, count)
	for _, h := range pool {
		if len(out) == count {
			break
		}
		t, err := p.resolve(ctx, src, h.name, h.artist)
		if err != nil {
			zlog.Debug().Msgf("failed to resolve similar track: name=%s artist=%s error=%v", h.name, h.artist, err)
			continue
		}
		if t == nil || exclude[t.ID] {
			continue
		}
		out = append(out, *t)
	}

	zlog.Debug().Msgf("similar candidates: seeds=%d hits=%d returned=%d", len(seeds), len(hits), len(out))
	return out, nil
}

func (p *SimilarProvider) chartHits(ctx context.Context) ([]scored, error) {
	top, err := p.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart")
	}
	hits := make([]scored, 0, len(top))
	for i, t := range top {
		hits = append(hits, scored{name: t.Name, artist: t.Artist, score: float64(len(top) - i)})
	}
	return hits, nil
}

// seededHits scores every Last.fm track reachable from the seeds. A track
// gains SimilarWeight for each seed it is similar to and TagWeight for each
// seed tag it tops.
func (p *SimilarProvider) seededHits(ctx context.Context, seeds []track.Track) ([]scored, error) {
	scores := make(map[string]*scored)
	seedKeys := make(map[string]bool, len(seeds))
	add := func(name, artist string, w float64) {
		k := hitKey(name, artist)
		if seedKeys[k] {
			return
		}
		if s, ok := scores[k]; ok {
			s.score += w
			return
		}
		scores[k] = &scored{name: name, artist: artist, score: w}
	}

	var errs error
	for _, seed := range seeds {
		seedKeys[hitKey(seed.Name, firstArtist(seed))] = true
	}
	for _, seed := range seeds {
		artist := firstArtist(seed)
		if seed.Name == "" || artist == "" {
			continue
		}

		if p.config.SimilarWeight > 0 {
			similar, err := p.lastfm.GetSimilarTracks(ctx, seed.Name, artist, 20)
			if err != nil {
				errs = errors.CombineErrors(errs, err)
			}
			for _, s := range similar {
				add(s.Name, s.Artist, p.config.SimilarWeight)
			}
		}

		if p.config.TagWeight > 0 && p.config.TagCount > 0 {
			tags, err := p.lastfm.GetTopTags(ctx, seed.Name, artist, p.config.TagCount)
			if err != nil {
				errs = errors.CombineErrors(errs, err)
			}
			for _, tag := range tags {
				top, err := p.lastfm.GetTopTracks(ctx, tag.Name, 20)
				if err != nil {
					errs = errors.CombineErrors(errs, err)
					continue
				}
				for _, t := range top {
					add(t.Name, t.Artist, p.config.TagWeight)
				}
			}
		}
	}

	if len(scores) == 0 && errs != nil {
		return nil, errors.Wrap(errs, "failed to query last.fm")
	}

	hits := make([]scored, 0, len(scores))
	for _, s := range scores {
		hits = append(hits, *s)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hitKey(hits[i].name, hits[i].artist) < hitKey(hits[j].name, hits[j].artist)
	})
	return hits, nil
}

// resolve finds the Spotify track for a Last.fm name. Misses are cached too.
func (p *SimilarProvider) resolve(ctx context.Context, src Source, name, artist string) (*track.Track, error) {
	k := hitKey(name, artist)
	p.mu.Lock()
	t, ok := p.resolved[k]
	p.mu.Unlock()
	if ok {
		return t, nil
	}

	found, err := src.Search(ctx, fmt.Sprintf("track:%s artist:%s", name, artist), 1)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		t = &found[0]
	}

	p.mu.Lock()
	p.resolved[k] = t
	p.mu.Unlock()
	return t, nil
}

// Name returns the provider name.
func (p *SimilarProvider) Name() string {
	return "similar"
}

func hitKey(name, artist string) string {
	return strings.ToLower(name) + "\x00" + strings.ToLower(artist)
}

func firstArtist(t track.Track) string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}
