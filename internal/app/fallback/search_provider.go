package fallback

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukeula/internal/domain/track"
)

type SearchProviderConfig struct {
	Queries []string `yaml:"queries" mapstructure:"queries" validate:"required,min=1,dive,required"`
	Limit   int      `yaml:"limit" mapstructure:"limit" default:"20" validate:"gte=1,lte=50"`
}

// SearchProvider runs one of the configured search queries, chosen at random,
// and returns random results.
type SearchProvider struct {
	config *SearchProviderConfig
	rng    *rand.Rand
}

// NewSearchProvider creates a new SearchProvider.
func NewSearchProvider(settings map[string]any) (*SearchProvider, error) {
	var config SearchProviderConfig
	if err := decodeSettings("search", settings, &config); err != nil {
		return nil, err
	}

	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return &SearchProvider{config: &config, rng: rand.New(rand.NewSource(seed))}, nil
}

// GetCandidates searches and returns up to count shuffled results.
func (p *SearchProvider) GetCandidates(ctx context.Context, src Source, count int, _ []track.Track, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	query := p.config.Queries[p.rng.Intn(len(p.config.Queries))]
	found, err := src.Search(ctx, query, p.config.Limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search: query=%s", query)
	}

	candidates := withoutExcluded(found, exclude)
	p.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

// Name returns the provider name.
func (p *SearchProvider) Name() string {
	return "search"
}
