package fallback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/domain/track"
)

// Candidate is a track together with the provider that produced it.
type Candidate struct {
	Track       track.Track
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain asks providers in order and collects their candidates.
type Chain struct {
	providers []ProviderWithMetadata
	count     int
}

// NewChain creates a chain asking each provider for count candidates.
func NewChain(count int, providers []ProviderWithMetadata) *Chain {
	if count <= 0 {
		count = 1
	}
	return &Chain{
		providers: providers,
		count:     count,
	}
}

// Empty reports whether the chain has no providers.
func (c *Chain) Empty() bool {
	return c == nil || len(c.providers) == 0
}

// GetCandidates collects candidates from all providers. A provider that
// fails is skipped; an error is returned only if no provider produced any.
func (c *Chain) GetCandidates(ctx context.Context, src Source, seeds []track.Track, exclude map[string]bool) ([]Candidate, error) {
	if c.Empty() {
		return nil, nil
	}

	var all []Candidate
	excluded := make(map[string]bool, len(exclude))
	for k, v := range exclude {
		excluded[k] = v
	}

	var errs error
	for i, pm := range c.providers {
		zlog.Debug().Msgf("trying fallback provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		tracks, err := pm.Provider.GetCandidates(ctx, src, c.count, seeds, excluded)
		if err != nil {
			zlog.Warn().Msgf("fallback provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			errs = errors.CombineErrors(errs, err)
			continue
		}

		for _, t := range tracks {
			all = append(all, Candidate{Track: t, DisplayName: pm.DisplayName})
			excluded[t.ID] = true
		}
		zlog.Debug().Msgf("fallback provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(tracks), len(all))
	}

	if len(all) == 0 && errs != nil {
		return nil, errors.Wrap(errs, "all fallback providers failed")
	}
	return all, nil
}
