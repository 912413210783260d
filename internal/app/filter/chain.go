package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
// Filters are only applied if they declare they apply to the given origin.
func (c *Chain) Execute(ctx context.Context, t track.Track, origin Origin) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(origin) {
			continue
		}

		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// Settings is the per-filter configuration.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// BuildChain creates the chain used by the worker. It always starts with the
// playable filter for market. Registered filters are added when enabled; a filter
// with an unknown name or invalid settings is left out and reported in the
// returned error. list backs the remaster filter.
func BuildChain(market string, configured map[string]Settings, list TrackSource) (*Chain, error) {
	chain := NewChain()
	chain.Add(NewPlayableFilter(market))

	var errs error
	for _, name := range sortedNames(configured) {
		fc := configured[name]
		if !fc.Enabled {
			continue
		}

		var f Filter
		if name == remasterFilterName {
			f = NewRemasterDuplicateFilter(list)
		} else {
			factory, ok := registry[name]
			if !ok {
				errs = errors.CombineErrors(errs, errors.Newf("unknown filter: %s", name))
				continue
			}
			f = factory()
		}

		if err := f.ValidateConfig(fc.Settings); err != nil {
			zlog.Error().Msgf("failed to validate filter config: name=%s error=%v", name, err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "filter %s", name))
			continue
		}
		chain.Add(f)
		zlog.Info().Msgf("filter enabled: name=%s", name)
	}
	return chain, errs
}

func sortedNames(m map[string]Settings) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
