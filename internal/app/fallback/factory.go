package fallback

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/infra/config"
)

// NewChainFromConfig creates a chain from configuration. No providers yields
// an empty chain.
func NewChainFromConfig(cfg config.FallbackConfig) (*Chain, error) {
	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating fallback provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "playlist":
			provider, err = NewPlaylistProvider(cfg.CandidateCount, pcfg.Settings)
		case "search":
			provider, err = NewSearchProvider(pcfg.Settings)
		case "similar":
			provider, err = NewSimilarProvider(pcfg.Settings)
		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		displayName := pcfg.DisplayName
		if displayName == "" {
			displayName = pcfg.Type
		}
		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: displayName,
		})
		zlog.Info().Msgf("registered fallback provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, displayName)
	}

	return NewChain(cfg.CandidateCount, providers), nil
}
