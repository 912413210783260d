package filter

import (
	"context"
	"slices"

	"github.com/osa030/jukeula/internal/domain/track"
)

const playableFilterName = "playable_filter"

// PlayableFilter drops tracks the device would fail to start. It is always
// part of the chain and runs for every origin.
type PlayableFilter struct {
	market string
}

// NewPlayableFilter creates the filter. An empty market skips the market
// check.
func NewPlayableFilter(market string) *PlayableFilter {
	return &PlayableFilter{market: market}
}

func (f *PlayableFilter) Name() string {
	return playableFilterName
}

func (f *PlayableFilter) Description() string {
	return "Drops tracks that cannot be played, or are not released in the configured market"
}

func (f *PlayableFilter) ReturnCodes() []string {
	return []string{"not_playable", "market_restriction"}
}

func (f *PlayableFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PlayableFilter) AppliesTo(Origin) bool {
	return true
}

// Check trusts the is_playable flag when Spotify sent one. It is only sent
// for market-scoped lookups and already accounts for relinked tracks.
func (f *PlayableFilter) Check(ctx context.Context, t track.Track) Result {
	switch {
	case t.IsPlayable != nil && !*t.IsPlayable:
		return Reject("not_playable")
	case t.IsPlayable != nil, f.market == "":
		return Accept()
	case !slices.Contains(t.Markets, f.market):
		return Reject("market_restriction")
	}
	return Accept()
}
