package fallback

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukeula/internal/domain/track"
	"github.com/osa030/jukeula/internal/infra/config"
	"github.com/osa030/jukeula/internal/infra/lastfm"
)

type fakeSource struct {
	playlist    []track.Track
	playlistErr error
	search      map[string][]track.Track
	calls       int
}

func (f *fakeSource) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error) {
	f.calls++
	if f.playlistErr != nil {
		return nil, f.playlistErr
	}
	if count > len(f.playlist) {
		count = len(f.playlist)
	}
	return f.playlist[:count], nil
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	f.calls++
	res, ok := f.search[query]
	if !ok {
		return nil, errors.Newf("no results for %s", query)
	}
	return res, nil
}

func tracks(n int) []track.Track {
	out := make([]track.Track, n)
	for i := range out {
		out[i] = track.Track{ID: fmt.Sprintf("t%d", i)}
	}
	return out
}

func TestPlaylistProvider_UsesCache(t *testing.T) {
	src := &fakeSource{playlist: tracks(5)}
	p, err := NewPlaylistProvider(5, map[string]any{"playlist_url": "https://open.spotify.com/playlist/abc"})
	require.NoError(t, err)

	got, err := p.GetCandidates(context.Background(), src, 2, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.calls)

	got2, err := p.GetCandidates(context.Background(), src, 2, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got2, 2)
	assert.Equal(t, 1, src.calls, "served from cache")
	assert.NotEqual(t, got[0].ID, got2[0].ID)
}

func TestPlaylistProvider_Exclude(t *testing.T) {
	src := &fakeSource{playlist: tracks(3)}
	p, err := NewPlaylistProvider(3, map[string]any{"playlist_url": "u"})
	require.NoError(t, err)

	got, err := p.GetCandidates(context.Background(), src, 3, nil, map[string]bool{"t0": true, "t2": true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
}

func TestPlaylistProvider_InvalidSettings(t *testing.T) {
	_, err := NewPlaylistProvider(5, map[string]any{})
	assert.Error(t, err)
}

func TestSearchProvider(t *testing.T) {
	src := &fakeSource{search: map[string][]track.Track{"genre:jazz": tracks(10)}}
	p, err := NewSearchProvider(map[string]any{"queries": []string{"genre:jazz"}})
	require.NoError(t, err)
	assert.Equal(t, 20, p.config.Limit)

	got, err := p.GetCandidates(context.Background(), src, 3, nil, map[string]bool{"t0": true})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, tr := range got {
		assert.NotEqual(t, "t0", tr.ID)
	}

	_, err = NewSearchProvider(map[string]any{"queries": []string{}})
	assert.Error(t, err)
}

func TestChain_GetCandidates(t *testing.T) {
	src := &fakeSource{
		playlistErr: errors.New("boom"),
		search:      map[string][]track.Track{"q": tracks(2)},
	}
	pl, err := NewPlaylistProvider(2, map[string]any{"playlist_url": "u"})
	require.NoError(t, err)
	sp, err := NewSearchProvider(map[string]any{"queries": []string{"q"}})
	require.NoError(t, err)

	chain := NewChain(2, []ProviderWithMetadata{
		{Provider: pl, DisplayName: "broken playlist"},
		{Provider: sp, DisplayName: "jazz"},
	})

	got, err := chain.GetCandidates(context.Background(), src, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "jazz", got[0].DisplayName)
}

func TestChain_AllFail(t *testing.T) {
	src := &fakeSource{playlistErr: errors.New("boom")}
	pl, err := NewPlaylistProvider(2, map[string]any{"playlist_url": "u"})
	require.NoError(t, err)

	chain := NewChain(2, []ProviderWithMetadata{{Provider: pl, DisplayName: "p"}})
	_, err = chain.GetCandidates(context.Background(), src, nil, nil)
	assert.Error(t, err)
}

func TestChain_Empty(t *testing.T) {
	var nilChain *Chain
	assert.True(t, nilChain.Empty())

	chain := NewChain(5, nil)
	assert.True(t, chain.Empty())
	got, err := chain.GetCandidates(context.Background(), &fakeSource{}, nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewChainFromConfig(t *testing.T) {
	chain, err := NewChainFromConfig(config.FallbackConfig{
		CandidateCount: 5,
		Providers: []config.FallbackProviderConfig{
			{Type: "playlist", DisplayName: "house", Settings: map[string]any{"playlist_url": "u"}},
			{Type: "search", Settings: map[string]any{"queries": []any{"year:1999"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, chain.providers, 2)
	assert.Equal(t, "house", chain.providers[0].DisplayName)
	assert.Equal(t, "search", chain.providers[1].DisplayName)

	_, err = NewChainFromConfig(config.FallbackConfig{
		Providers: []config.FallbackProviderConfig{{Type: "radio"}},
	})
	assert.Error(t, err)
}

type fakeLastFM struct {
	similar   map[string][]lastfm.SimilarTrack
	tags      map[string][]lastfm.Tag
	tagTracks map[string][]lastfm.TopTrack
	chart     []lastfm.TopTrack
	err       error
}

func (f *fakeLastFM) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.similar[trackName], nil
}

func (f *fakeLastFM) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[trackName], nil
}

func (f *fakeLastFM) GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tagTracks[tagName], nil
}

func (f *fakeLastFM) GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chart, nil
}

func searchable(names ...string) map[string][]track.Track {
	out := make(map[string][]track.Track, len(names))
	for _, n := range names {
		out[fmt.Sprintf("track:%s artist:A", n)] = []track.Track{{ID: "id-" + n, Name: n, Artists: []string{"A"}}}
	}
	return out
}

func newTestSimilarProvider(t *testing.T, fm LastFM) *SimilarProvider {
	t.Helper()
	cfg, err := similarConfig(map[string]any{"api_key": "k"})
	require.NoError(t, err)
	return newSimilarProvider(cfg, fm)
}

func TestSimilarProvider_Seeded(t *testing.T) {
	fm := &fakeLastFM{
		similar: map[string][]lastfm.SimilarTrack{
			"seed": {{Name: "both", Artist: "A"}, {Name: "similar only", Artist: "A"}, {Name: "seed", Artist: "A"}},
		},
		tags:      map[string][]lastfm.Tag{"seed": {{Name: "disco", Count: 10}}},
		tagTracks: map[string][]lastfm.TopTrack{"disco": {{Name: "both", Artist: "A"}, {Name: "tag only", Artist: "A"}}},
	}
	p := newTestSimilarProvider(t, fm)
	seeds := []track.Track{{ID: "id-seed", Name: "seed", Artists: []string{"A"}}}

	hits, err := p.seededHits(context.Background(), seeds)
	require.NoError(t, err)
	require.Len(t, hits, 3, "seed itself is not a hit")
	assert.Equal(t, "both", hits[0].name)
	assert.InDelta(t, 1.0, hits[0].score, 0.001)
	assert.Equal(t, "similar only", hits[1].name)
	assert.Equal(t, "tag only", hits[2].name)

	src := &fakeSource{search: searchable("both", "similar only", "tag only")}
	got, err := p.GetCandidates(context.Background(), src, 2, seeds, map[string]bool{"id-both": true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tr := range got {
		assert.NotEqual(t, "id-both", tr.ID)
	}
}

func TestSimilarProvider_ResolveCache(t *testing.T) {
	fm := &fakeLastFM{chart: []lastfm.TopTrack{{Name: "hit", Artist: "A"}, {Name: "missing", Artist: "A"}}}
	p := newTestSimilarProvider(t, fm)
	src := &fakeSource{search: searchable("hit")}
	src.search["track:missing artist:A"] = []track.Track{}

	got, err := p.GetCandidates(context.Background(), src, 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id-hit", got[0].ID)
	assert.Equal(t, 2, src.calls)

	again, err := p.GetCandidates(context.Background(), src, 2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 2, src.calls, "hits and misses are cached")
}

func TestSimilarProvider_Errors(t *testing.T) {
	p := newTestSimilarProvider(t, &fakeLastFM{err: errors.New("down")})

	_, err := p.GetCandidates(context.Background(), &fakeSource{}, 2, nil, nil)
	assert.Error(t, err)

	_, err = p.GetCandidates(context.Background(), &fakeSource{}, 2,
		[]track.Track{{Name: "seed", Artists: []string{"A"}}}, nil)
	assert.Error(t, err)
}

func TestSimilarProvider_Config(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "defaults", settings: map[string]any{"api_key": "k"}},
		{name: "custom weights", settings: map[string]any{"api_key": "k", "tag_weight": 0.3, "similar_weight": 0.7}},
		{name: "missing key", settings: map[string]any{}, wantErr: true},
		{name: "weights do not sum to one", settings: map[string]any{"api_key": "k", "tag_weight": 0.5, "similar_weight": 0.7}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := similarConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
