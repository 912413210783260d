// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Client is a Last.fm API client. Tag lookups are cached for the lifetime of
// the client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	trackTags map[string][]Tag
	tagTracks map[string][]TopTrack
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public endpoint
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// TopTrack represents a top track for a tag or chart.
type TopTrack struct {
	Name   string
	Artist string
}

type trackEntry struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type similarResponse struct {
	SimilarTracks struct {
		Track []trackEntry `json:"track"`
	} `json:"similartracks"`
}

type topTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

type topTracksResponse struct {
	Tracks struct {
		Track []trackEntry `json:"track"`
	} `json:"tracks"`
}

type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		trackTags:  make(map[string][]Tag),
		tagTracks:  make(map[string][]TopTrack),
	}, nil
}

// GetSimilarTracks retrieves tracks similar to the given one.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var resp similarResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return nil, errors.Wrapf(err, "track.getSimilar: artist=%s track=%s", artistName, trackName)
	}

	out := make([]SimilarTrack, 0, len(resp.SimilarTracks.Track))
	for _, t := range resp.SimilarTracks.Track {
		out = append(out, SimilarTrack{Name: t.Name, Artist: t.Artist.Name})
	}
	return out, nil
}

// GetTopTags retrieves up to limit top tags for a track.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	key := strings.ToLower(artistName + "\x00" + trackName)
	c.mu.RLock()
	tags, ok := c.trackTags[key]
	c.mu.RUnlock()

	if !ok {
		params := url.Values{}
		params.Set("method", "track.getTopTags")
		params.Set("artist", artistName)
		params.Set("track", trackName)
		params.Set("autocorrect", "1")

		var resp topTagsResponse
		if err := c.call(ctx, params, &resp); err != nil {
			return nil, errors.Wrapf(err, "track.getTopTags: artist=%s track=%s", artistName, trackName)
		}
		tags = make([]Tag, 0, len(resp.TopTags.Tag))
		for _, t := range resp.TopTags.Tag {
			tags = append(tags, Tag{Name: t.Name, Count: t.Count})
		}

		c.mu.Lock()
		c.trackTags[key] = tags
		c.mu.Unlock()
		zlog.Debug().Msgf("cached track tags: artist=%s track=%s count=%d", artistName, trackName, len(tags))
	}

	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// GetTopTracks retrieves the top tracks of a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit, 20)

	key := strings.ToLower(tagName) + ":" + strconv.Itoa(limit)
	c.mu.RLock()
	tracks, ok := c.tagTracks[key]
	c.mu.RUnlock()
	if ok {
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	var resp topTracksResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return nil, errors.Wrapf(err, "tag.getTopTracks: tag=%s", tagName)
	}
	tracks = topTracks(resp)

	c.mu.Lock()
	c.tagTracks[key] = tracks
	c.mu.Unlock()
	zlog.Debug().Msgf("cached tag top tracks: tag=%s count=%d", tagName, len(tracks))
	return tracks, nil
}

// GetChartTopTracks retrieves the global chart. It is not cached.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var resp topTracksResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return nil, errors.Wrap(err, "chart.getTopTracks")
	}
	return topTracks(resp), nil
}

// call performs a GET request and decodes the JSON body into out.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// API errors come as JSON, sometimes with a 200 status
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error != 0 {
		return errors.Newf("last.fm API error %d: %s", ae.Error, ae.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func topTracks(resp topTracksResponse) []TopTrack {
	out := make([]TopTrack, 0, len(resp.Tracks.Track))
	for _, t := range resp.Tracks.Track {
		out = append(out, TopTrack{Name: t.Name, Artist: t.Artist.Name})
	}
	return out
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, 100)
}
