// Package spotify provides a client for the Spotify Web API.
package spotify

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// Client is a Spotify API client bound to one authorized session.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Search searches for tracks on Spotify.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to search"), nil)
	}

	if result.Tracks == nil {
		return []track.Track{}, nil
	}
	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.Mark(errors.New("empty track id"), player.ErrTrackNotFound)
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrapf(err, "failed to get track: id=%s", id), player.ErrTrackNotFound)
	}
	return c.convertTrack(result), nil
}

// Devices lists the devices visible to the session.
func (c *Client) Devices(ctx context.Context) ([]player.Device, error) {
	var result []spotify.PlayerDevice
	err := c.retry(ctx, func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to list devices"), nil)
	}

	devices := make([]player.Device, 0, len(result))
	for _, d := range result {
		devices = append(devices, player.Device{
			ID:         string(d.ID),
			Name:       d.Name,
			Type:       d.Type,
			Active:     d.Active,
			Restricted: d.Restricted,
			Volume:     int(d.Volume),
		})
	}
	return devices, nil
}

// Pause pauses playback on deviceID.
func (c *Client) Pause(ctx context.Context, deviceID string) error {
	err := c.retry(ctx, func() error {
		return c.client.PauseOpt(ctx, playOptions(deviceID))
	})
	return classify(errors.Wrap(err, "failed to pause"), player.ErrNoDevice)
}

// Resume resumes playback on deviceID.
func (c *Client) Resume(ctx context.Context, deviceID string) error {
	err := c.retry(ctx, func() error {
		return c.client.PlayOpt(ctx, playOptions(deviceID))
	})
	return classify(errors.Wrap(err, "failed to resume"), player.ErrNoDevice)
}

// Skip skips to the next track on deviceID.
func (c *Client) Skip(ctx context.Context, deviceID string) error {
	err := c.retry(ctx, func() error {
		return c.client.NextOpt(ctx, playOptions(deviceID))
	})
	return classify(errors.Wrap(err, "failed to skip"), player.ErrNoDevice)
}

// Play starts t on deviceID, replacing what is playing.
func (c *Client) Play(ctx context.Context, deviceID string, t track.Track) error {
	uri := t.URI
	if uri == "" {
		uri = "spotify:track:" + t.ID
	}
	opts := playOptions(deviceID)
	opts.URIs = []spotify.URI{spotify.URI(uri)}

	err := c.retry(ctx, func() error {
		return c.client.PlayOpt(ctx, opts)
	})
	return classify(errors.Wrapf(err, "failed to play: uri=%s", uri), player.ErrNoDevice)
}

// CurrentPlayback returns what the session is playing. A nil Track means
// nothing is loaded.
func (c *Client) CurrentPlayback(ctx context.Context) (*player.Context, error) {
	var cp *spotify.CurrentlyPlaying
	err := c.retry(ctx, func() error {
		r, err := c.client.PlayerCurrentlyPlaying(ctx, spotify.Market(c.market))
		if err != nil {
			return err
		}
		cp = r
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to get current playback"), player.ErrNoDevice)
	}

	pc := &player.Context{}
	if cp == nil {
		return pc, nil
	}
	pc.IsPlaying = cp.Playing
	progress := int(cp.Progress)
	pc.ProgressMs = &progress
	if cp.Item != nil {
		pc.Track = c.convertTrack(cp.Item)
	}
	return pc, nil
}

// GetPlaylistTracksRandom retrieves a random sample of tracks from a playlist.
// First gets the total track count, then fetches a random page and returns up to count tracks.
func (c *Client) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var firstPage *spotify.PlaylistItemPage
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(1),
			spotify.Offset(0),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		firstPage = p
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to get playlist info"), nil)
	}

	totalTracks := int(firstPage.Total)
	if totalTracks == 0 {
		return []track.Track{}, nil
	}

	// Pick a random page that still holds a full page of tracks
	limit := 100 // Spotify API max per page
	maxOffset := max(totalTracks-limit, 0)
	rng := newRand()

	offset := 0
	if maxOffset > 0 {
		offset = rng.Intn(maxOffset + 1)
	}

	var page *spotify.PlaylistItemPage
	err = c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to get playlist items"), nil)
	}

	var tracks []track.Track
	for _, item := range page.Items {
		// Only process tracks (exclude episodes)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			tracks = append(tracks, *c.convertTrack(item.Track.Track))
		}
	}

	rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
	if len(tracks) > count {
		tracks = tracks[:count]
	}
	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	markets := make([]string, len(t.AvailableMarkets))
	for i, m := range t.AvailableMarkets {
		markets[i] = string(m)
	}

	// Responses requested with a market omit available_markets
	if len(markets) == 0 && c.market != "" {
		markets = append(markets, c.market)
	}

	return &track.Track{
		ID:          string(t.ID),
		URI:         string(t.URI),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         trackURL(string(t.ID)),
		Explicit:    t.Explicit,
		Markets:     markets,
		IsPlayable:  t.IsPlayable,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.CombineErrors(lastErr, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func playOptions(deviceID string) *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts.DeviceID = &id
	}
	return opts
}

func newRand() *rand.Rand {
	var cryptoSeed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		cryptoSeed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		cryptoSeed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(cryptoSeed))
}

// trackURL returns the Spotify URL for a track.
func trackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:<kind>:ID, https://open.spotify.com[/intl-XX]/<kind>/ID
// and bare IDs.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
