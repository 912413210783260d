package notification

import (
	"encoding/json"

	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

// Song is the wire form of a track.
type Song struct {
	SpotifyURI    string `json:"spotify_uri"`
	ID            string `json:"id"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	DurationMs    int64  `json:"duration_ms"`
	AlbumImageURL string `json:"album_image_url"`
}

// NewSong converts a track to its wire form.
func NewSong(t track.Track) Song {
	return Song{
		SpotifyURI:    t.URI,
		ID:            t.ID,
		Title:         t.Name,
		Artist:        t.ArtistLine(),
		DurationMs:    t.Duration.Milliseconds(),
		AlbumImageURL: t.AlbumArtURL,
	}
}

// NewSongs converts tracks to their wire form.
func NewSongs(tracks []track.Track) []Song {
	out := make([]Song, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, NewSong(t))
	}
	return out
}

// Status is the wire form of the playback status.
type Status struct {
	State      playback.State `json:"state"`
	Song       *Song          `json:"song,omitempty"`
	ProgressMs *int           `json:"progress_ms,omitempty"`
}

// NewStatus converts a playback status to its wire form.
func NewStatus(st playback.Status) Status {
	out := Status{State: st.State, ProgressMs: st.ProgressMs}
	if st.Song != nil {
		s := NewSong(*st.Song)
		out.Song = &s
	}
	return out
}

// QueueItem is the wire form of a list entry.
type QueueItem struct {
	Song  Song `json:"song"`
	Votes int  `json:"votes"`
}

// NewQueue converts list entries to their wire form.
func NewQueue(entries []songlist.Entry) []QueueItem {
	out := make([]QueueItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, QueueItem{Song: NewSong(e.Track), Votes: e.Votes})
	}
	return out
}

// Device is the wire form of a playback device.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Active     bool   `json:"active"`
	Restricted bool   `json:"restricted"`
	Volume     int    `json:"volume"`
}

// NewDevices converts devices to their wire form.
func NewDevices(devices []player.Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device(d))
	}
	return out
}

// Notification is one pushed frame. It encodes as {"Status": ...} when
// Status is set and as {"Queue": [...]} otherwise.
type Notification struct {
	SequenceNo uint64
	Status     *Status
	Queue      []QueueItem
}

// MarshalJSON implements json.Marshaler.
func (n *Notification) MarshalJSON() ([]byte, error) {
	if n.Status != nil {
		return json.Marshal(struct {
			Status *Status `json:"Status"`
		}{n.Status})
	}
	queue := n.Queue
	if queue == nil {
		queue = []QueueItem{}
	}
	return json.Marshal(struct {
		Queue []QueueItem `json:"Queue"`
	}{queue})
}

// StatusNotification wraps a status frame.
func StatusNotification(st playback.Status) *Notification {
	s := NewStatus(st)
	return &Notification{Status: &s}
}

// QueueNotification wraps a queue frame. An empty queue is sent as [].
func QueueNotification(entries []songlist.Entry) *Notification {
	return &Notification{Queue: NewQueue(entries)}
}
