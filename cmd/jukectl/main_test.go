package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/jukeula/internal/app/notification"
	"github.com/osa030/jukeula/internal/app/playback"
)

func TestFormatMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{ms: 0, want: "0:00"},
		{ms: 59_999, want: "0:59"},
		{ms: 61_000, want: "1:01"},
		{ms: 3_723_000, want: "62:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMs(tt.ms))
	}
}

func TestPrintStatus(t *testing.T) {
	progress := 30_000
	var buf bytes.Buffer
	printStatus(&buf, &notification.Status{
		State:      playback.StatePlaying,
		Song:       &notification.Song{ID: "t1", Title: "Song", Artist: "Band", DurationMs: 180_000},
		ProgressMs: &progress,
	})

	out := buf.String()
	assert.Contains(t, out, "State: Playing")
	assert.Contains(t, out, "Band - Song")
	assert.Contains(t, out, "0:30 / 3:00")
}

func TestPrintQueue(t *testing.T) {
	var buf bytes.Buffer
	printQueue(&buf, nil)
	assert.Contains(t, buf.String(), "empty")

	buf.Reset()
	printQueue(&buf, []notification.QueueItem{{Song: notification.Song{ID: "a", Title: "T", Artist: "A"}, Votes: 2}})
	assert.Contains(t, buf.String(), "A - T")
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []notification.Device{{ID: "d1", Name: "Kitchen", Type: "Speaker", Active: true}})
	assert.Contains(t, buf.String(), "* d1")
	assert.Contains(t, buf.String(), "Kitchen")
}
