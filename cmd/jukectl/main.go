// Package main provides the jukebox command-line client.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/jukeula/internal/api/connect"
	"github.com/osa030/jukeula/internal/app/notification"
)

var (
	app     = kingpin.New("jukectl", "jukeula jukebox client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8081").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("20s").Duration()

	statusCmd = app.Command("status", "Show the playback status")
	queueCmd  = app.Command("queue", "Show the song list")

	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	skipCmd   = app.Command("skip", "Skip the current track")

	requestCmd   = app.Command("request", "Vote for a track")
	requestTrack = requestCmd.Arg("track", "Track ID, URI or URL").Required().String()

	downvoteCmd   = app.Command("downvote", "Remove a vote from a track")
	downvoteTrack = downvoteCmd.Arg("track", "Track ID").Required().String()

	searchCmd   = app.Command("search", "Search tracks")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()

	devicesCmd = app.Command("devices", "List playback devices").Alias("list-devices")

	deviceCmd   = app.Command("device", "Select the playback device")
	deviceID    = deviceCmd.Arg("device-id", "Device ID").Required().String()
	clearDevCmd = app.Command("clear-device", "Forget the playback device")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := execute(ctx, client, command, os.Stdout); err != nil {
		fmt.Printf("Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *apiconnect.Client, command string, out io.Writer) error {
	switch command {
	case statusCmd.FullCommand():
		st, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(out, st)
	case queueCmd.FullCommand():
		items, err := client.GetQueue(ctx)
		if err != nil {
			return err
		}
		printQueue(out, items)
	case pauseCmd.FullCommand():
		return done(out, client.Pause(ctx))
	case resumeCmd.FullCommand():
		return done(out, client.Resume(ctx))
	case skipCmd.FullCommand():
		return done(out, client.Skip(ctx))
	case requestCmd.FullCommand():
		return done(out, client.Request(ctx, *requestTrack))
	case downvoteCmd.FullCommand():
		return done(out, client.Downvote(ctx, *downvoteTrack))
	case searchCmd.FullCommand():
		songs, err := client.Search(ctx, *searchQuery)
		if err != nil {
			return err
		}
		printSongs(out, songs)
	case devicesCmd.FullCommand():
		devices, err := client.ListDevices(ctx)
		if err != nil {
			return err
		}
		printDevices(out, devices)
	case deviceCmd.FullCommand():
		return done(out, client.SetDevice(ctx, *deviceID))
	case clearDevCmd.FullCommand():
		return done(out, client.ClearDevice(ctx))
	}
	return nil
}

func done(out io.Writer, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "OK (submitted)")
	return nil
}

func printStatus(out io.Writer, st *notification.Status) {
	fmt.Fprintln(out, "=== PLAYBACK STATUS ===")
	fmt.Fprintf(out, "State: %s\n", st.State)
	if st.Song != nil {
		fmt.Fprintf(out, "Song: %s - %s\n", st.Song.Artist, st.Song.Title)
		fmt.Fprintf(out, "  ID: %s\n", st.Song.ID)
		if st.ProgressMs != nil {
			fmt.Fprintf(out, "  Progress: %s / %s\n", formatMs(int64(*st.ProgressMs)), formatMs(st.Song.DurationMs))
		}
	}
}

func printQueue(out io.Writer, items []notification.QueueItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "The list is empty.")
		return
	}
	fmt.Fprintf(out, "%-6s %-24s %s\n", "VOTES", "ID", "SONG")
	for _, item := range items {
		fmt.Fprintf(out, "%-6d %-24s %s - %s\n", item.Votes, item.Song.ID, item.Song.Artist, item.Song.Title)
	}
}

func printSongs(out io.Writer, songs []notification.Song) {
	if len(songs) == 0 {
		fmt.Fprintln(out, "No tracks found.")
		return
	}
	for _, s := range songs {
		fmt.Fprintf(out, "%-24s %s - %s (%s)\n", s.ID, s.Artist, s.Title, formatMs(s.DurationMs))
	}
}

func printDevices(out io.Writer, devices []notification.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found.")
		return
	}
	for _, d := range devices {
		active := " "
		if d.Active {
			active = "*"
		}
		fmt.Fprintf(out, "%s %-42s %-12s %s\n", active, d.ID, d.Type, d.Name)
	}
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
