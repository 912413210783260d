package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/osa030/jukeula/internal/app/fallback"
	"github.com/osa030/jukeula/internal/app/filter"
	"github.com/osa030/jukeula/internal/app/notification"
	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
	"github.com/osa030/jukeula/internal/app/taskqueue"
	"github.com/osa030/jukeula/internal/domain/player"
	"github.com/osa030/jukeula/internal/domain/track"
)

type fakeRemote struct {
	mu       sync.Mutex
	tracks   map[string]track.Track
	devices  []player.Device
	context  *player.Context
	ctxErr   error
	playErr  error
	played   []string
	calls    []string
	playlist []track.Track
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tracks:  make(map[string]track.Track),
		devices: []player.Device{{ID: "dev1", Name: "Kitchen", Type: "Speaker"}},
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	f.record("search")
	var out []track.Track
	for _, t := range f.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRemote) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	f.record("get_track")
	t, ok := f.tracks[trackID]
	if !ok {
		return nil, errors.Mark(errors.New("404"), player.ErrTrackNotFound)
	}
	return &t, nil
}

func (f *fakeRemote) Devices(ctx context.Context) ([]player.Device, error) {
	f.record("devices")
	return f.devices, nil
}

func (f *fakeRemote) Pause(ctx context.Context, deviceID string) error {
	f.record("pause:" + deviceID)
	return nil
}

func (f *fakeRemote) Resume(ctx context.Context, deviceID string) error {
	f.record("resume:" + deviceID)
	return nil
}

func (f *fakeRemote) Skip(ctx context.Context, deviceID string) error {
	f.record("skip:" + deviceID)
	return nil
}

func (f *fakeRemote) Play(ctx context.Context, deviceID string, t track.Track) error {
	f.record("play:" + deviceID)
	if f.playErr != nil {
		return f.playErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, t.ID)
	return nil
}

func (f *fakeRemote) CurrentPlayback(ctx context.Context) (*player.Context, error) {
	f.record("current_playback")
	return f.context, f.ctxErr
}

func (f *fakeRemote) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error) {
	f.record("playlist")
	return f.playlist, nil
}

type fakeConnector struct {
	remote     *fakeRemote
	refreshErr error
	refreshes  int
	connects   int
}

func (c *fakeConnector) Connect(ctx context.Context, token *oauth2.Token) (Remote, error) {
	c.connects++
	return c.remote, nil
}

func (c *fakeConnector) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	c.refreshes++
	if c.refreshErr != nil {
		return nil, c.refreshErr
	}
	return &oauth2.Token{AccessToken: "access", RefreshToken: token.RefreshToken}, nil
}

type recordingNotifier struct {
	statuses []playback.State
	queues   int
}

func (n *recordingNotifier) StatusChanged(st playback.Status)    { n.statuses = append(n.statuses, st.State) }
func (n *recordingNotifier) QueueChanged(entries []songlist.Entry) { n.queues++ }

type harness struct {
	w         *Worker
	remote    *fakeRemote
	connector *fakeConnector
	queue     *taskqueue.Queue
	list      *songlist.List
	status    *playback.Store
	notifier  *recordingNotifier
	clock     time.Time
}

func newHarness(t *testing.T, chain *fallback.Chain) *harness {
	t.Helper()
	h := &harness{
		remote:   newFakeRemote(),
		queue:    taskqueue.New(),
		list:     songlist.New(songlist.DefaultEvictThreshold),
		status:   playback.NewStore(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.connector = &fakeConnector{remote: h.remote}
	h.w = New(Config{EnqueueGrace: 3 * time.Second}, Dependencies{
		Queue:     h.queue,
		List:      h.list,
		Status:    h.status,
		Connector: h.connector,
		Filters:   filter.NewChain(),
		Fallback:  chain,
		Notifier:  h.notifier,
	})
	h.w.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

// run executes all pending commands and then one routine step.
func (h *harness) run(t *testing.T) {
	t.Helper()
	for h.w.step(context.Background()) {
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.queue.Enqueue(taskqueue.SetAuthToken{Token: &oauth2.Token{AccessToken: "a", RefreshToken: "r"}})
	h.run(t)
}

func (h *harness) selectDevice(t *testing.T) {
	t.Helper()
	h.queue.Enqueue(taskqueue.SetActiveDevice{DeviceID: "dev1"})
	h.run(t)
}

func intPtr(v int) *int { return &v }

func TestWorker_StateMachineScenario(t *testing.T) {
	h := newHarness(t, nil)

	h.run(t)
	assert.Equal(t, playback.StateNoAuth, h.status.Get().State)

	h.login(t)
	assert.Equal(t, playback.StateNoDevice, h.status.Get().State)

	h.remote.context = &player.Context{IsPlaying: true, ProgressMs: intPtr(10)}
	h.selectDevice(t)
	assert.Equal(t, playback.StatePlaying, h.status.Get().State)

	h.remote.context = &player.Context{IsPlaying: false, ProgressMs: intPtr(500)}
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StatePaused, h.status.Get().State)

	// empty list: stays NeedsSong
	h.remote.context = &player.Context{IsPlaying: false, ProgressMs: intPtr(0)}
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StateNeedsSong, h.status.Get().State)
	assert.Empty(t, h.remote.played)

	h.list.Add(track.Track{ID: "a"})
	h.list.Add(track.Track{ID: "b"})
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StateEnqueuedAndWaiting, h.status.Get().State)
	assert.Equal(t, 1, h.list.Len())
	require.Len(t, h.remote.played, 1)

	// the device has not caught up yet, no second pop within the grace period
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StateEnqueuedAndWaiting, h.status.Get().State)
	assert.Equal(t, 1, h.list.Len())

	h.remote.context = &player.Context{IsPlaying: true, ProgressMs: intPtr(900)}
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StatePlaying, h.status.Get().State)
}

func TestWorker_StatusTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.remote.context = &player.Context{IsPlaying: true}
	h.selectDevice(t)

	count := func() int {
		n := 0
		for _, c := range h.remote.calls {
			if c == "current_playback" {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, count())

	h.advance(500 * time.Millisecond)
	h.run(t)
	assert.Equal(t, 1, count(), "not due yet")

	h.advance(500 * time.Millisecond)
	h.run(t)
	assert.Equal(t, 2, count())
}

func TestWorker_TokenRefresh(t *testing.T) {
	h := newHarness(t, nil)

	// a refresh token alone is exchanged on the first routine step
	h.queue.Enqueue(taskqueue.SetAuthToken{Token: &oauth2.Token{RefreshToken: "r"}})
	h.run(t)
	assert.Equal(t, 1, h.connector.refreshes)
	assert.Equal(t, "access", h.w.token.AccessToken)

	h.advance(4 * time.Minute)
	h.run(t)
	assert.Equal(t, 1, h.connector.refreshes)

	h.advance(time.Minute)
	h.run(t)
	assert.Equal(t, 2, h.connector.refreshes)
}

func TestWorker_TokenRefreshRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.connector.refreshErr = errors.Mark(errors.New("invalid_grant"), player.ErrNotAuthenticated)

	h.queue.Enqueue(taskqueue.SetAuthToken{Token: &oauth2.Token{RefreshToken: "r"}})
	h.run(t)

	assert.False(t, h.w.authenticated())
	assert.Equal(t, playback.StateNoAuth, h.status.Get().State)
}

func TestWorker_TokenRefreshTransportFailureRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.connector.refreshErr = errors.Mark(errors.New("connection reset"), player.ErrTransport)

	h.advance(5 * time.Minute)
	h.run(t)
	assert.Equal(t, 1, h.connector.refreshes)
	assert.True(t, h.w.authenticated())

	h.advance(tokenRetryDelay)
	h.run(t)
	assert.Equal(t, 2, h.connector.refreshes)
}

func TestWorker_Request(t *testing.T) {
	chain := filter.NewChain()
	chain.Add(filter.NewTitleBlocklistFilter("scatman"))

	h := newHarness(t, nil)
	h.w.filters = chain
	h.remote.tracks["a"] = track.Track{ID: "a", Name: "Song"}
	h.remote.tracks["s"] = track.Track{ID: "s", Name: "Scatman"}

	// without a session nothing is added
	h.queue.Enqueue(taskqueue.Request{TrackID: "a"})
	h.run(t)
	assert.Equal(t, 0, h.list.Len())

	h.login(t)
	h.queue.Enqueue(taskqueue.Request{TrackID: "a"})
	h.queue.Enqueue(taskqueue.Request{TrackID: "a"})
	h.queue.Enqueue(taskqueue.Request{TrackID: "s"})
	h.queue.Enqueue(taskqueue.Request{TrackID: "missing"})
	h.run(t)

	assert.Equal(t, 1, h.list.Len())
	votes, _ := h.list.Votes("a")
	assert.Equal(t, 2, votes)
	assert.Equal(t, 2, h.notifier.queues)
}

func TestWorker_Downvote(t *testing.T) {
	h := newHarness(t, nil)
	h.list.Add(track.Track{ID: "a"})

	h.queue.Enqueue(taskqueue.Downvote{TrackID: "a"})
	h.run(t)
	assert.Equal(t, 1, h.list.Len())

	h.queue.Enqueue(taskqueue.Downvote{TrackID: "a"})
	h.queue.Enqueue(taskqueue.Downvote{TrackID: "nope"})
	h.run(t)
	assert.Equal(t, 0, h.list.Len())
	assert.Equal(t, 2, h.notifier.queues)
}

func TestWorker_SearchPublishesResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.remote.tracks["a"] = track.Track{ID: "a"}

	id := h.queue.NextTaskID()
	h.queue.Enqueue(taskqueue.Search{Query: "x", TaskID: id})
	h.run(t)

	resp, ok := h.queue.TryTake(id)
	require.True(t, ok)
	assert.True(t, errors.Is(resp.Err(), player.ErrNotAuthenticated))

	h.login(t)
	id = h.queue.NextTaskID()
	h.queue.Enqueue(taskqueue.Search{Query: "x", TaskID: id})
	h.run(t)

	resp, ok = h.queue.TryTake(id)
	require.True(t, ok)
	require.NoError(t, resp.Err())
	result, ok := resp.Value.(taskqueue.SearchResult)
	require.True(t, ok)
	assert.Len(t, result.Tracks, 1)
}

func TestWorker_ListDevicesAndSelect(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	id := h.queue.NextTaskID()
	h.queue.Enqueue(taskqueue.ListDevices{TaskID: id})
	h.run(t)
	resp, ok := h.queue.TryTake(id)
	require.True(t, ok)
	dl, ok := resp.Value.(taskqueue.DeviceList)
	require.True(t, ok)
	assert.Equal(t, "dev1", dl.Devices[0].ID)

	h.queue.Enqueue(taskqueue.SetActiveDevice{DeviceID: "ghost"})
	h.run(t)
	assert.Equal(t, "", h.w.deviceID)

	h.selectDevice(t)
	assert.Equal(t, "dev1", h.w.deviceID)

	h.queue.Enqueue(taskqueue.ClearDevice{})
	h.run(t)
	assert.Equal(t, "", h.w.deviceID)
	assert.Equal(t, playback.StateNoDevice, h.status.Get().State)
}

func TestWorker_TransportControls(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.Enqueue(taskqueue.Pause{})
	h.run(t)
	assert.Empty(t, h.remote.calls, "no session, no remote call")

	h.remote.context = &player.Context{IsPlaying: true}
	h.login(t)
	h.selectDevice(t)
	h.queue.Enqueue(taskqueue.Pause{})
	h.queue.Enqueue(taskqueue.Resume{})
	h.queue.Enqueue(taskqueue.Skip{})
	h.run(t)

	assert.Contains(t, h.remote.calls, "pause:dev1")
	assert.Contains(t, h.remote.calls, "resume:dev1")
	assert.Contains(t, h.remote.calls, "skip:dev1")
}

func TestWorker_PlayFailureRestoresEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.remote.context = &player.Context{}
	h.remote.playErr = errors.Mark(errors.New("boom"), player.ErrTransport)
	h.list.Add(track.Track{ID: "a"})
	h.list.Add(track.Track{ID: "a"})

	h.selectDevice(t)

	assert.Equal(t, playback.StateNeedsSong, h.status.Get().State)
	votes, ok := h.list.Votes("a")
	require.True(t, ok)
	assert.Equal(t, 2, votes)
}

func TestWorker_StatusErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.remote.ctxErr = errors.Mark(errors.New("no active device"), player.ErrNoDevice)
	h.selectDevice(t)
	assert.Equal(t, playback.StateNoDevice, h.status.Get().State)

	refreshes := h.connector.refreshes
	h.remote.ctxErr = errors.Mark(errors.New("expired"), player.ErrNotAuthenticated)
	h.advance(time.Second)
	h.run(t)
	assert.Equal(t, playback.StateNoAuth, h.status.Get().State)

	// refresh is due right away
	h.run(t)
	assert.Equal(t, refreshes+1, h.connector.refreshes)
}

func TestWorker_ClearAuth(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.selectDevice(t)

	h.queue.Enqueue(taskqueue.ClearAuth{})
	h.run(t)
	assert.False(t, h.w.authenticated())
	assert.Equal(t, "", h.w.deviceID)
	assert.Equal(t, playback.StateNoAuth, h.status.Get().State)
}

func TestWorker_Fallback(t *testing.T) {
	pl, err := fallback.NewPlaylistProvider(5, map[string]any{"playlist_url": "u"})
	require.NoError(t, err)
	chain := fallback.NewChain(5, []fallback.ProviderWithMetadata{{Provider: pl, DisplayName: "house"}})

	h := newHarness(t, chain)
	h.remote.playlist = []track.Track{{ID: "f1"}, {ID: "f2"}}
	h.remote.context = &player.Context{}
	h.login(t)
	h.selectDevice(t)

	assert.Equal(t, playback.StateEnqueuedAndWaiting, h.status.Get().State)
	require.Len(t, h.remote.played, 1)
	first := h.remote.played[0]

	h.advance(5 * time.Second)
	h.run(t)
	require.Len(t, h.remote.played, 2)
	assert.NotEqual(t, first, h.remote.played[1], "recent fallback tracks are not repeated")
}

func TestWorker_RequestedTracksBeforeFallback(t *testing.T) {
	pl, err := fallback.NewPlaylistProvider(5, map[string]any{"playlist_url": "u"})
	require.NoError(t, err)
	chain := fallback.NewChain(5, []fallback.ProviderWithMetadata{{Provider: pl, DisplayName: "house"}})

	h := newHarness(t, chain)
	h.remote.playlist = []track.Track{{ID: "f1"}}
	h.remote.context = &player.Context{}
	h.list.Add(track.Track{ID: "req"})
	h.login(t)
	h.selectDevice(t)

	assert.Equal(t, []string{"req"}, h.remote.played)
}

type seedRecorder struct {
	seeds [][]string
	next  int
}

func (r *seedRecorder) GetCandidates(ctx context.Context, src fallback.Source, count int, seeds []track.Track, exclude map[string]bool) ([]track.Track, error) {
	ids := make([]string, 0, len(seeds))
	for _, s := range seeds {
		ids = append(ids, s.ID)
	}
	r.seeds = append(r.seeds, ids)
	r.next++
	return []track.Track{{ID: fmt.Sprintf("f%d", r.next)}}, nil
}

func (r *seedRecorder) Name() string { return "recorder" }

func TestWorker_FallbackSeeds(t *testing.T) {
	rec := &seedRecorder{}
	chain := fallback.NewChain(1, []fallback.ProviderWithMetadata{{Provider: rec, DisplayName: "rec"}})

	h := newHarness(t, chain)
	h.remote.context = &player.Context{}
	h.list.Add(track.Track{ID: "req"})
	h.login(t)
	h.selectDevice(t)
	require.Equal(t, []string{"req"}, h.remote.played)

	for i := 0; i < 4; i++ {
		h.advance(5 * time.Second)
		h.run(t)
	}

	require.Len(t, rec.seeds, 4)
	assert.Equal(t, []string{"req"}, rec.seeds[0])
	assert.Equal(t, []string{"req", "f1"}, rec.seeds[1])
	assert.Equal(t, []string{"f1", "f2", "f3"}, rec.seeds[3], "only the most recent tracks seed")
}

type stalledStream struct{ release chan struct{} }

func (s *stalledStream) Send(*notification.Notification) error {
	<-s.release
	return errors.New("released")
}

func TestWorker_StalledSubscriberDoesNotBlock(t *testing.T) {
	manager := notification.NewManager()
	defer manager.Close()
	stream := &stalledStream{release: make(chan struct{})}
	defer close(stream.release)
	manager.Subscribe(stream)

	h := newHarness(t, nil)
	h.w.notifier = manager
	h.remote.context = &player.Context{}

	start := time.Now()
	h.login(t)
	h.selectDevice(t)
	for i := 0; i < 5; i++ {
		h.list.Add(track.Track{ID: fmt.Sprintf("r%d", i)})
		h.advance(5 * time.Second)
		h.run(t)
	}

	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Len(t, h.remote.played, 5)
}

type panickingConnector struct{ fakeConnector }

func (p *panickingConnector) Connect(ctx context.Context, token *oauth2.Token) (Remote, error) {
	panic("connector exploded")
}

func TestWorker_StepRecoversPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.w.connector = &panickingConnector{}
	h.queue.Enqueue(taskqueue.SetAuthToken{Token: &oauth2.Token{AccessToken: "a"}})

	assert.NotPanics(t, func() { h.w.step(context.Background()) })
	assert.Equal(t, 0, h.queue.Len())
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.w.now = time.Now
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.w.Run(ctx)
		close(done)
	}()

	id := h.queue.NextTaskID()
	h.queue.Enqueue(taskqueue.ListDevices{TaskID: id})
	resp := h.queue.Wait(context.Background(), id, 2*time.Second)
	assert.True(t, errors.Is(resp.Err(), player.ErrNotAuthenticated))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
