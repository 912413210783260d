// Package songlist holds the requested songs and their votes.
package songlist

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/osa030/jukeula/internal/domain/track"
)

// DefaultEvictThreshold is the vote count at or below which an entry is
// removed. A fresh request (1 vote) downvoted twice reaches -1 and is evicted;
// the comparison is inclusive, so an entry never sits at the threshold.
const DefaultEvictThreshold = -1

// Entry is a requested track and its vote count.
type Entry struct {
	Track track.Track
	Votes int
}

// List maps track IDs to entries. All operations are safe for concurrent use
// and each one runs in a single critical section.
type List struct {
	mu             sync.Mutex
	entries        map[string]*Entry
	evictThreshold int
	rng            *rand.Rand
}

// New creates an empty list. Entries whose votes drop to evictThreshold or
// below are removed.
func New(evictThreshold int) *List {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return &List{
		entries:        make(map[string]*Entry),
		evictThreshold: evictThreshold,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Add records a request for t and returns the new vote count.
// The first request's metadata is kept.
func (l *List) Add(t track.Track) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[t.ID]; ok {
		e.Votes++
		return e.Votes
	}
	l.entries[t.ID] = &Entry{Track: t, Votes: 1}
	return 1
}

// Downvote decrements the votes of id and reports whether the entry was
// evicted. ok is false for unknown IDs, which are ignored.
func (l *List) Downvote(id string) (votes int, evicted, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return 0, false, false
	}
	e.Votes--
	if e.Votes <= l.evictThreshold {
		delete(l.entries, id)
		return e.Votes, true, true
	}
	return e.Votes, false, true
}

// NextUp removes and returns a uniformly chosen entry.
func (l *List) NextUp() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}

	// map iteration order is not uniform, pick from sorted keys
	keys := l.sortedKeysLocked()
	id := keys[l.rng.Intn(len(keys))]
	e := l.entries[id]
	delete(l.entries, id)
	return *e, true
}

// Restore puts back an entry taken by NextUp that could not be played.
// If the track was requested again in the meantime the votes are merged.
func (l *List) Restore(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.entries[e.Track.ID]; ok {
		cur.Votes += e.Votes
		return
	}
	cp := e
	l.entries[e.Track.ID] = &cp
}

// Snapshot returns a copy of the entries, most voted first.
func (l *List) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Track.ID < out[j].Track.ID
	})
	return out
}

// Tracks returns the waiting tracks.
func (l *List) Tracks() []track.Track {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]track.Track, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Track)
	}
	return out
}

// Votes returns the vote count of id.
func (l *List) Votes(id string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return 0, false
	}
	return e.Votes, true
}

// Len returns the number of distinct tracks.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *List) sortedKeysLocked() []string {
	keys := make([]string, 0, len(l.entries))
	for id := range l.entries {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}
