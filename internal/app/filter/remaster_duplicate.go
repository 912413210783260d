package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/jukeula/internal/domain/track"
)

const remasterFilterName = "remaster_duplicate_filter"

// TrackSource lists the tracks currently waiting to be played.
type TrackSource interface {
	Tracks() []track.Track
}

// RemasterDuplicateFilter rejects a request for another version of a song
// that is already waiting under a different track ID (remasters, radio edits,
// live takes). Requesting the same ID again is a vote, not a duplicate.
// Cover songs (same title, different artist) are allowed.
type RemasterDuplicateFilter struct {
	source TrackSource
}

// NewRemasterDuplicateFilter creates a new remaster duplicate filter.
func NewRemasterDuplicateFilter(source TrackSource) *RemasterDuplicateFilter {
	return &RemasterDuplicateFilter{source: source}
}

func (f *RemasterDuplicateFilter) Name() string {
	return remasterFilterName
}

func (f *RemasterDuplicateFilter) Description() string {
	return "Rejects other versions (remasters, edits, live) of songs already waiting; covers are allowed"
}

func (f *RemasterDuplicateFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *RemasterDuplicateFilter) AppliesTo(origin Origin) bool {
	return origin == OriginRequest
}

func (f *RemasterDuplicateFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *RemasterDuplicateFilter) Check(ctx context.Context, requested track.Track) Result {
	if f.source == nil {
		return Accept()
	}

	for _, waiting := range f.source.Tracks() {
		if waiting.ID == requested.ID {
			continue
		}
		if isRemaster(waiting, requested) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// versionSuffixes strip remaster and version markers from a lowercased title.
var versionSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
	regexp.MustCompile(`\s*[(\[]remaster(ed)?\s*\d{0,4}[)\]]`), // "(Remastered 2023)", "[Remastered]"
	regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
	regexp.MustCompile(`\s*[(\[][^)\]]*remaster[^)\]]*[)\]]`),  // "(Any Remaster text)"
	regexp.MustCompile(`\s*\([^)]*(version|edit)\)`),         // "(Single Version)", "(Radio Edit)"
	regexp.MustCompile(`\s*-?\s*\(?live\)?`),                // "- Live", "(Live)"
	regexp.MustCompile(`\s*-?\s*(radio\s+edit|single\s+version)`),
}

var spaces = regexp.MustCompile(`\s+`)

// isRemaster reports whether two tracks are versions of the same song by the
// same main artist.
func isRemaster(a, b track.Track) bool {
	if normalizeTitle(a.Name) != normalizeTitle(b.Name) {
		return false
	}
	if len(a.Artists) == 0 || len(b.Artists) == 0 {
		return false
	}
	return strings.EqualFold(a.Artists[0], b.Artists[0])
}

func normalizeTitle(name string) string {
	s := strings.ToLower(name)
	for _, re := range versionSuffixes {
		s = re.ReplaceAllString(s, "")
	}
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.TrimRight(s, " -")
}

func init() {
	Register(remasterFilterName, func() Filter {
		return NewRemasterDuplicateFilter(nil)
	})
}
