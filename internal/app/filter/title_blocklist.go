package filter

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/domain/track"
)

// TitleBlocklistConfig represents the configuration for TitleBlocklistFilter.
type TitleBlocklistConfig struct {
	Words []string `yaml:"words" mapstructure:"words" validate:"dive,required"`
}

// TitleBlocklistFilter rejects tracks whose title contains a blocked word.
// Matching is case-insensitive.
type TitleBlocklistFilter struct {
	words []string
}

// NewTitleBlocklistFilter creates a filter blocking the given words.
func NewTitleBlocklistFilter(words ...string) *TitleBlocklistFilter {
	f := &TitleBlocklistFilter{}
	f.setWords(words)
	return f
}

func (f *TitleBlocklistFilter) Name() string {
	return "title_blocklist_filter"
}

func (f *TitleBlocklistFilter) Description() string {
	return "Rejects tracks whose title contains a blocked word"
}

func (f *TitleBlocklistFilter) ReturnCodes() []string {
	return []string{"title_blocked"}
}

func (f *TitleBlocklistFilter) ValidateConfig(settings map[string]any) error {
	var config TitleBlocklistConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.setWords(config.Words)
	zlog.Info().Msgf("title blocklist filter config: words=%d", len(f.words))
	return nil
}

func (f *TitleBlocklistFilter) AppliesTo(origin Origin) bool {
	return origin == OriginRequest
}

func (f *TitleBlocklistFilter) Check(ctx context.Context, t track.Track) Result {
	title := strings.ToLower(t.Name)
	for _, w := range f.words {
		if strings.Contains(title, w) {
			return Reject("title_blocked")
		}
	}
	return Accept()
}

func (f *TitleBlocklistFilter) setWords(words []string) {
	f.words = f.words[:0]
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			f.words = append(f.words, w)
		}
	}
}

func init() {
	Register("title_blocklist_filter", func() Filter {
		return &TitleBlocklistFilter{}
	})
}
