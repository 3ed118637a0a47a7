package music

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/victornm/songparty/internal/domain"
)

const matcherSystemPrompt = "You identify songs from free text. Answer with up to %d real songs that match the text, " +
	"one per line formatted as: Title - Artist. Nothing else."

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Generator produces free text from a chat model.
type Generator interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

// TextMatcher guesses songs from the query text with a language model. Its songs are not in the
// catalog and carry synthetic IDs.
type TextMatcher struct {
	gen Generator
}

func NewTextMatcher(gen Generator) *TextMatcher {
	return &TextMatcher{gen: gen}
}

func (m *TextMatcher) Match(ctx context.Context, query string, limit int) ([]domain.Song, error) {
	raw, err := m.gen.Chat(ctx, fmt.Sprintf(matcherSystemPrompt, limit), query)
	if err != nil {
		return nil, err
	}

	return parseMatches(raw, limit), nil
}

func parseMatches(raw string, limit int) []domain.Song {
	seen := make(map[string]bool)
	var out []domain.Song

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.)"))
		title, artist, ok := strings.Cut(line, " - ")
		title, artist = strings.Trim(strings.TrimSpace(title), `"`), strings.TrimSpace(artist)
		if !ok || title == "" || artist == "" {
			continue
		}

		id := SyntheticID(title, artist)
		if seen[id] {
			continue
		}
		seen[id] = true

		out = append(out, domain.Song{ID: id, Title: title, Artist: artist})
		if len(out) == limit {
			break
		}
	}

	return out
}

// SyntheticID derives a stable non-catalog song ID from title and artist.
func SyntheticID(title, artist string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(title+" "+artist), "-")
	return domain.SyntheticSongPrefix + strings.Trim(slug, "-")
}
