package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/songparty/internal/telemetry"
)

const (
	maxPromptLength = 140

	systemPrompt = "You write prompts for a party music game. Each prompt asks players to pick a song, " +
		"for example \"A song you would play on a road trip\". Answer with one prompt per line, nothing else."
)

var fallbackPrompts = []string{
	"A song you would play on a road trip",
	"A song that reminds you of your childhood",
	"The perfect song for a rainy day",
	"A song you secretly know all the words to",
	"A song that should be played at your wedding",
	"A song to get everyone on the dance floor",
	"The best song to work out to",
	"A song that makes you feel nostalgic",
	"A song you would sing at karaoke",
	"A song that describes your week",
	"A song you would play at a summer barbecue",
	"A song that always cheers you up",
}

// Fallback returns count built-in prompts. Prompts repeat when count exceeds the built-in list.
func Fallback(count int) []string {
	if count <= 0 {
		return nil
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, fallbackPrompts[i%len(fallbackPrompts)])
	}

	return out
}

// Generator produces free text from a chat model.
type Generator interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

type Config struct {
	// Generator is optional, without one every call returns the built-in prompts.
	Generator Generator
	Theme     string
}

type Service struct {
	gen   Generator
	theme string
}

func NewService(c Config) *Service {
	return &Service{
		gen:   c.Generator,
		theme: c.Theme,
	}
}

// Questions returns exactly count prompts. It never fails: a generator error or a short answer is
// topped up with built-in prompts.
func (s *Service) Questions(ctx context.Context, count int) []string {
	if count <= 0 {
		return nil
	}
	if s.gen == nil {
		return Fallback(count)
	}

	raw, err := s.gen.Chat(ctx, systemPrompt, s.request(count))
	if err != nil {
		telemetry.Fallbacks.WithLabelValues("question", "error").Inc()
		slog.WarnContext(ctx, "question: generation failed, using built-in prompts", "error", err)
		return Fallback(count)
	}

	prompts := Parse(raw)
	if len(prompts) < count {
		telemetry.Fallbacks.WithLabelValues("question", "short").Inc()
		slog.WarnContext(ctx, "question: generator returned too few prompts", "got", len(prompts), "want", count)
		prompts = topUp(prompts, count)
	}

	return prompts[:count]
}

func (s *Service) request(count int) string {
	req := fmt.Sprintf("Write %d different prompts.", count)
	if s.theme != "" {
		req += " Theme: " + s.theme + "."
	}

	return req
}

// Parse reads one prompt per line, stripping list markers and numbering, and drops blanks and duplicates.
func Parse(raw string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)")
		line = strings.Trim(strings.TrimSpace(line), `"`)
		line = strings.TrimSpace(line)

		if line == "" || len(line) > maxPromptLength {
			continue
		}

		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
	}

	return out
}

func topUp(prompts []string, count int) []string {
	seen := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		seen[strings.ToLower(p)] = true
	}

	for _, p := range Fallback(count) {
		if len(prompts) >= count {
			break
		}
		if !seen[strings.ToLower(p)] {
			prompts = append(prompts, p)
		}
	}

	// Fallback alone may not have enough distinct prompts left.
	for len(prompts) < count {
		prompts = append(prompts, fallbackPrompts[len(prompts)%len(fallbackPrompts)])
	}

	return prompts
}
