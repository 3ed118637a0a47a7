// Package speech announces reveals out loud.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Speech(ctx context.Context, input string) ([]byte, error)
}

type Config struct {
	Synthesizer Synthesizer
}

type Service struct {
	synth Synthesizer
}

func NewService(c Config) *Service {
	return &Service{synth: c.Synthesizer}
}

// Announce returns the audio of "<title> by <artist> was picked by <submitter>".
func (s *Service) Announce(ctx context.Context, title, artist, submitter string) ([]byte, error) {
	text := Script(title, artist, submitter)
	if text == "" {
		return nil, errors.New("speech: nothing to announce")
	}

	audio, err := s.synth.Speech(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech: empty audio")
	}

	return audio, nil
}

// Script is the sentence read for a reveal.
func Script(title, artist, submitter string) string {
	title, artist, submitter = strings.TrimSpace(title), strings.TrimSpace(artist), strings.TrimSpace(submitter)
	if title == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(title)
	if artist != "" {
		b.WriteString(" by ")
		b.WriteString(artist)
	}
	if submitter != "" {
		b.WriteString(" was picked by ")
		b.WriteString(submitter)
	}
	b.WriteString(".")

	return b.String()
}
