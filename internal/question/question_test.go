package question_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/question"
)

type generatorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f generatorFunc) Chat(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

func TestService_Questions(t *testing.T) {
	tests := map[string]struct {
		gen    question.Generator
		count  int
		assert func(t *testing.T, got []string)
	}{
		"no generator uses built-in prompts": {
			count: 10,
			assert: func(t *testing.T, got []string) {
				assert.Equal(t, question.Fallback(10), got)
			},
		},
		"generator failure uses built-in prompts": {
			gen: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
				return "", errors.New("unavailable")
			}),
			count: 10,
			assert: func(t *testing.T, got []string) {
				assert.Equal(t, question.Fallback(10), got)
			},
		},
		"generated prompts are parsed": {
			gen: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
				assert.Contains(t, prompt, "Write 2 different prompts.")
				return "1. A song about the sea\n2. \"A song for Mondays\"\n", nil
			}),
			count: 2,
			assert: func(t *testing.T, got []string) {
				assert.Equal(t, []string{"A song about the sea", "A song for Mondays"}, got)
			},
		},
		"short answer is topped up": {
			gen: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
				return "- A song about the sea", nil
			}),
			count: 10,
			assert: func(t *testing.T, got []string) {
				require.Len(t, got, 10)
				assert.Equal(t, "A song about the sea", got[0])
				assert.Equal(t, question.Fallback(1)[0], got[1])
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := question.NewService(question.Config{Generator: tt.gen})
			tt.assert(t, s.Questions(context.Background(), tt.count))
		})
	}
}

func TestParse(t *testing.T) {
	got := question.Parse("\n* A song to cook to\n\n2) a song to cook to\n• Your anthem\n")
	assert.Equal(t, []string{"A song to cook to", "Your anthem"}, got)
}

func TestFallback(t *testing.T) {
	assert.Len(t, question.Fallback(10), 10)
	assert.Len(t, question.Fallback(15), 15)
	assert.Empty(t, question.Fallback(0))
}
