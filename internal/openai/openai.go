// Package openai is a small client for OpenAI-compatible chat completion and speech endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	defaultSpeechModel = "tts-1"
	defaultVoice       = "alloy"
	defaultHTTPTimeout = 20 * time.Second
)

// ErrNotConfigured is returned by every call of a client built without an API key.
var ErrNotConfigured = errors.New("openai: api key is not configured")

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	SpeechModel string
	Voice       string
	HTTPClient  *http.Client
}

type Client struct {
	baseURL     string
	apiKey      string
	model       string
	speechModel string
	voice       string
	http        *http.Client
}

func NewClient(c Config) *Client {
	cl := &Client{
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		apiKey:      strings.TrimSpace(c.APIKey),
		model:       c.Model,
		speechModel: c.SpeechModel,
		voice:       c.Voice,
		http:        c.HTTPClient,
	}

	if cl.baseURL == "" {
		cl.baseURL = defaultBaseURL
	}
	if cl.model == "" {
		cl.model = defaultModel
	}
	if cl.speechModel == "" {
		cl.speechModel = defaultSpeechModel
	}
	if cl.voice == "" {
		cl.voice = defaultVoice
	}
	if cl.http == nil {
		cl.http = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return cl
}

// Configured reports whether the client has credentials to call the API.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a single system + user exchange and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, system, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := c.post(ctx, "/v1/chat/completions", chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.9,
		MaxTokens:   700,
	})
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("openai: decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Speech synthesizes input and returns mp3 audio.
func (c *Client) Speech(ctx context.Context, input string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	return c.post(ctx, "/v1/audio/speech", speechRequest{
		Model:          c.speechModel,
		Input:          input,
		Voice:          c.voice,
		ResponseFormat: "mp3",
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Error != nil && e.Error.Message != "" {
			return nil, fmt.Errorf("openai: %s: status %d: %s", path, resp.StatusCode, e.Error.Message)
		}
		return nil, fmt.Errorf("openai: %s: status %d", path, resp.StatusCode)
	}

	return body, nil
}
