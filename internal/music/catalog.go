package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
)

const (
	defaultBaseURL     = "https://api.spotify.com"
	defaultHTTPTimeout = 10 * time.Second
	defaultSearchLimit = 10
)

var (
	ErrCredentialExpired = errors.New(errors.CodeUnauthenticated, errors.WithMessagef("music service credential is missing or expired, reconnect to search the catalog"))
	ErrNoActiveDevice    = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("No active playback device. Open the music app on a device and try again."))
	ErrPlaybackElsewhere = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("Playback is controlled from another device. Transfer playback to this device first."))
)

// Device is a remote playback target of the host's music account.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

type CatalogConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Catalog talks to the music service's Web API on behalf of the credential passed to each call.
type Catalog struct {
	baseURL string
	http    *http.Client
}

func NewCatalog(c CatalogConfig) *Catalog {
	cat := &Catalog{
		baseURL: strings.TrimRight(c.BaseURL, "/"),
		http:    c.HTTPClient,
	}

	if cat.baseURL == "" {
		cat.baseURL = defaultBaseURL
	}
	if cat.http == nil {
		cat.http = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return cat
}

type searchResponse struct {
	Tracks struct {
		Items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Images []struct {
					URL string `json:"url"`
				} `json:"images"`
			} `json:"album"`
		} `json:"items"`
	} `json:"tracks"`
}

// Search looks up tracks in the catalog.
func (c *Catalog) Search(ctx context.Context, token, query string, limit int) ([]domain.Song, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", strconv.Itoa(limit))

	var out searchResponse
	if err := c.do(ctx, token, http.MethodGet, "/v1/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}

	songs := make([]domain.Song, 0, len(out.Tracks.Items))
	for _, it := range out.Tracks.Items {
		s := domain.Song{ID: it.ID, Title: it.Name}

		artists := make([]string, 0, len(it.Artists))
		for _, a := range it.Artists {
			artists = append(artists, a.Name)
		}
		s.Artist = strings.Join(artists, ", ")

		if len(it.Album.Images) > 0 {
			s.AlbumArt = it.Album.Images[0].URL
		}
		songs = append(songs, s)
	}

	return songs, nil
}

// Devices lists the playback devices of the credential's account.
func (c *Catalog) Devices(ctx context.Context, token string) ([]Device, error) {
	var out struct {
		Devices []Device `json:"devices"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/v1/me/player/devices", nil, &out); err != nil {
		return nil, err
	}

	return out.Devices, nil
}

// TransferPlayback makes deviceID the active device without starting playback.
func (c *Catalog) TransferPlayback(ctx context.Context, token, deviceID string) error {
	body := map[string]any{"device_ids": []string{deviceID}, "play": false}
	return c.do(ctx, token, http.MethodPut, "/v1/me/player", body, nil)
}

// PlayTrack starts trackID on deviceID, or on the active device when deviceID is empty.
func (c *Catalog) PlayTrack(ctx context.Context, token, deviceID, trackID string) error {
	body := map[string]any{"uris": []string{"spotify:track:" + trackID}}
	return c.do(ctx, token, http.MethodPut, "/v1/me/player/play"+deviceQuery(deviceID), body, nil)
}

// Pause pauses deviceID, or the active device when deviceID is empty.
func (c *Catalog) Pause(ctx context.Context, token, deviceID string) error {
	return c.do(ctx, token, http.MethodPut, "/v1/me/player/pause"+deviceQuery(deviceID), nil, nil)
}

func deviceQuery(deviceID string) string {
	if deviceID == "" {
		return ""
	}

	return "?device_id=" + url.QueryEscape(deviceID)
}

func (c *Catalog) do(ctx context.Context, token, method, path string, in, out any) error {
	if token == "" {
		return ErrCredentialExpired
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("music: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("music: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("music: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrCredentialExpired
	case resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/v1/me/player"):
		return ErrNoActiveDevice
	case resp.StatusCode == http.StatusForbidden && strings.HasPrefix(path, "/v1/me/player"):
		return ErrPlaybackElsewhere
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("music: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("music: decode response: %w", err)
	}

	return nil
}
