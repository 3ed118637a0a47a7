package music_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/music"
)

type generatorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f generatorFunc) Chat(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

const searchBody = `{"tracks":{"items":[
	{"id":"t1","name":"Song A","artists":[{"name":"Band"},{"name":"Guest"}],"album":{"images":[{"url":"http://img/a"}]}},
	{"id":"t2","name":"Song B","artists":[{"name":"Solo"}],"album":{"images":[]}}
]}}`

func TestSearcher_Search(t *testing.T) {
	tests := map[string]struct {
		handler    http.HandlerFunc
		matcher    music.Generator
		credential string
		query      string
		assert     func(t *testing.T, res *music.SearchResult, err error)
	}{
		"catalog results with a valid credential": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/search", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				assert.Equal(t, "song", r.URL.Query().Get("q"))
				_, _ = io.WriteString(w, searchBody)
			},
			credential: "tok",
			query:      "song",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, music.SourceCatalog, res.Source)
				assert.False(t, res.CredentialError)
				assert.Equal(t, []domain.Song{
					{ID: "t1", Title: "Song A", Artist: "Band, Guest", AlbumArt: "http://img/a"},
					{ID: "t2", Title: "Song B", Artist: "Solo"},
				}, res.Songs)
			},
		},
		"expired credential falls back and is flagged": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			credential: "old",
			query:      "queen",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				require.NoError(t, err)
				assert.True(t, res.CredentialError)
				assert.Equal(t, music.SourceBuiltin, res.Source)
				var titles []string
				for _, s := range res.Songs {
					assert.False(t, s.Playable(), s.ID)
					titles = append(titles, s.Title)
				}
				assert.Equal(t, []string{"Bohemian Rhapsody", "Dancing Queen", "Don't Stop Me Now"}, titles, "title and artist both match")
			},
		},
		"missing credential is flagged": {
			query: "queen",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				require.NoError(t, err)
				assert.True(t, res.CredentialError)
			},
		},
		"catalog failure uses the text matcher": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			matcher: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
				return "1. Song A - Band\nnot a song\n2. Song A - Band\n", nil
			}),
			credential: "tok",
			query:      "that song by band",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				require.NoError(t, err)
				assert.False(t, res.CredentialError)
				assert.Equal(t, music.SourceMatcher, res.Source)
				assert.Equal(t, []domain.Song{{ID: "synthetic:song-a-band", Title: "Song A", Artist: "Band"}}, res.Songs)
			},
		},
		"matcher failure uses the built-in catalog": {
			matcher: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
				return "", errors.New("unavailable")
			}),
			query: "nothing matches this",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, music.SourceBuiltin, res.Source)
				assert.NotNil(t, res.Songs)
				assert.Empty(t, res.Songs)
			},
		},
		"empty query": {
			query: "  ",
			assert: func(t *testing.T, res *music.SearchResult, err error) {
				assert.Error(t, err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := music.SearchConfig{}
			if tt.handler != nil {
				srv := httptest.NewServer(tt.handler)
				defer srv.Close()
				c.Catalog = music.NewCatalog(music.CatalogConfig{BaseURL: srv.URL})
			} else {
				c.Catalog = music.NewCatalog(music.CatalogConfig{BaseURL: "http://127.0.0.1:0"})
			}
			if tt.matcher != nil {
				c.Matcher = music.NewTextMatcher(tt.matcher)
			}

			res, err := music.NewSearcher(c).Search(context.Background(), music.SearchRequest{
				Query:      tt.query,
				Credential: tt.credential,
			})
			tt.assert(t, res, err)
		})
	}
}

func TestSearcher_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, searchBody)
	}))
	defer srv.Close()

	s := music.NewSearcher(music.SearchConfig{
		Catalog:     music.NewCatalog(music.CatalogConfig{BaseURL: srv.URL}),
		SearchRate:  0.001,
		SearchBurst: 1,
	})

	res, err := s.Search(context.Background(), music.SearchRequest{Query: "queen", Credential: "tok"})
	require.NoError(t, err)
	assert.Equal(t, music.SourceCatalog, res.Source)

	res, err = s.Search(context.Background(), music.SearchRequest{Query: "queen", Credential: "tok"})
	require.NoError(t, err)
	assert.Equal(t, music.SourceBuiltin, res.Source)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCatalog_Playback(t *testing.T) {
	tests := map[string]struct {
		status int
		want   error
	}{
		"played":            {status: http.StatusNoContent},
		"no active device":  {status: http.StatusNotFound, want: music.ErrNoActiveDevice},
		"playing elsewhere": {status: http.StatusForbidden, want: music.ErrPlaybackElsewhere},
		"expired":           {status: http.StatusUnauthorized, want: music.ErrCredentialExpired},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/v1/me/player/play", r.URL.Path)
				assert.Equal(t, "d1", r.URL.Query().Get("device_id"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := music.NewCatalog(music.CatalogConfig{BaseURL: srv.URL})
			err := c.PlayTrack(context.Background(), "tok", "d1", "t1")
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCatalog_Devices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me/player/devices", r.URL.Path)
		_, _ = io.WriteString(w, `{"devices":[{"id":"d1","name":"Kitchen","type":"Speaker","is_active":true}]}`)
	}))
	defer srv.Close()

	c := music.NewCatalog(music.CatalogConfig{BaseURL: srv.URL})

	got, err := c.Devices(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []music.Device{{ID: "d1", Name: "Kitchen", Type: "Speaker", IsActive: true}}, got)

	_, err = c.Devices(context.Background(), "")
	assert.ErrorIs(t, err, music.ErrCredentialExpired)
}
