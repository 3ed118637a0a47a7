// Package music searches songs and controls the host's remote playback.
package music

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/telemetry"
)

const (
	SourceCatalog = "catalog"
	SourceMatcher = "matcher"
	SourceBuiltin = "builtin"

	defaultSearchRate  = 5
	defaultSearchBurst = 10
)

type SearchConfig struct {
	// Catalog and Matcher are optional; the built-in catalog is always there as the last resort.
	Catalog *Catalog
	Matcher *TextMatcher

	// SearchRate and SearchBurst limit catalog calls per second across all rooms.
	SearchRate  float64
	SearchBurst int
}

// Searcher resolves a query through the catalog when a valid credential is available, and degrades to the
// text matcher and then the built-in catalog.
type Searcher struct {
	catalog *Catalog
	matcher *TextMatcher
	limiter *rate.Limiter
}

func NewSearcher(c SearchConfig) *Searcher {
	if c.SearchRate <= 0 {
		c.SearchRate = defaultSearchRate
	}
	if c.SearchBurst <= 0 {
		c.SearchBurst = defaultSearchBurst
	}

	return &Searcher{
		catalog: c.Catalog,
		matcher: c.Matcher,
		limiter: rate.NewLimiter(rate.Limit(c.SearchRate), c.SearchBurst),
	}
}

type SearchRequest struct {
	Query      string
	Credential string
	Limit      int
}

type SearchResult struct {
	Songs  []domain.Song `json:"songs"`
	Source string        `json:"source"`
	// CredentialError tells the client to reconnect the music service. The songs then come from a fallback source.
	CredentialError bool `json:"credentialError"`
}

// Search never fails because a collaborator is down, only for an invalid request.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("query is required"))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	res := &SearchResult{}

	switch {
	case s.catalog == nil:
	case req.Credential == "":
		res.CredentialError = true
	case !s.limiter.Allow():
		telemetry.Fallbacks.WithLabelValues("search", "rate_limited").Inc()
	default:
		songs, err := s.catalog.Search(ctx, req.Credential, query, limit)
		if err == nil {
			res.Songs, res.Source = songs, SourceCatalog
			return res, nil
		}

		if errors.HasCode(err, errors.CodeUnauthenticated) {
			res.CredentialError = true
			telemetry.Fallbacks.WithLabelValues("search", "credential").Inc()
		} else {
			telemetry.Fallbacks.WithLabelValues("search", "error").Inc()
			slog.WarnContext(ctx, "music: catalog search failed", "error", err)
		}
	}

	if s.matcher != nil {
		songs, err := s.matcher.Match(ctx, query, limit)
		if err == nil && len(songs) > 0 {
			res.Songs, res.Source = songs, SourceMatcher
			return res, nil
		}
		if err != nil {
			telemetry.Fallbacks.WithLabelValues("matcher", "error").Inc()
			slog.WarnContext(ctx, "music: text matcher failed", "error", err)
		}
	}

	res.Songs, res.Source = searchBuiltin(query, limit), SourceBuiltin
	if res.Songs == nil {
		res.Songs = []domain.Song{}
	}

	return res, nil
}
