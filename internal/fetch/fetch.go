// Package fetch collects raw candidate documents: web search via Tavily
// and per-article body extraction via readability.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/resilience"
	"github.com/centinela-labs/centinela/pkg/tavily"
)

// RawDocument is one search hit before extraction.
type RawDocument struct {
	Title         string
	URL           string
	Snippet       string
	PublishedDate string
}

// Searcher finds candidate documents for a query. May return fewer
// results than requested; transport failures surface as errors and the
// caller degrades to an empty candidate list.
type Searcher interface {
	Search(ctx context.Context, query string) ([]RawDocument, error)
}

// Fetcher retrieves the readable body text of one document. Failures are
// per-document and must not abort the batch.
type Fetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (string, error)
}

type tavilySearcher struct {
	client      tavily.Client
	maxResults  int
	searchDepth string
	retry       resilience.RetryConfig
}

// NewSearcher creates a Searcher backed by the Tavily API. An empty
// searchDepth uses the client default.
func NewSearcher(client tavily.Client, maxResults, retries int, searchDepth string) Searcher {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &tavilySearcher{
		client:      client,
		maxResults:  maxResults,
		searchDepth: searchDepth,
		retry: resilience.RetryConfig{
			MaxAttempts: retries + 1,
			ShouldRetry: shouldRetrySearch,
			OnRetry:     resilience.RetryLogger("tavily", "search"),
		},
	}
}

// shouldRetrySearch retries network-level failures and transient API
// statuses; auth and request errors fail immediately.
func shouldRetrySearch(err error) bool {
	var se *tavily.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.Code)
	}
	return resilience.IsTransient(err)
}

func (s *tavilySearcher) Search(ctx context.Context, query string) ([]RawDocument, error) {
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*tavily.SearchResponse, error) {
		return s.client.Search(ctx, tavily.SearchRequest{
			Query:       query,
			SearchDepth: s.searchDepth,
			MaxResults:  s.maxResults,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: search")
	}

	docs := make([]RawDocument, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = "Noticia sin título"
		}
		docs = append(docs, RawDocument{
			Title:         title,
			URL:           r.URL,
			Snippet:       r.Content,
			PublishedDate: r.PublishedDate,
		})
	}
	return docs, nil
}

const fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type articleFetcher struct {
	http *http.Client
}

// NewFetcher creates a Fetcher with a bounded per-document timeout.
func NewFetcher(timeout time.Duration) Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &articleFetcher{
		http: &http.Client{Timeout: timeout},
	}
}

func (f *articleFetcher) FetchDocument(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetch: parse url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "fetch: get document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("fetch: document returned status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", eris.Wrap(err, "fetch: extract article")
	}

	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return "", eris.Wrap(err, "fetch: render article text")
	}

	body := strings.TrimSpace(builder.String())
	zap.L().Debug("fetch: extracted article",
		zap.String("url", rawURL),
		zap.Int("chars", len(body)),
	)
	return body, nil
}
