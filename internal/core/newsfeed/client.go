// Package newsfeed is the governed caller for the upstream news API. Every
// request is admitted through the engine guard, so bucket quotas, the
// coordination window, retries, and circuit breakers all apply.
package newsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/retry"
)

const defaultBaseURL = "https://newsapi.org/v2"

// FetchRecorder persists governed fetch outcomes. Implemented by store.Store.
type FetchRecorder interface {
	RecordFetch(ctx context.Context, endpoint, bucket string, result core.RetryResult) error
}

// Client fetches news through the resilience guard. Each traffic class maps
// onto the rate limit bucket of the same name and its own breaker endpoint.
type Client struct {
	Guard    *engine.Guard
	HTTP     *http.Client
	BaseURL  string
	APIKey   string
	Recorder FetchRecorder
	Clock    func() time.Time
}

// Article is the minimal slice of the upstream payload the assistant needs.
// Everything else stays opaque.
type Article struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// FetchResult reports one governed fetch.
type FetchResult struct {
	FetchID      string             `json:"fetch_id"`
	Class        core.TrafficClass  `json:"class"`
	Endpoint     string             `json:"endpoint"`
	Articles     []Article          `json:"articles,omitempty"`
	TotalResults int                `json:"total_results"`
	Outcome      engine.Outcome     `json:"outcome"`
	RequestedAt  time.Time          `json:"requested_at"`
	ResolvedAt   time.Time          `json:"resolved_at"`
}

// classRoute maps a traffic class onto an upstream path and fixed parameters.
type classRoute struct {
	path   string
	params url.Values
}

func routeFor(class core.TrafficClass) (classRoute, error) {
	switch class {
	case core.ClassLatest:
		return classRoute{path: "top-headlines", params: url.Values{}}, nil
	case core.ClassArchive:
		return classRoute{path: "everything", params: url.Values{}}, nil
	case core.ClassCrypto:
		return classRoute{path: "everything", params: url.Values{"q": {"crypto OR bitcoin OR ethereum"}}}, nil
	case core.ClassMarket:
		return classRoute{path: "top-headlines", params: url.Values{"category": {"business"}}}, nil
	default:
		return classRoute{}, fmt.Errorf("unknown traffic class: %s", class)
	}
}

// Endpoint returns the breaker endpoint name for a traffic class.
func Endpoint(class core.TrafficClass) string {
	return "news/" + string(class)
}

// Fetch performs one governed fetch for the traffic class. Rate limit
// denials and upstream failures come back inside the result's Outcome;
// the returned error is reserved for caller mistakes.
func (c *Client) Fetch(ctx context.Context, class core.TrafficClass, query string) (*FetchResult, error) {
	if c == nil || c.Guard == nil {
		return nil, errors.New("newsfeed client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	route, err := routeFor(class)
	if err != nil {
		return nil, err
	}

	endpoint := Endpoint(class)
	requestedAt := c.now()

	var (
		articles []Article
		total    int
	)

	op := func(ctx context.Context) error {
		reqURL, err := c.requestURL(route, query)
		if err != nil {
			return retry.MarkNonRetryable(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return retry.MarkNonRetryable(err)
		}
		req.Header.Set("Accept", "application/json")
		if key := strings.TrimSpace(c.APIKey); key != "" {
			req.Header.Set("X-Api-Key", key)
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

		switch {
		case resp.StatusCode == http.StatusOK:
			payload, err := decodePayload(resp.Body)
			if err != nil {
				return err
			}
			articles = payload.articles()
			total = payload.TotalResults
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return &retry.RateLimitError{
				RetryAfter: retryAfterHeader(resp),
				Err:        fmt.Errorf("news api throttled %s", endpoint),
			}
		case resp.StatusCode == http.StatusForbidden && isQuotaResponse(resp.Body):
			return fmt.Errorf("news api daily quota exceeded for %s", endpoint)
		case resp.StatusCode >= 500:
			return fmt.Errorf("news api responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		default:
			return retry.MarkNonRetryable(
				fmt.Errorf("news api responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		}
	}

	outcome, err := c.Guard.Do(ctx, string(class), endpoint, 1, op, nil)
	if err != nil {
		return nil, err
	}

	if c.Recorder != nil && outcome.Retry != nil {
		_ = c.Recorder.RecordFetch(ctx, endpoint, string(class), *outcome.Retry)
	}

	result := &FetchResult{
		FetchID:     uuid.New().String(),
		Class:       class,
		Endpoint:    endpoint,
		Outcome:     outcome,
		RequestedAt: requestedAt,
		ResolvedAt:  c.now(),
	}
	if outcome.Allowed() {
		result.Articles = articles
		result.TotalResults = total
	}

	return result, nil
}

func (c *Client) requestURL(route classRoute, query string) (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid news base url: %w", err)
	}

	parsed = parsed.JoinPath(route.path)

	params := url.Values{}
	for key, values := range route.params {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}
	parsed.RawQuery = params.Encode()

	return parsed.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

type upstreamPayload struct {
	Status       string `json:"status"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (p *upstreamPayload) articles() []Article {
	if p == nil || len(p.Articles) == 0 {
		return nil
	}

	out := make([]Article, 0, len(p.Articles))
	for _, a := range p.Articles {
		out = append(out, Article{
			Source:      a.Source.Name,
			Title:       a.Title,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	return out
}

func decodePayload(body io.Reader) (*upstreamPayload, error) {
	payload := &upstreamPayload{}
	if err := json.NewDecoder(body).Decode(payload); err != nil {
		return nil, retry.MarkNonRetryable(fmt.Errorf("decode news payload: %w", err))
	}
	return payload, nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func isQuotaResponse(body io.Reader) bool {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return false
	}
	lowered := strings.ToLower(string(data))
	return strings.Contains(lowered, "quota")
}
