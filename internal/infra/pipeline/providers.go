package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"feedgate/internal/domain/entity"
	"feedgate/internal/resilience/circuitbreaker"
	"feedgate/internal/resilience/retry"
)

// ProviderKind selects the response variant a provider returns. Providers are
// heterogeneous: some parse the feed server-side and return JSON, some wrap
// the raw upstream body in a JSON envelope. The variant is resolved by
// provider identity, never by sniffing the response shape.
type ProviderKind string

const (
	// KindJSONAggregator is an rss2json-style service that parses the feed
	// itself and returns {status, feed, items}.
	KindJSONAggregator ProviderKind = "json_aggregator"

	// KindWrappedContents is an allorigins-style service that returns the
	// raw upstream body inside a {contents: "..."} envelope.
	KindWrappedContents ProviderKind = "wrapped_contents"
)

// Provider is one feed-conversion service tried between the direct fetch and
// the raw CORS relays.
type Provider struct {
	Name        string
	Kind        ProviderKind
	URLTemplate string
	Timeout     time.Duration

	// APIKeyParam/APIKeyEnv enable keyed access when the env variable is
	// set; otherwise the provider runs in rate-limited anonymous mode.
	APIKeyParam string
	APIKeyEnv   string

	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
}

// DefaultProviders returns the built-in provider list in try order:
// JSON aggregators first because they normalize dates and encodings
// server-side, which sidesteps a class of parse failures.
func DefaultProviders() []*Provider {
	providers := []*Provider{
		{
			Name:        "rss2json",
			Kind:        KindJSONAggregator,
			URLTemplate: "https://api.rss2json.com/v1/api.json?rss_url=",
			Timeout:     8 * time.Second,
			APIKeyParam: "api_key",
			APIKeyEnv:   "RSS2JSON_API_KEY",
		},
		{
			Name:        "allorigins-get",
			Kind:        KindWrappedContents,
			URLTemplate: "https://api.allorigins.win/get?url=",
			Timeout:     8 * time.Second,
		},
	}
	for _, p := range providers {
		p.init()
	}
	return providers
}

// init attaches the breaker and retry config. Separate from construction so
// tests can build providers literally and still get gated execution.
func (p *Provider) init() {
	if p.breaker == nil {
		p.breaker = circuitbreaker.New(circuitbreaker.ProviderConfig(p.Name))
	}
	if p.retryCfg.MaxAttempts == 0 {
		p.retryCfg = retry.ProviderConfig()
	}
	if p.Timeout <= 0 {
		p.Timeout = 8 * time.Second
	}
}

// requestURL builds the provider request URL for a target feed URL.
func (p *Provider) requestURL(target string) string {
	u := p.URLTemplate + url.QueryEscape(target)

	if p.APIKeyParam != "" && p.APIKeyEnv != "" {
		if key := os.Getenv(p.APIKeyEnv); key != "" {
			u += "&" + p.APIKeyParam + "=" + url.QueryEscape(key)
		}
	}
	return u
}

// fetch retrieves and decodes the feed through this provider, with retry and
// circuit breaking. The raw XML inside a wrapped-contents envelope is parsed
// by the caller's XML path so both variants converge on one Result shape.
func (p *Provider) fetch(ctx context.Context, client *http.Client, target string, maxBytes int64, clock func() time.Time) (*Result, error) {
	var result *Result

	err := retry.WithBackoff(ctx, p.retryCfg, func() error {
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.doFetch(ctx, client, target, maxBytes, clock)
		})
		if err != nil {
			return err
		}
		result = out.(*Result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Provider) doFetch(ctx context.Context, client *http.Client, target string, maxBytes int64, clock func() time.Time) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.requestURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("User-Agent", "feedgate/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s request failed: %w", p.Name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: provider %s returned 404", entity.ErrNotFound, p.Name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: provider response exceeds %d bytes", entity.ErrSecurityValidation, maxBytes)
	}

	return p.decode(body, clock)
}

// decode resolves the response variant by the provider's declared kind.
func (p *Provider) decode(body []byte, clock func() time.Time) (*Result, error) {
	switch p.Kind {
	case KindJSONAggregator:
		return decodeAggregator(body, clock)
	case KindWrappedContents:
		return decodeWrapped(body, clock)
	default:
		return nil, fmt.Errorf("provider %s has unknown kind %q", p.Name, p.Kind)
	}
}

// aggregatorResponse is the rss2json-style server-side-parsed variant.
type aggregatorResponse struct {
	Status string `json:"status"`
	Feed   struct {
		Title string `json:"title"`
	} `json:"feed"`
	Items []aggregatorItem `json:"items"`
}

type aggregatorItem struct {
	Title       string   `json:"title"`
	PubDate     string   `json:"pubDate"`
	Link        string   `json:"link"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Thumbnail   string   `json:"thumbnail"`
	Categories  []string `json:"categories"`
	Enclosure   struct {
		Link string `json:"link"`
		Type string `json:"type"`
	} `json:"enclosure"`
}

// aggregatorTimeLayout is the date format rss2json-style services emit.
const aggregatorTimeLayout = "2006-01-02 15:04:05"

func decodeAggregator(body []byte, clock func() time.Time) (*Result, error) {
	var resp aggregatorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: aggregator response: %v", entity.ErrFeedParse, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: aggregator status %q", entity.ErrFeedParse, resp.Status)
	}

	articles := make([]entity.Article, 0, len(resp.Items))
	for _, item := range resp.Items {
		pubAt := clock()
		if t, err := time.Parse(aggregatorTimeLayout, item.PubDate); err == nil {
			pubAt = t
		} else if t, err := time.Parse(time.RFC3339, item.PubDate); err == nil {
			pubAt = t
		}

		article := entity.Article{
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: pubAt,
			Description: item.Description,
			Content:     item.Content,
			Author:      item.Author,
			Categories:  item.Categories,
			ImageURL:    item.Thumbnail,
			SourceTitle: resp.Feed.Title,
		}
		switch {
		case article.ImageURL == "" && strings.HasPrefix(item.Enclosure.Type, "image/"):
			article.ImageURL = item.Enclosure.Link
		case strings.HasPrefix(item.Enclosure.Type, "audio/"):
			article.AudioURL = item.Enclosure.Link
		}
		articles = append(articles, article)
	}

	return &Result{Title: resp.Feed.Title, Articles: articles}, nil
}

// wrappedResponse is the allorigins-style raw-body-in-an-envelope variant.
type wrappedResponse struct {
	Contents string `json:"contents"`
	Status   struct {
		HTTPCode int `json:"http_code"`
	} `json:"status"`
}

func decodeWrapped(body []byte, clock func() time.Time) (*Result, error) {
	var resp wrappedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: wrapped response: %v", entity.ErrFeedParse, err)
	}
	if resp.Status.HTTPCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: upstream returned 404", entity.ErrNotFound)
	}
	if resp.Contents == "" {
		return nil, fmt.Errorf("%w: empty wrapped contents", entity.ErrFeedParse)
	}

	return parseFeedXML([]byte(resp.Contents), clock)
}
