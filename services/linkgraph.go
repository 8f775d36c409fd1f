package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"wiki-battle-system/utils"

	"github.com/gosimple/slug"
)

// LinkGraph is the external article-link lookup consumed by the bot. Only the
// bot depends on it; lookup failures are recovered there, never surfaced.
type LinkGraph interface {
	// Links returns the outbound article links of a topic.
	Links(ctx context.Context, topic string) ([]string, error)
	// HasLink reports whether `to` is directly linked from `from`.
	HasLink(ctx context.Context, from, to string) (bool, error)
}

// HTTPLinkGraph talks to the link-graph API over HTTP. Topic titles are
// slugged into path segments.
type HTTPLinkGraph struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPLinkGraph reads LINK_GRAPH_URL and reuses the shared HTTP client.
func NewHTTPLinkGraph() *HTTPLinkGraph {
	base := os.Getenv("LINK_GRAPH_URL")
	if base == "" {
		base = "http://localhost:8600/api/v1"
	}
	return &HTTPLinkGraph{BaseURL: base, Client: utils.HTTPClient}
}

type linksResponse struct {
	Links []string `json:"links"`
}

func (g *HTTPLinkGraph) Links(ctx context.Context, topic string) ([]string, error) {
	url := fmt.Sprintf("%s/topics/%s/links", g.BaseURL, slug.Make(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("link graph lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("link graph returned %d for topic %q", resp.StatusCode, topic)
	}

	var body linksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("link graph response decode: %w", err)
	}
	return body.Links, nil
}

func (g *HTTPLinkGraph) HasLink(ctx context.Context, from, to string) (bool, error) {
	url := fmt.Sprintf("%s/topics/%s/links/%s", g.BaseURL, slug.Make(from), slug.Make(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("link graph lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("link graph returned %d for %q -> %q", resp.StatusCode, from, to)
	}
}
