package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erazemk/skener/internal/model"
)

// DefaultTimeout bounds a single request to the remote backend.
const DefaultTimeout = 10 * time.Second

// Client looks items up through another skener instance's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL, authenticating
// with a bearer token when one is given.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing lookup url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("lookup url must be http or https, got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: u.String(),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// LookupByCode calls GET /api/items/lookup.
func (c *Client) LookupByCode(ctx context.Context, code string) (*model.ResolvedItem, error) {
	var item model.ResolvedItem
	if err := c.get(ctx, "/api/items/lookup?code="+url.QueryEscape(code), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListAllForSearch calls GET /api/items/catalog.
func (c *Client) ListAllForSearch(ctx context.Context) ([]model.SearchableItem, error) {
	var catalog []model.SearchableItem
	if err := c.get(ctx, "/api/items/catalog", &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("requesting %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
