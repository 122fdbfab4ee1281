// Package coingecko implements a simple-price provider over the upstream
// price API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/tokend/internal/provider"
)

// Client fetches batch prices from a /simple/price endpoint.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	vsCurrency string
	httpClient *http.Client
}

// NewClient creates a price provider named name against baseURL.
// apiKey may be empty for keyless endpoints.
func NewClient(name, baseURL, apiKey, vsCurrency string, timeout time.Duration) *Client {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		vsCurrency: vsCurrency,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.name }

// Fetch resolves coin ids to prices in the configured currency. Ids unknown
// to the upstream are absent from the result; a non-2xx status fails the
// whole batch.
func (c *Client) Fetch(ctx context.Context, keys []string) (map[string]*float64, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(keys, ","))
	q.Set("vs_currencies", c.vsCurrency)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", provider.ErrInvalidShape, err)
	}

	out := make(map[string]*float64, len(keys))
	for _, key := range keys {
		if quote, ok := parsed[key]; ok {
			if price, ok := quote[c.vsCurrency]; ok {
				p := price
				out[key] = &p
			}
		}
	}
	return out, nil
}
