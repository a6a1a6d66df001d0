// Package scores is the HTTP client for the outcome feed: final results
// for completed games, keyed by the collector's external game id.
package scores

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scores API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = "http://localhost:8090"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GetScores fetches results for a batch of external game ids. Ids the feed
// does not know yet are simply absent from the response.
func (c *Client) GetScores(ctx context.Context, externalIDs []string) ([]GameScore, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("external_ids", strings.Join(externalIDs, ","))
	body, err := c.doRequest(ctx, "/v1/scores", query)
	if err != nil {
		return nil, err
	}
	var out []GameScore
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode scores response: %w", err)
	}
	return out, nil
}
