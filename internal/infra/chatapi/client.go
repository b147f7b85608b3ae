package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the HTTP client for the chat backend REST API
type Client struct {
	apiURL     string
	pollsURL   string
	token      string
	httpClient *http.Client
}

// NewClient creates a new chat API client.
// apiURL serves messages and groups, pollsURL serves the poll listing.
func NewClient(apiURL, pollsURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:   strings.TrimRight(apiURL, "/"),
		pollsURL: strings.TrimRight(pollsURL, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ============ Chat Operations ============

// GetMessages gets the message history of a group
func (c *Client) GetMessages(ctx context.Context, groupID string) ([]map[string]any, error) {
	var result []map[string]any
	if err := c.get(ctx, c.apiURL+"/chat/messages/"+url.PathEscape(groupID), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetGroupPolls gets every poll of a group
func (c *Client) GetGroupPolls(ctx context.Context, groupID string) ([]map[string]any, error) {
	var result []map[string]any
	if err := c.get(ctx, c.pollsURL+"/polls/group/"+url.PathEscape(groupID), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetGroup gets group details
func (c *Client) GetGroup(ctx context.Context, groupID string) (map[string]any, error) {
	var result map[string]any
	if err := c.get(ctx, c.apiURL+"/groups/"+url.PathEscape(groupID), &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	// keep numbers exact: ids are often numeric
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
