package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// Client is the HTTP client for the local timeline API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new MCP client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Timeline is the rendered conversation as served by the API
type Timeline struct {
	SessionID   string            `json:"session_id,omitempty"`
	GroupID     string            `json:"group_id,omitempty"`
	Group       *domain.GroupInfo `json:"group,omitempty"`
	Loading     bool              `json:"loading"`
	Days        []domain.DayGroup `json:"days"`
	TypingUsers []string          `json:"typing_users"`
}

// ============ Timeline ============

// GetTimeline gets the current timeline; limit > 0 keeps the newest items only
func (c *Client) GetTimeline(limit int) (*Timeline, error) {
	path := "/api/timeline"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var tl Timeline
	if err := c.get(path, &tl); err != nil {
		return nil, err
	}
	return &tl, nil
}

// Open opens the conversation of a group and returns the session id
func (c *Client) Open(groupID string) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.post("/api/open", map[string]string{"group_id": groupID}, &result); err != nil {
		return "", err
	}
	return result.SessionID, nil
}

// ============ Actions ============

// Vote casts a vote on a poll
func (c *Client) Vote(pollID string, optionIDs []string) error {
	body := map[string]interface{}{"poll_id": pollID, "option_ids": optionIDs}
	return c.post("/api/vote", body, nil)
}

// MarkVisible reports message ids as visible and returns the acknowledged ids
func (c *Client) MarkVisible(ids []string) ([]int64, error) {
	var result struct {
		Acknowledged []int64 `json:"acknowledged"`
	}
	if err := c.post("/api/visibility", map[string]interface{}{"ids": ids}, &result); err != nil {
		return nil, err
	}
	return result.Acknowledged, nil
}

// SendMessage sends a text message to the open conversation
func (c *Client) SendMessage(content string) error {
	return c.post("/api/messages", map[string]string{"content": content}, nil)
}

// React adds an emoji reaction to a message
func (c *Client) React(messageID, emoji string) error {
	return c.post("/api/reactions", map[string]string{"message_id": messageID, "emoji": emoji}, nil)
}

// ============ HTTP Helpers ============

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiError(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiError(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// apiError extracts the message of an {"error": ...} body
func apiError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
