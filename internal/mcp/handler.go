package mcp

import (
	"fmt"
	"strings"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

const defaultTimelineLimit = 50

// Handler handles MCP tool calls using the HTTP client
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// TimelineEntry is one timeline item flattened for tool output
type TimelineEntry struct {
	Day    string `json:"day"`
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Sender string `json:"sender,omitempty"`
	Time   string `json:"time"`
	Text   string `json:"text"`
	Status string `json:"status,omitempty"`
}

// TimelineResult is the output of the timeline tool
type TimelineResult struct {
	GroupID     string          `json:"group_id"`
	GroupName   string          `json:"group_name,omitempty"`
	Loading     bool            `json:"loading"`
	Entries     []TimelineEntry `json:"entries"`
	TypingUsers []string        `json:"typing_users,omitempty"`
}

// ============ Timeline Handlers ============

// GetTimeline returns the newest limit items of the open conversation
func (h *Handler) GetTimeline(limit int) (*TimelineResult, error) {
	if limit <= 0 {
		limit = defaultTimelineLimit
	}

	tl, err := h.client.GetTimeline(limit)
	if err != nil {
		return nil, err
	}
	if tl.SessionID == "" {
		return nil, fmt.Errorf("no conversation is open")
	}

	result := &TimelineResult{
		GroupID:     tl.GroupID,
		Loading:     tl.Loading,
		Entries:     []TimelineEntry{},
		TypingUsers: tl.TypingUsers,
	}
	if tl.Group != nil {
		result.GroupName = tl.Group.Name
	}
	for _, day := range tl.Days {
		for _, item := range day.Items {
			result.Entries = append(result.Entries, entryFor(day.Label, item))
		}
	}
	return result, nil
}

// ============ Action Handlers ============

// Vote casts a vote on a poll of the open conversation
func (h *Handler) Vote(pollID string, optionIDs []string) error {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return fmt.Errorf("poll_id is required")
	}
	if len(optionIDs) == 0 {
		return fmt.Errorf("option_ids is required")
	}
	return h.client.Vote(pollID, optionIDs)
}

// MarkVisible reports items as seen and returns the acknowledged message ids
func (h *Handler) MarkVisible(ids []string) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	return h.client.MarkVisible(ids)
}

// SendMessage sends a text message to the open conversation
func (h *Handler) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	return h.client.SendMessage(content)
}

// React adds an emoji reaction to a message of the open conversation
func (h *Handler) React(messageID, emoji string) error {
	messageID = strings.TrimSpace(messageID)
	emoji = strings.TrimSpace(emoji)
	if messageID == "" || emoji == "" {
		return fmt.Errorf("message_id and emoji are required")
	}
	return h.client.React(messageID, emoji)
}

// ============ Helpers ============

func entryFor(day string, item domain.TimelineItem) TimelineEntry {
	entry := TimelineEntry{
		Day:    day,
		ID:     item.ID,
		Type:   string(item.Kind),
		Sender: item.SenderName,
		Time:   item.Timestamp.Format("15:04"),
		Status: string(item.Status),
	}

	switch {
	case item.IsPoll():
		entry.Text = pollText(item.Poll)
	case item.Kind == domain.KindFile && item.File != nil:
		entry.Text = item.Content
		if size := item.File.HumanSize(); size != "" {
			entry.Text = fmt.Sprintf("%s (%s)", item.Content, size)
		}
	default:
		entry.Text = item.Content
	}
	return entry
}

func pollText(p *domain.Poll) string {
	var b strings.Builder
	b.WriteString(p.Question)
	for _, opt := range p.Options {
		fmt.Fprintf(&b, "\n  [%s] %s: %d", opt.ID, opt.Text, opt.Votes.Len())
	}
	if p.TotalVotes > 0 {
		fmt.Fprintf(&b, "\n  total: %d", p.TotalVotes)
	}
	return b.String()
}
