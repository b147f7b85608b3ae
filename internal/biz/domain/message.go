package domain

import (
	"time"

	"github.com/dustin/go-humanize"
)

// ItemKind discriminates the TimelineItem variants
type ItemKind string

const (
	KindRegular ItemKind = "regular"
	KindFile    ItemKind = "file"
	KindPoll    ItemKind = "poll"
)

// DeliveryStatus is only derived for items authored by the viewer
type DeliveryStatus string

const (
	StatusNone      DeliveryStatus = ""
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// RawPayload is a decoded JSON object of unknown origin (history fetch, poll fetch, live stream)
type RawPayload map[string]any

// FileAttachment holds the file-specific fields of a file message
type FileAttachment struct {
	URL      string `json:"fileUrl,omitempty"`
	MIMEType string `json:"fileType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// HumanSize formats the attachment size for display ("1.2 MB")
func (f *FileAttachment) HumanSize() string {
	if f == nil || f.Size <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(f.Size))
}

// TimelineItem is one entry of a conversation timeline.
// Kind selects the variant: Content is used by regular and file items,
// File only by file items and Poll only by poll items.
type TimelineItem struct {
	ID         string          `json:"id,omitempty"`
	Kind       ItemKind        `json:"type"`
	GroupID    string          `json:"groupId,omitempty"`
	SenderID   string          `json:"senderId,omitempty"`
	SenderName string          `json:"senderName,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     DeliveryStatus  `json:"status,omitempty"`
	Content    string          `json:"content,omitempty"`
	File       *FileAttachment `json:"file,omitempty"`
	Poll       *Poll           `json:"poll,omitempty"`
}

// IsPoll checks if the item is a poll message
func (m *TimelineItem) IsPoll() bool {
	return m.Kind == KindPoll && m.Poll != nil
}

// DedupKey returns the identity used to collapse copies of the same entity.
// Polls are keyed by poll id, everything else by item id. Empty means the item
// is never deduplicated.
func (m *TimelineItem) DedupKey() string {
	if m.Kind == KindPoll {
		if m.Poll == nil || m.Poll.ID == "" {
			return ""
		}
		return "poll:" + m.Poll.ID
	}
	if m.ID == "" {
		return ""
	}
	return "msg:" + m.ID
}

// SortTime returns the ordering instant; a missing timestamp sorts as the Unix epoch
func (m *TimelineItem) SortTime() time.Time {
	if m.Timestamp.IsZero() {
		return time.Unix(0, 0)
	}
	return m.Timestamp
}

// IsFrom checks if the item was sent by the given user
func (m *TimelineItem) IsFrom(userID string) bool {
	return userID != "" && m.SenderID == userID
}

// Clone returns a deep copy, so poll vote sets are never shared between copies
func (m TimelineItem) Clone() TimelineItem {
	if m.File != nil {
		f := *m.File
		m.File = &f
	}
	if m.Poll != nil {
		m.Poll = m.Poll.Clone()
	}
	return m
}
