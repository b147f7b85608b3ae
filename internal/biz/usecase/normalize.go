package usecase

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// Normalizer converts raw payloads of every origin into canonical timeline items.
// It holds configuration only, so every method is a pure function of its input.
type Normalizer struct {
	ViewerID string
	Location *time.Location // zone for timestamps sent without an offset
}

// NewNormalizer creates a normalizer for the given viewer
func NewNormalizer(viewerID string, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{ViewerID: viewerID, Location: loc}
}

// Message normalizes a history-fetch message or a live-stream message/poll payload.
// The variant is inferred from field presence; malformed fields degrade to safe defaults.
func (n *Normalizer) Message(raw domain.RawPayload) domain.TimelineItem {
	item := domain.TimelineItem{
		ID:         str(raw, "id"),
		GroupID:    str(raw, "groupId"),
		SenderID:   str(raw, "senderId"),
		SenderName: str(raw, "senderName"),
	}

	switch {
	case isPollPayload(raw):
		item.Kind = domain.KindPoll
		item.Poll = n.pollFromMessage(raw)
		item.Timestamp = n.firstTime(raw, "timestamp", "createdAt")
		if item.Timestamp.IsZero() {
			item.Timestamp = item.Poll.CreatedAt
		}

	case str(raw, "type") == "file":
		item.Kind = domain.KindFile
		item.Content = fileDisplayName(raw["content"])
		item.File = &domain.FileAttachment{
			URL:      firstStr(raw, "fileUrl", "url"),
			MIMEType: str(raw, "fileType"),
			Size:     firstInt(raw, "size", "fileSize"),
		}
		item.Timestamp = n.firstTime(raw, "timestamp", "createdAt")

	default:
		item.Kind = domain.KindRegular
		item.Content = contentString(raw["content"])
		item.Timestamp = n.firstTime(raw, "timestamp", "createdAt")
	}

	if item.IsFrom(n.ViewerID) {
		item.Status = deriveStatus(raw)
	}
	return item
}

// Poll normalizes one entry of the poll-listing fetch into a poll item.
// now stands in for a missing creation time.
func (n *Normalizer) Poll(raw domain.RawPayload, groupID string, now time.Time) domain.TimelineItem {
	p, _ := n.parsePoll(raw)

	senderName := p.CreatorName
	if senderName == "" {
		senderName = "Unknown"
	}
	ts := p.CreatedAt
	if ts.IsZero() {
		ts = now
	}

	item := domain.TimelineItem{
		ID:         "poll-" + p.ID,
		Kind:       domain.KindPoll,
		GroupID:    groupID,
		SenderID:   p.CreatorID,
		SenderName: senderName,
		Timestamp:  ts,
		Poll:       p,
	}
	if item.IsFrom(n.ViewerID) {
		item.Status = deriveStatus(raw)
	}
	return item
}

// PollUpdate parses a live vote-update payload. Returns false when the payload has no poll id.
func (n *Normalizer) PollUpdate(raw domain.RawPayload) (domain.PollUpdate, bool) {
	if inner, ok := raw["poll"].(map[string]any); ok {
		raw = inner
	}
	p, fields := n.parsePoll(raw)
	if p.ID == "" {
		return domain.PollUpdate{}, false
	}
	return domain.PollUpdate{
		Poll:       *p,
		HasOptions: fields.options,
		HasTotal:   fields.total,
	}, true
}

func isPollPayload(raw domain.RawPayload) bool {
	if _, ok := raw["poll"].(map[string]any); ok {
		return true
	}
	return str(raw, "type") == "poll" || str(raw, "pollQuestion") != "" || str(raw, "pollId") != ""
}

// pollFromMessage handles both the embedded {poll: {...}} shape and the legacy flat shape
func (n *Normalizer) pollFromMessage(raw domain.RawPayload) *domain.Poll {
	if inner, ok := raw["poll"].(map[string]any); ok {
		p, _ := n.parsePoll(inner)
		return p
	}

	options, hasOptions := raw["pollOptions"]
	if !hasOptions || options == nil {
		options = raw["options"]
	}
	p := &domain.Poll{
		ID:            firstStr(raw, "pollId", "id"),
		Question:      firstStr(raw, "pollQuestion", "content"),
		Options:       parseOptions(options),
		AllowMultiple: boolean(raw, "allowMultiple"),
		Anonymous:     boolean(raw, "anonymous"),
		CreatedAt:     n.firstTime(raw, "createdAt"),
		CreatorID:     firstStr(raw, "creatorId", "createdBy"),
		CreatorName:   str(raw, "creatorName"),
	}
	if total, ok := integer(raw["totalVotes"]); ok {
		p.TotalVotes = int(total)
	} else {
		p.TotalVotes = p.CountVotes()
	}
	return p
}

type pollFields struct {
	options bool
	total   bool
}

func (n *Normalizer) parsePoll(raw map[string]any) (*domain.Poll, pollFields) {
	var fields pollFields
	p := &domain.Poll{
		ID:            str(raw, "id"),
		Question:      str(raw, "question"),
		AllowMultiple: boolean(raw, "allowMultiple"),
		Anonymous:     boolean(raw, "anonymous"),
		CreatedAt:     n.firstTime(raw, "createdAt"),
		CreatorID:     firstStr(raw, "creatorId", "createdBy"),
		CreatorName:   str(raw, "creatorName"),
	}
	if opts, ok := raw["options"]; ok && opts != nil {
		fields.options = true
		p.Options = parseOptions(opts)
	}
	if p.Options == nil {
		p.Options = []domain.PollOption{}
	}
	if total, ok := integer(raw["totalVotes"]); ok {
		fields.total = true
		p.TotalVotes = int(total)
	} else {
		p.TotalVotes = p.CountVotes()
	}
	return p, fields
}

func parseOptions(v any) []domain.PollOption {
	list, ok := v.([]any)
	if !ok {
		return []domain.PollOption{}
	}
	options := make([]domain.PollOption, 0, len(list))
	for i, entry := range list {
		switch o := entry.(type) {
		case map[string]any:
			opt := domain.PollOption{ID: str(o, "id"), Text: str(o, "text")}
			if votes, ok := o["votes"].([]any); ok {
				for _, v := range votes {
					opt.Votes.Add(voterID(v))
				}
			}
			options = append(options, opt)
		case string:
			// bare option labels carry no id; position stands in for it
			options = append(options, domain.PollOption{ID: strconv.Itoa(i), Text: o})
		}
	}
	return options
}

// voterID accepts plain ids and {userId: ...} objects
func voterID(v any) string {
	if m, ok := v.(map[string]any); ok {
		return str(m, "userId")
	}
	s, _ := scalarString(v)
	return s
}

func deriveStatus(raw domain.RawPayload) domain.DeliveryStatus {
	total, ok := integer(raw["totalRecipients"])
	if !ok {
		return domain.StatusNone
	}
	read := arrayLen(raw["readBy"])
	delivered := arrayLen(raw["deliveredBy"])
	switch {
	case int64(read) >= total:
		return domain.StatusRead
	case int64(delivered) >= total:
		return domain.StatusDelivered
	default:
		return domain.StatusSent
	}
}

func fileDisplayName(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if name := str(c, "name"); name != "" {
			return name
		}
		if name := str(c, "fileName"); name != "" {
			return name
		}
	}
	return "File"
}

// contentString never leaves content as an object: objects and arrays are JSON-encoded
func contentString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ========== Raw field access ==========

func str(raw map[string]any, key string) string {
	s, _ := scalarString(raw[key])
	return s
}

func firstStr(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func boolean(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

// integer accepts whole JSON numbers only
func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func firstInt(raw map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if i, ok := integer(raw[k]); ok && i != 0 {
			return i
		}
	}
	return 0
}

func arrayLen(v any) int {
	list, _ := v.([]any)
	return len(list)
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (n *Normalizer) parseTime(v any) time.Time {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, s, n.location()); err == nil {
				return t
			}
		}
	case json.Number, float64, int, int64:
		if ms, ok := integer(x); ok {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

func (n *Normalizer) firstTime(raw map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		if t := n.parseTime(raw[k]); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func (n *Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}
