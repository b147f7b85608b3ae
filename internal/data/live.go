package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/infra/stomp"
)

// Broker destinations
const (
	topicGroupPrefix = "/topic/group."
	destSendMessage  = "/app/chat.send"
	destVote         = "/app/poll.vote"
	destReadReceipt  = "/app/chat.read"
	destTyping       = "/app/chat.typing"
	destReaction     = "/app/chat.react"
	destMarkRead     = "/app/chat.markRead"
)

// Event types carried in the eventType field of a topic message
const (
	wirePollCreated    = "POLL_CREATED"
	wirePollVoteUpdate = "POLL_VOTE_UPDATE"
	wireTypingStart    = "TYPING_START"
	wireTypingStop     = "TYPING_STOP"
)

// liveRepo implements the live stream and outbound repositories over STOMP.
// The connection is opened on first use and not re-established automatically.
type liveRepo struct {
	client    *stomp.Client
	connectMu sync.Mutex
}

func newLiveRepo(client *stomp.Client) *liveRepo {
	return &liveRepo{client: client}
}

// NewLiveRepo creates a new live stream repository
func NewLiveRepo(client *stomp.Client) repo.LiveRepo {
	return newLiveRepo(client)
}

// NewOutboundRepo creates a new outbound repository
func NewOutboundRepo(client *stomp.Client) repo.OutboundRepo {
	return newLiveRepo(client)
}

func (r *liveRepo) ensureConnected(ctx context.Context) error {
	r.connectMu.Lock()
	defer r.connectMu.Unlock()
	if r.client.IsRunning() {
		return nil
	}
	return r.client.Start(ctx)
}

// Subscribe starts delivering the events of a group
func (r *liveRepo) Subscribe(ctx context.Context, groupID string, onEvent func(domain.LiveEvent)) (repo.Subscription, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect live stream: %w", err)
	}

	id, err := r.client.Subscribe(topicGroupPrefix+groupID, func(frame *stomp.Frame) {
		event, err := convertEvent(groupID, frame.Body)
		if err != nil {
			fmt.Printf("[Live] Dropping message on group %s: %v\n", groupID, err)
			return
		}
		onEvent(event)
	})
	if err != nil {
		return nil, err
	}
	return &liveSubscription{client: r.client, id: id}, nil
}

// SubmitVote sends the viewer's vote
func (r *liveRepo) SubmitVote(ctx context.Context, groupID, pollID string, optionIDs []string) error {
	options := make([]any, len(optionIDs))
	for i, id := range optionIDs {
		options[i] = wireID(id)
	}
	return r.send(ctx, destVote, map[string]any{
		"groupId":   wireID(groupID),
		"pollId":    wireID(pollID),
		"optionIds": options,
	})
}

// SubmitMessage sends a text message
func (r *liveRepo) SubmitMessage(ctx context.Context, groupID, content string) error {
	return r.send(ctx, destSendMessage, map[string]any{
		"groupId": wireID(groupID),
		"content": content,
		"type":    "text",
	})
}

// SubmitReadReceipt acknowledges a batch of messages
func (r *liveRepo) SubmitReadReceipt(ctx context.Context, groupID string, messageIDs []int64) error {
	return r.send(ctx, destReadReceipt, map[string]any{
		"groupId":    wireID(groupID),
		"messageIds": messageIDs,
	})
}

// SendTyping publishes the viewer's typing indicator
func (r *liveRepo) SendTyping(ctx context.Context, groupID string, typing bool) error {
	return r.send(ctx, destTyping, map[string]any{
		"groupId": wireID(groupID),
		"typing":  typing,
	})
}

// SubmitReaction adds an emoji reaction to a message
func (r *liveRepo) SubmitReaction(ctx context.Context, groupID, messageID, emoji string) error {
	return r.send(ctx, destReaction, map[string]any{
		"groupId":   wireID(groupID),
		"messageId": wireID(messageID),
		"emoji":     emoji,
	})
}

// MarkGroupRead marks the whole group as read
func (r *liveRepo) MarkGroupRead(ctx context.Context, groupID string) error {
	return r.send(ctx, destMarkRead, map[string]any{
		"groupId": wireID(groupID),
	})
}

func (r *liveRepo) send(ctx context.Context, destination string, body map[string]any) error {
	if err := r.ensureConnected(ctx); err != nil {
		return fmt.Errorf("failed to connect live stream: %w", err)
	}
	if err := r.client.Send(ctx, destination, body); err != nil {
		return fmt.Errorf("failed to send to %s: %w", destination, err)
	}
	return nil
}

// liveSubscription is one topic subscription
type liveSubscription struct {
	client *stomp.Client
	id     string
}

func (s *liveSubscription) Unsubscribe() error {
	return s.client.Unsubscribe(s.id)
}

// convertEvent maps a topic message body to a live event
func convertEvent(groupID string, body []byte) (domain.LiveEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return domain.LiveEvent{}, fmt.Errorf("failed to decode message: %w", err)
	}
	if raw == nil {
		return domain.LiveEvent{}, fmt.Errorf("empty message")
	}

	event := domain.LiveEvent{GroupID: text(raw["groupId"])}
	if event.GroupID == "" {
		event.GroupID = groupID
	}

	switch text(raw["eventType"]) {
	case wirePollCreated:
		event.Type = domain.EventPollCreated
		if msg, ok := raw["pollMessage"].(map[string]any); ok {
			event.Payload = domain.RawPayload(msg)
		} else {
			event.Payload = domain.RawPayload(raw)
		}
		if text(event.Payload["type"]) == "" {
			event.Payload["type"] = "poll"
		}

	case wirePollVoteUpdate:
		event.Type = domain.EventPollVoteUpdate
		event.Payload = domain.RawPayload(raw)

	case wireTypingStart, wireTypingStop:
		event.Type = domain.EventTypingStarted
		if text(raw["eventType"]) == wireTypingStop {
			event.Type = domain.EventTypingStopped
		}
		event.User = domain.Member{UserID: text(raw["userId"]), Name: text(raw["userName"])}

	default:
		event.Type = domain.EventNewMessage
		event.Payload = domain.RawPayload(raw)
	}
	return event, nil
}

// wireID sends numeric ids as JSON numbers and anything else as strings
func wireID(id string) any {
	if id == "" || (len(id) > 1 && id[0] == '0') {
		return id
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return id
		}
	}
	return json.Number(id)
}
