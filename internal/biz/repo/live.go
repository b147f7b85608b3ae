package repo

import (
	"context"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// Subscription is an active live stream subscription
type Subscription interface {
	Unsubscribe() error
}

// LiveRepo is the live event stream interface
type LiveRepo interface {
	// Subscribe starts delivering events of a group to onEvent until unsubscribed.
	// onEvent is called from the transport's goroutine.
	Subscribe(ctx context.Context, groupID string, onEvent func(domain.LiveEvent)) (Subscription, error)
}

// OutboundRepo sends user actions to the chat backend
type OutboundRepo interface {
	SubmitVote(ctx context.Context, groupID, pollID string, optionIDs []string) error
	SubmitMessage(ctx context.Context, groupID, content string) error
	SubmitReadReceipt(ctx context.Context, groupID string, messageIDs []int64) error
	SendTyping(ctx context.Context, groupID string, typing bool) error
	SubmitReaction(ctx context.Context, groupID, messageID, emoji string) error
	// MarkGroupRead clears the viewer's unread count of a group
	MarkGroupRead(ctx context.Context, groupID string) error
}
