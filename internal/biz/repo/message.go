package repo

import (
	"context"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// ChatRepo is the chat backend fetch interface
// Responsible for the REST side of a conversation: history, poll listing and group details
type ChatRepo interface {
	// FetchHistory gets the raw message history of a group
	FetchHistory(ctx context.Context, groupID string) ([]domain.RawPayload, error)

	// FetchPolls gets the raw poll listing of a group
	FetchPolls(ctx context.Context, groupID string) ([]domain.RawPayload, error)

	// FetchGroup gets group details (name, members)
	FetchGroup(ctx context.Context, groupID string) (*domain.GroupInfo, error)
}
