package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/infra/chatapi"
)

// FetchError is a failed backend fetch
type FetchError struct {
	Op     string // history, polls or group
	Status int    // HTTP status, 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(op string, err error) error {
	fe := &FetchError{Op: op, Err: err}
	var statusErr *chatapi.StatusError
	if errors.As(err, &statusErr) {
		fe.Status = statusErr.Status
	}
	return fe
}

// chatRepo implements the chat repository over the REST API
type chatRepo struct {
	client *chatapi.Client
}

// NewChatRepo creates a new chat repository
func NewChatRepo(client *chatapi.Client) repo.ChatRepo {
	return &chatRepo{client: client}
}

// FetchHistory gets the raw message history of a group
func (r *chatRepo) FetchHistory(ctx context.Context, groupID string) ([]domain.RawPayload, error) {
	msgs, err := r.client.GetMessages(ctx, groupID)
	if err != nil {
		return nil, fetchError("history", err)
	}
	return toPayloads(msgs), nil
}

// FetchPolls gets the raw poll listing of a group
func (r *chatRepo) FetchPolls(ctx context.Context, groupID string) ([]domain.RawPayload, error) {
	polls, err := r.client.GetGroupPolls(ctx, groupID)
	if err != nil {
		return nil, fetchError("polls", err)
	}
	return toPayloads(polls), nil
}

// FetchGroup gets group details
func (r *chatRepo) FetchGroup(ctx context.Context, groupID string) (*domain.GroupInfo, error) {
	raw, err := r.client.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fetchError("group", err)
	}
	group := convertGroup(raw)
	if group.ID == "" {
		group.ID = groupID
	}
	return group, nil
}

func toPayloads(list []map[string]any) []domain.RawPayload {
	out := make([]domain.RawPayload, 0, len(list))
	for _, m := range list {
		if m != nil {
			out = append(out, domain.RawPayload(m))
		}
	}
	return out
}

// convertGroup maps the group document; member entries may be bare ids or user objects
func convertGroup(raw map[string]any) *domain.GroupInfo {
	group := &domain.GroupInfo{
		ID:         text(raw["id"]),
		Name:       text(raw["name"]),
		CourseName: text(raw["coursename"]),
	}
	if group.CourseName == "" {
		group.CourseName = text(raw["courseName"])
	}

	members, _ := raw["members"].([]any)
	for _, entry := range members {
		switch m := entry.(type) {
		case map[string]any:
			member := domain.Member{UserID: text(m["id"]), Name: text(m["name"])}
			if member.UserID == "" {
				member.UserID = text(m["userId"])
			}
			if member.Name == "" {
				member.Name = text(m["username"])
			}
			if member.UserID != "" {
				group.Members = append(group.Members, member)
			}
		default:
			if id := text(m); id != "" {
				group.Members = append(group.Members, domain.Member{UserID: id})
			}
		}
	}
	return group
}

// text renders a JSON scalar as a string
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
