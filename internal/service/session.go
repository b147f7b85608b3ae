package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/biz/usecase"
)

// Session is the state of one open conversation.
// It is owned by the timeline loop goroutine and never shared.
type Session struct {
	ID      string
	GroupID string
	Group   *domain.GroupInfo

	History []domain.TimelineItem
	Live    []domain.TimelineItem

	Observed *domain.ObservedSet
	Typing   map[string]domain.Member

	historyPending bool
	groupPending   bool

	sub    repo.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(parent context.Context, groupID string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		Observed:       domain.NewObservedSet(),
		Typing:         make(map[string]domain.Member),
		historyPending: true,
		groupPending:   true,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Loading reports whether the initial fetches are still in flight
func (s *Session) Loading() bool {
	return s.historyPending || s.groupPending
}

// TypingUsers returns the display names of members currently typing, sorted
func (s *Session) TypingUsers() []string {
	names := make([]string, 0, len(s.Typing))
	for _, m := range s.Typing {
		names = append(names, m.DisplayName())
	}
	sort.Strings(names)
	return names
}

// close cancels pending work and stops the live stream
func (s *Session) close() {
	s.cancel()
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			fmt.Printf("[Timeline] Failed to unsubscribe from group %s: %v\n", s.GroupID, err)
		}
		s.sub = nil
	}
}

// upsertPoll reconciles item with the entry carrying the same poll, or appends it.
// Votes already applied to the entry survive a staler copy arriving later.
func upsertPoll(items []domain.TimelineItem, item domain.TimelineItem) []domain.TimelineItem {
	for i := range items {
		if items[i].IsPoll() && items[i].Poll.ID == item.Poll.ID {
			out := make([]domain.TimelineItem, len(items))
			copy(out, items)
			out[i] = usecase.ReconcilePoll(items[i], item)
			return out
		}
	}
	return append(items, item)
}
