package usecase

import (
	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// ApplyOptimisticVote adds voterID to every chosen option of the poll and recounts
// TotalVotes from the vote sets. Adding is idempotent, so a vote already echoed by
// the server is never counted twice. Votes are never removed here.
// The input slice is left untouched; only the matching items are copied.
func ApplyOptimisticVote(items []domain.TimelineItem, pollID, voterID string, optionIDs []string) []domain.TimelineItem {
	out := make([]domain.TimelineItem, len(items))
	copy(out, items)
	if pollID == "" || voterID == "" {
		return out
	}

	chosen := make(map[string]bool, len(optionIDs))
	for _, id := range optionIDs {
		chosen[id] = true
	}

	for i := range out {
		if !out[i].IsPoll() || out[i].Poll.ID != pollID {
			continue
		}
		p := out[i].Poll.Clone()
		for j := range p.Options {
			if chosen[p.Options[j].ID] {
				p.Options[j].Votes.Add(voterID)
			}
		}
		p.TotalVotes = p.CountVotes()
		out[i].Poll = p
	}
	return out
}

// ApplyPollUpdate overlays an authoritative server snapshot on every item carrying
// the poll. Options are replaced only when the server sent them and TotalVotes is
// taken from the server when present, otherwise recounted.
// Returns false when no item carried the poll.
func ApplyPollUpdate(items []domain.TimelineItem, update domain.PollUpdate) ([]domain.TimelineItem, bool) {
	out := make([]domain.TimelineItem, len(items))
	copy(out, items)

	found := false
	for i := range out {
		if !out[i].IsPoll() || out[i].Poll.ID != update.Poll.ID {
			continue
		}
		found = true
		out[i].Poll = overlayPoll(out[i].Poll, update)
	}
	return out, found
}

func overlayPoll(current *domain.Poll, update domain.PollUpdate) *domain.Poll {
	next := update.Poll.Clone()

	// keep local values for fields the snapshot left empty
	if next.Question == "" {
		next.Question = current.Question
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = current.CreatedAt
	}
	if next.CreatorID == "" {
		next.CreatorID = current.CreatorID
	}
	if next.CreatorName == "" {
		next.CreatorName = current.CreatorName
	}
	if !update.HasOptions {
		next.Options = current.Clone().Options
	}
	if !update.HasTotal {
		next.TotalVotes = next.CountVotes()
	}
	return next
}
