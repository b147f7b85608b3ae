package usecase

import (
	"sort"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// Merge combines the history buffer and the live buffer into one deduplicated timeline
// ordered by timestamp. History is treated as older than live on conflicts.
// Inputs are never modified and the result shares no memory with them.
func Merge(history, live []domain.TimelineItem) []domain.TimelineItem {
	merged := make([]domain.TimelineItem, 0, len(history)+len(live))
	slots := make(map[string]int, len(history)+len(live))

	add := func(item domain.TimelineItem) {
		key := item.DedupKey()
		if key == "" {
			merged = append(merged, item.Clone())
			return
		}

		idx, seen := slots[key]
		if !seen {
			slots[key] = len(merged)
			merged = append(merged, item.Clone())
			return
		}

		if item.IsPoll() && merged[idx].IsPoll() {
			merged[idx] = ReconcilePoll(merged[idx], item)
			return
		}
		merged[idx] = item.Clone()
	}

	for _, item := range history {
		add(item)
	}
	for _, item := range live {
		add(item)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SortTime().Before(merged[j].SortTime())
	})
	return merged
}

// ReconcilePoll combines two copies of the same poll. The copy that supersedes
// the other (see pollSupersedes) provides the item and poll fields; the vote sets
// of options present in both are unioned, so the result does not depend on which
// copy arrived first. TotalVotes never drops below the recounted vote sets.
func ReconcilePoll(kept, incoming domain.TimelineItem) domain.TimelineItem {
	winner, other := kept, incoming
	if pollSupersedes(incoming, kept) {
		winner, other = incoming, kept
	}

	out := winner.Clone()
	if out.Poll == nil || other.Poll == nil {
		return out
	}

	voters := make(map[string][]string, len(other.Poll.Options))
	for _, o := range other.Poll.Options {
		voters[o.ID] = o.Votes.IDs()
	}
	for i := range out.Poll.Options {
		for _, id := range voters[out.Poll.Options[i].ID] {
			out.Poll.Options[i].Votes.Add(id)
		}
	}

	total := out.Poll.CountVotes()
	if out.Poll.TotalVotes > total {
		total = out.Poll.TotalVotes
	}
	if other.Poll.TotalVotes > total {
		total = other.Poll.TotalVotes
	}
	out.Poll.TotalVotes = total
	return out
}

// pollSupersedes decides whether a later copy of a poll replaces the kept one:
// a strictly newer copy always wins; on equal time the later copy wins unless it
// carries fewer options (a stale partial snapshot).
func pollSupersedes(candidate, kept domain.TimelineItem) bool {
	ct, kt := candidate.SortTime(), kept.SortTime()
	if ct.After(kt) {
		return true
	}
	if ct.Before(kt) {
		return false
	}
	return len(optionsOf(candidate)) >= len(optionsOf(kept))
}

func optionsOf(item domain.TimelineItem) []domain.PollOption {
	if item.Poll == nil {
		return nil
	}
	return item.Poll.Options
}
