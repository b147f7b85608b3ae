package usecase

import (
	"strconv"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
)

// EvaluateVisibility runs one visibility pass over the ids the viewport reported
// as visible and returns the read receipts to send, or nil when nothing is
// acknowledgeable. Every id is evaluated at most once per ObservedSet: skipped
// ids (unknown, own, polls, non-numeric) are marked observed just like acked ones.
func EvaluateVisibility(
	timeline []domain.TimelineItem,
	observed *domain.ObservedSet,
	viewerID, groupID string,
	visibleIDs []string,
) *domain.ReadReceiptBatch {
	index := make(map[string]*domain.TimelineItem, len(timeline))
	for i := range timeline {
		if timeline[i].ID != "" {
			index[timeline[i].ID] = &timeline[i]
		}
	}

	var acked []int64
	for _, id := range visibleIDs {
		if id == "" || observed.Has(id) {
			continue
		}
		observed.Mark(id)

		item, ok := index[id]
		if !ok || item.IsFrom(viewerID) || item.Kind == domain.KindPoll {
			continue
		}

		numericID, ok := ParseMessageID(id)
		if !ok {
			continue
		}
		acked = append(acked, numericID)
	}

	if len(acked) == 0 {
		return nil
	}
	return &domain.ReadReceiptBatch{GroupID: groupID, MessageIDs: acked}
}

// ParseMessageID accepts ids made of ASCII digits only that fit a non-negative int64
func ParseMessageID(id string) (int64, bool) {
	if id == "" {
		return 0, false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
