package service

import (
	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
)

// eventKind tags the entries of the loop queue
type eventKind string

const (
	evOpen          eventKind = "open"
	evClose         eventKind = "close"
	evHistoryLoaded eventKind = "history_loaded"
	evPollsLoaded   eventKind = "polls_loaded"
	evGroupLoaded   eventKind = "group_loaded"
	evSubscribed    eventKind = "subscribed"
	evLive          eventKind = "live"
	evVote          eventKind = "vote"
	evVisibility    eventKind = "visibility"
	evTarget        eventKind = "target"
	evSnapshot      eventKind = "snapshot"
)

// event is one entry of the loop queue.
// Events produced by background work carry the id of the session that started it.
type event struct {
	kind      eventKind
	sessionID string

	groupID   string
	payloads  []domain.RawPayload
	group     *domain.GroupInfo
	sub       repo.Subscription
	live      domain.LiveEvent
	pollID    string
	optionIDs []string
	ids       []string
	err       error

	reply chan reply
}

// reply is the loop's answer to a request event
type reply struct {
	view    View
	batch   *domain.ReadReceiptBatch
	groupID string
	err     error
}
