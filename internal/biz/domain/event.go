package domain

// LiveEventType is the tag of a live stream event
type LiveEventType string

const (
	EventNewMessage     LiveEventType = "new_message"
	EventPollCreated    LiveEventType = "poll_created"
	EventPollVoteUpdate LiveEventType = "poll_vote_update"
	EventTypingStarted  LiveEventType = "typing_started"
	EventTypingStopped  LiveEventType = "typing_stopped"
)

// LiveEvent is one event delivered by the live subscription.
// Payload carries the raw message or poll; User is set for typing events.
type LiveEvent struct {
	Type    LiveEventType
	GroupID string
	Payload RawPayload
	User    Member
}
