package data

import (
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/infra/chatapi"
	"github.com/devricklin/chat-timeline/internal/infra/stomp"
)

// Repositories contains all repositories
type Repositories struct {
	Chat     repo.ChatRepo
	Live     repo.LiveRepo
	Outbound repo.OutboundRepo

	stompClient *stomp.Client
}

// Options holds the backend endpoints
type Options struct {
	APIURL       string
	PollsURL     string
	WSURL        string
	Token        string
	FetchTimeout time.Duration
}

// NewRepositories creates all repositories
func NewRepositories(opts Options) *Repositories {
	stompClient := stomp.NewClient(opts.WSURL, opts.Token)

	// one STOMP connection serves both the live stream and outbound actions
	live := newLiveRepo(stompClient)

	return &Repositories{
		Chat:        NewChatRepo(chatapi.NewClient(opts.APIURL, opts.PollsURL, opts.Token, opts.FetchTimeout)),
		Live:        live,
		Outbound:    live,
		stompClient: stompClient,
	}
}

// Close closes the live connection
func (r *Repositories) Close() error {
	return r.stompClient.Stop()
}
