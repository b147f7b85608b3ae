package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/biz/usecase"
)

var (
	// ErrNoSession is returned by actions that need an open conversation
	ErrNoSession = errors.New("no open conversation")
	// ErrStopped is returned once the service loop has exited
	ErrStopped = errors.New("timeline service stopped")
)

// Options configures the timeline service
type Options struct {
	ViewerID       string
	PollFetchDelay time.Duration
	Location       *time.Location
	Labels         usecase.DayLabels
	Metrics        *Metrics

	// Now is the clock used for day grouping and poll fallbacks (default time.Now)
	Now func() time.Time
}

// View is the rendered state of the open conversation
type View struct {
	SessionID   string                `json:"session_id,omitempty"`
	GroupID     string                `json:"group_id,omitempty"`
	Group       *domain.GroupInfo     `json:"group,omitempty"`
	Loading     bool                  `json:"loading"`
	Days        []domain.DayGroup     `json:"days"`
	Items       []domain.TimelineItem `json:"-"`
	TypingUsers []string              `json:"typing_users"`
}

// TimelineService owns the open conversation. Every mutation runs on a single
// loop goroutine that drains an ordered event queue; fetches, the live stream
// and user actions only post events to it.
type TimelineService struct {
	chatRepo   repo.ChatRepo
	liveRepo   repo.LiveRepo
	outbound   repo.OutboundRepo
	normalizer *usecase.Normalizer
	opts       Options
	metrics    *Metrics

	onChange func(View)

	events chan event
	done   chan struct{}

	// loop-owned
	session *Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTimelineService creates a new timeline service
func NewTimelineService(
	chatRepo repo.ChatRepo,
	liveRepo repo.LiveRepo,
	outbound repo.OutboundRepo,
	opts Options,
) *TimelineService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &TimelineService{
		chatRepo:   chatRepo,
		liveRepo:   liveRepo,
		outbound:   outbound,
		normalizer: usecase.NewNormalizer(opts.ViewerID, opts.Location),
		opts:       opts,
		metrics:    opts.Metrics,
		events:     make(chan event, 256),
		done:       make(chan struct{}),
	}
}

// OnChange sets a callback fired with the new view after each state change.
// It runs on the loop goroutine and must be set before Start.
func (s *TimelineService) OnChange(callback func(View)) {
	s.onChange = callback
}

// Start starts the event loop
func (s *TimelineService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	fmt.Printf("[Timeline] Started (viewer=%s, poll delay=%v)\n", s.opts.ViewerID, s.opts.PollFetchDelay)
}

// Stop closes the open conversation and waits for pending work
func (s *TimelineService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	fmt.Println("[Timeline] Stopped")
}

// Open discards the current conversation and starts loading groupID.
// Returns the new session id.
func (s *TimelineService) Open(ctx context.Context, groupID string) (string, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return "", fmt.Errorf("group id is required")
	}
	r, err := s.request(ctx, event{kind: evOpen, groupID: groupID})
	if err != nil {
		return "", err
	}
	return r.view.SessionID, nil
}

// Close discards the current conversation, cancelling its pending fetches and submissions
func (s *TimelineService) Close(ctx context.Context) error {
	_, err := s.request(ctx, event{kind: evClose})
	return err
}

// Vote applies the vote locally and submits it in the background
func (s *TimelineService) Vote(ctx context.Context, pollID string, optionIDs []string) error {
	if pollID == "" || len(optionIDs) == 0 {
		return fmt.Errorf("poll id and at least one option are required")
	}
	_, err := s.request(ctx, event{kind: evVote, pollID: pollID, optionIDs: optionIDs})
	return err
}

// VisibilityChanged runs one read-receipt pass over the visible item ids.
// Returns the submitted batch, or nil when nothing was acknowledgeable.
func (s *TimelineService) VisibilityChanged(ctx context.Context, ids []string) (*domain.ReadReceiptBatch, error) {
	r, err := s.request(ctx, event{kind: evVisibility, ids: ids})
	if err != nil {
		return nil, err
	}
	return r.batch, nil
}

// SendMessage sends a text message to the open conversation.
// Blank content is ignored. The message shows up once the live stream delivers it.
func (s *TimelineService) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	r, err := s.request(ctx, event{kind: evTarget})
	if err != nil {
		return err
	}
	if err := s.outbound.SubmitMessage(ctx, r.groupID, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// React adds an emoji reaction to a message of the open conversation
func (s *TimelineService) React(ctx context.Context, messageID, emoji string) error {
	messageID = strings.TrimSpace(messageID)
	emoji = strings.TrimSpace(emoji)
	if messageID == "" || emoji == "" {
		return fmt.Errorf("message id and emoji are required")
	}
	r, err := s.request(ctx, event{kind: evTarget})
	if err != nil {
		return err
	}
	if err := s.outbound.SubmitReaction(ctx, r.groupID, messageID, emoji); err != nil {
		return fmt.Errorf("failed to send reaction: %w", err)
	}
	return nil
}

// SetTyping forwards the viewer's typing indicator
func (s *TimelineService) SetTyping(ctx context.Context, typing bool) error {
	r, err := s.request(ctx, event{kind: evTarget})
	if err != nil {
		return err
	}
	if err := s.outbound.SendTyping(ctx, r.groupID, typing); err != nil {
		return fmt.Errorf("failed to send typing indicator: %w", err)
	}
	return nil
}

// Snapshot returns the current view. With no open conversation the view is empty.
func (s *TimelineService) Snapshot(ctx context.Context) (View, error) {
	r, err := s.request(ctx, event{kind: evSnapshot})
	if err != nil {
		return View{}, err
	}
	return r.view, nil
}

// request posts an event and waits for the loop's reply
func (s *TimelineService) request(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)
	if err := s.post(ctx, ev); err != nil {
		return reply{}, err
	}
	select {
	case r := <-ev.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-s.done:
		return reply{}, ErrStopped
	}
}

// post enqueues an event; it gives up when ctx ends or the loop has exited
func (s *TimelineService) post(ctx context.Context, ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// loop is the single owner of the session state
func (s *TimelineService) loop() {
	defer s.wg.Done()
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			s.discard()
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *TimelineService) handle(ev event) {
	s.metrics.Events.WithLabelValues(string(ev.kind)).Inc()

	// results of a discarded session are dropped
	if ev.sessionID != "" && (s.session == nil || s.session.ID != ev.sessionID) {
		if ev.sub != nil {
			_ = ev.sub.Unsubscribe()
		}
		return
	}

	var r reply
	changed := true

	switch ev.kind {
	case evOpen:
		s.open(ev.groupID)
		r.view = s.view()
	case evClose:
		changed = s.session != nil
		s.discard()
	case evHistoryLoaded:
		s.onHistory(ev.payloads, ev.err)
	case evPollsLoaded:
		s.onPolls(ev.payloads, ev.err)
	case evGroupLoaded:
		s.onGroup(ev.group, ev.err)
	case evSubscribed:
		s.onSubscribed(ev.sub, ev.err)
		changed = false
	case evLive:
		changed = s.onLive(ev.live)
	case evVote:
		r.err = s.onVote(ev.pollID, ev.optionIDs)
	case evVisibility:
		r.batch, r.err = s.onVisibility(ev.ids)
		changed = false
	case evTarget:
		if s.session == nil {
			r.err = ErrNoSession
		} else {
			r.groupID = s.session.GroupID
		}
		changed = false
	case evSnapshot:
		r.view = s.view()
		changed = false
	}

	if ev.reply != nil {
		ev.reply <- r
	}
	if changed && r.err == nil && s.onChange != nil {
		s.onChange(s.view())
	}
}

func (s *TimelineService) open(groupID string) {
	s.discard()

	sess := newSession(s.ctx, groupID)
	s.session = sess
	fmt.Printf("[Timeline] Opening group %s (session %s)\n", groupID, sess.ID)

	s.wg.Add(4)
	go s.fetchGroup(sess)
	go s.fetchHistory(sess)
	go s.subscribe(sess)
	go s.markRead(sess)
}

// discard drops the current session and everything tied to it
func (s *TimelineService) discard() {
	if s.session == nil {
		return
	}
	fmt.Printf("[Timeline] Closing group %s (session %s)\n", s.session.GroupID, s.session.ID)
	s.session.close()
	s.session = nil
}

func (s *TimelineService) fetchGroup(sess *Session) {
	defer s.wg.Done()
	group, err := s.chatRepo.FetchGroup(sess.ctx, sess.GroupID)
	_ = s.post(sess.ctx, event{kind: evGroupLoaded, sessionID: sess.ID, group: group, err: err})
}

// markRead clears the group's unread count once it is opened
func (s *TimelineService) markRead(sess *Session) {
	defer s.wg.Done()
	if err := s.outbound.MarkGroupRead(sess.ctx, sess.GroupID); err != nil {
		fmt.Printf("[Timeline] Failed to mark group %s as read: %v\n", sess.GroupID, err)
	}
}

// fetchHistory loads the history, then the poll listing after PollFetchDelay
func (s *TimelineService) fetchHistory(sess *Session) {
	defer s.wg.Done()

	raws, err := s.chatRepo.FetchHistory(sess.ctx, sess.GroupID)
	if postErr := s.post(sess.ctx, event{kind: evHistoryLoaded, sessionID: sess.ID, payloads: raws, err: err}); postErr != nil {
		return
	}

	timer := time.NewTimer(s.opts.PollFetchDelay)
	defer timer.Stop()
	select {
	case <-sess.ctx.Done():
		return
	case <-timer.C:
	}

	polls, err := s.chatRepo.FetchPolls(sess.ctx, sess.GroupID)
	_ = s.post(sess.ctx, event{kind: evPollsLoaded, sessionID: sess.ID, payloads: polls, err: err})
}

func (s *TimelineService) subscribe(sess *Session) {
	defer s.wg.Done()

	sub, err := s.liveRepo.Subscribe(sess.ctx, sess.GroupID, func(le domain.LiveEvent) {
		_ = s.post(sess.ctx, event{kind: evLive, sessionID: sess.ID, live: le})
	})
	if err != nil {
		_ = s.post(sess.ctx, event{kind: evSubscribed, sessionID: sess.ID, err: err})
		return
	}
	if postErr := s.post(sess.ctx, event{kind: evSubscribed, sessionID: sess.ID, sub: sub}); postErr != nil {
		// session already gone
		_ = sub.Unsubscribe()
	}
}

func (s *TimelineService) onHistory(raws []domain.RawPayload, err error) {
	sess := s.session
	sess.historyPending = false
	if err != nil {
		s.fetchFailed("history", sess.GroupID, err)
		return
	}

	items := make([]domain.TimelineItem, 0, len(raws))
	for _, raw := range raws {
		item := s.normalizer.Message(raw)
		if item.GroupID == "" {
			item.GroupID = sess.GroupID
		}
		items = append(items, item)
	}

	// polls announced by the live stream before history arrived stay in the buffer
	for _, existing := range sess.History {
		if existing.IsPoll() {
			items = upsertPoll(items, existing)
		}
	}
	sess.History = items
	fmt.Printf("[Timeline] Loaded %d history items for group %s\n", len(raws), sess.GroupID)
}

func (s *TimelineService) onPolls(raws []domain.RawPayload, err error) {
	sess := s.session
	if err != nil {
		s.fetchFailed("polls", sess.GroupID, err)
		return
	}

	now := s.opts.Now()
	for _, raw := range raws {
		item := s.normalizer.Poll(raw, sess.GroupID, now)
		if item.Poll.ID == "" {
			continue
		}
		sess.History = upsertPoll(sess.History, item)
	}
	fmt.Printf("[Timeline] Loaded %d polls for group %s\n", len(raws), sess.GroupID)
}

func (s *TimelineService) onGroup(group *domain.GroupInfo, err error) {
	sess := s.session
	sess.groupPending = false
	if err != nil {
		s.fetchFailed("group", sess.GroupID, err)
		return
	}
	sess.Group = group
}

func (s *TimelineService) onSubscribed(sub repo.Subscription, err error) {
	sess := s.session
	if err != nil {
		s.fetchFailed("subscribe", sess.GroupID, err)
		return
	}
	sess.sub = sub
	fmt.Printf("[Timeline] Subscribed to live events of group %s\n", sess.GroupID)
}

func (s *TimelineService) fetchFailed(op, groupID string, err error) {
	s.metrics.FetchFailures.WithLabelValues(op).Inc()
	fmt.Printf("[Timeline] Failed to load %s for group %s: %v\n", op, groupID, err)
}

// onLive applies one live stream event; returns false when nothing changed
func (s *TimelineService) onLive(le domain.LiveEvent) bool {
	sess := s.session
	if le.GroupID != "" && le.GroupID != sess.GroupID {
		return false
	}

	switch le.Type {
	case domain.EventNewMessage:
		item := s.normalizer.Message(le.Payload)
		if item.GroupID == "" {
			item.GroupID = sess.GroupID
		}
		sess.Live = append(sess.Live, item)

	case domain.EventPollCreated:
		item := s.normalizer.Message(le.Payload)
		if !item.IsPoll() || item.Poll.ID == "" {
			fmt.Printf("[Timeline] Ignoring poll announcement without poll id\n")
			return false
		}
		if item.GroupID == "" {
			item.GroupID = sess.GroupID
		}
		sess.History = upsertPoll(sess.History, item)

	case domain.EventPollVoteUpdate:
		update, ok := s.normalizer.PollUpdate(le.Payload)
		if !ok {
			fmt.Printf("[Timeline] Ignoring vote update without poll id\n")
			return false
		}
		history, inHistory := usecase.ApplyPollUpdate(sess.History, update)
		live, inLive := usecase.ApplyPollUpdate(sess.Live, update)
		sess.History, sess.Live = history, live
		if !inHistory && !inLive {
			sess.Live = append(sess.Live, s.pollItem(update, sess.GroupID))
		}

	case domain.EventTypingStarted:
		if le.User.UserID == "" || le.User.UserID == s.opts.ViewerID {
			return false
		}
		user := le.User
		if user.Name == "" && sess.Group != nil {
			if m := sess.Group.FindMemberByID(user.UserID); m != nil {
				user.Name = m.Name
			}
		}
		sess.Typing[user.UserID] = user

	case domain.EventTypingStopped:
		if _, ok := sess.Typing[le.User.UserID]; !ok {
			return false
		}
		delete(sess.Typing, le.User.UserID)

	default:
		return false
	}
	return true
}

// pollItem builds a timeline entry for a poll first seen through a vote update
func (s *TimelineService) pollItem(update domain.PollUpdate, groupID string) domain.TimelineItem {
	p := update.Poll.Clone()
	if !update.HasTotal {
		p.TotalVotes = p.CountVotes()
	}
	ts := p.CreatedAt
	if ts.IsZero() {
		ts = s.opts.Now()
	}
	name := p.CreatorName
	if name == "" {
		name = "Unknown"
	}
	return domain.TimelineItem{
		ID:         "poll-" + p.ID,
		Kind:       domain.KindPoll,
		GroupID:    groupID,
		SenderID:   p.CreatorID,
		SenderName: name,
		Timestamp:  ts,
		Poll:       p,
	}
}

func (s *TimelineService) onVote(pollID string, optionIDs []string) error {
	sess := s.session
	if sess == nil {
		return ErrNoSession
	}

	sess.History = usecase.ApplyOptimisticVote(sess.History, pollID, s.opts.ViewerID, optionIDs)
	sess.Live = usecase.ApplyOptimisticVote(sess.Live, pollID, s.opts.ViewerID, optionIDs)
	s.metrics.OptimisticVotes.Inc()

	groupID := sess.GroupID
	options := append([]string(nil), optionIDs...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.outbound.SubmitVote(sess.ctx, groupID, pollID, options); err != nil {
			fmt.Printf("[Timeline] Failed to submit vote on poll %s: %v\n", pollID, err)
		}
	}()
	return nil
}

func (s *TimelineService) onVisibility(ids []string) (*domain.ReadReceiptBatch, error) {
	sess := s.session
	if sess == nil {
		return nil, ErrNoSession
	}

	timeline := usecase.Merge(sess.History, sess.Live)
	batch := usecase.EvaluateVisibility(timeline, sess.Observed, s.opts.ViewerID, sess.GroupID, ids)
	if batch == nil {
		return nil, nil
	}
	s.metrics.ReceiptIDsAcked.Add(float64(len(batch.MessageIDs)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.outbound.SubmitReadReceipt(sess.ctx, batch.GroupID, batch.MessageIDs); err != nil {
			fmt.Printf("[Timeline] Failed to submit %d read receipts: %v\n", len(batch.MessageIDs), err)
		}
	}()
	return batch, nil
}

// view renders the session; an empty view when no conversation is open
func (s *TimelineService) view() View {
	sess := s.session
	if sess == nil {
		return View{Days: []domain.DayGroup{}, TypingUsers: []string{}}
	}

	start := time.Now()
	items := usecase.Merge(sess.History, sess.Live)
	days := usecase.GroupByDay(items, s.opts.Now().In(s.opts.Location), s.opts.Labels)
	s.metrics.MergeDuration.Observe(time.Since(start).Seconds())

	v := View{
		SessionID:   sess.ID,
		GroupID:     sess.GroupID,
		Loading:     sess.Loading(),
		Days:        days,
		Items:       items,
		TypingUsers: sess.TypingUsers(),
	}
	if sess.Group != nil {
		g := *sess.Group
		g.Members = append([]domain.Member(nil), sess.Group.Members...)
		v.Group = &g
	}
	return v
}
