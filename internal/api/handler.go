package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/service"
)

// Timeline is the conversation engine driven by the API
type Timeline interface {
	Open(ctx context.Context, groupID string) (string, error)
	Close(ctx context.Context) error
	Vote(ctx context.Context, pollID string, optionIDs []string) error
	VisibilityChanged(ctx context.Context, ids []string) (*domain.ReadReceiptBatch, error)
	SendMessage(ctx context.Context, content string) error
	React(ctx context.Context, messageID, emoji string) error
	SetTyping(ctx context.Context, typing bool) error
	Snapshot(ctx context.Context) (service.View, error)
}

// Server provides the local HTTP API for renderers and the MCP server
type Server struct {
	timeline Timeline
	gatherer prometheus.Gatherer

	server *http.Server
	port   int
}

// NewServer creates a new API server.
// gatherer backs /metrics; nil uses the default registry.
func NewServer(timeline Timeline, gatherer prometheus.Gatherer, port int) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		timeline: timeline,
		gatherer: gatherer,
		port:     port,
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Timeline
	mux.HandleFunc("/api/timeline", s.handleTimeline)

	// Conversation lifecycle
	mux.HandleFunc("/api/open", s.handleOpen)
	mux.HandleFunc("/api/close", s.handleClose)

	// User actions
	mux.HandleFunc("/api/vote", s.handleVote)
	mux.HandleFunc("/api/visibility", s.handleVisibility)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/typing", s.handleTyping)
	mux.HandleFunc("/api/reactions", s.handleReactions)

	// Metrics
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.Handler(),
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// ============ Timeline Handlers ============

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	view, err := s.timeline.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if limit > 0 {
		view.Days = lastItems(view.Days, limit)
	}
	s.writeJSON(w, view)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		GroupID string `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.GroupID) == "" {
		http.Error(w, "group_id is required", http.StatusBadRequest)
		return
	}

	sessionID, err := s.timeline.Open(r.Context(), req.GroupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true, "session_id": sessionID})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.timeline.Close(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Action Handlers ============

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PollID    string   `json:"poll_id"`
		OptionIDs []string `json:"option_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PollID == "" || len(req.OptionIDs) == 0 {
		http.Error(w, "poll_id and option_ids are required", http.StatusBadRequest)
		return
	}

	if err := s.timeline.Vote(r.Context(), req.PollID, req.OptionIDs); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch, err := s.timeline.VisibilityChanged(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	acked := []int64{}
	if batch != nil {
		acked = batch.MessageIDs
	}
	s.writeJSON(w, map[string]interface{}{"acknowledged": acked})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.timeline.SendMessage(r.Context(), req.Content); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleReactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MessageID == "" || req.Emoji == "" {
		http.Error(w, "message_id and emoji are required", http.StatusBadRequest)
		return
	}

	if err := s.timeline.React(r.Context(), req.MessageID, req.Emoji); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Typing bool `json:"typing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.timeline.SetTyping(r.Context(), req.Typing); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrNoSession) {
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// lastItems keeps the newest limit items, dropping emptied day buckets
func lastItems(days []domain.DayGroup, limit int) []domain.DayGroup {
	out := make([]domain.DayGroup, 0, len(days))
	remaining := limit
	for i := len(days) - 1; i >= 0 && remaining > 0; i-- {
		items := days[i].Items
		if len(items) > remaining {
			items = items[len(items)-remaining:]
		}
		remaining -= len(items)
		out = append(out, domain.DayGroup{Label: days[i].Label, Items: items})
	}
	// restore chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
