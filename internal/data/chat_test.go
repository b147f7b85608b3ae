package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devricklin/chat-timeline/internal/infra/chatapi"
)

func newChatRepoForTest(t *testing.T, handler http.Handler) *chatRepo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &chatRepo{client: chatapi.NewClient(srv.URL+"/api", srv.URL, "tok", time.Second)}
}

func TestChatRepo_FetchHistoryAndPolls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/messages/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"content":"a"},null,{"id":2,"content":"b"}]`))
	})
	mux.HandleFunc("/polls/group/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	r := newChatRepoForTest(t, mux)

	history, err := r.FetchHistory(context.Background(), "7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("Expected 2 payloads (null dropped), got %d", len(history))
	}

	polls, err := r.FetchPolls(context.Background(), "7")
	if err != nil || len(polls) != 0 {
		t.Errorf("Expected empty poll listing, got %v, %v", polls, err)
	}
}

func TestChatRepo_FetchError(t *testing.T) {
	r := newChatRepoForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := r.FetchPolls(context.Background(), "7")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.Op != "polls" || fetchErr.Status != http.StatusForbidden {
		t.Errorf("Expected polls/403, got %s/%d", fetchErr.Op, fetchErr.Status)
	}
}

func TestChatRepo_FetchGroup(t *testing.T) {
	r := newChatRepoForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Algebra","courseName":"MATH101","members":[{"id":1,"name":"Ann"},{"userId":2,"username":"bob"},3]}`))
	}))

	group, err := r.FetchGroup(context.Background(), "7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if group.ID != "7" || group.Name != "Algebra" || group.CourseName != "MATH101" {
		t.Errorf("Unexpected group: %+v", group)
	}
	if len(group.Members) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(group.Members))
	}
	if m := group.FindMemberByID("2"); m == nil || m.Name != "bob" {
		t.Errorf("Expected member 2 'bob', got %+v", m)
	}
	if group.Members[2].UserID != "3" {
		t.Errorf("Expected bare id member '3', got %+v", group.Members[2])
	}
}
