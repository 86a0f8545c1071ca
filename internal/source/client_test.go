package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientRequiresToken(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestQuerySendsAuthAndCursor(t *testing.T) {
	var gotAuth, gotVersion string
	var gotBody queryRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(Page{HasMore: false})
	}))
	defer srv.Close()

	c, err := NewClient("secret-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Query(context.Background(), "db1", "cur-2", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotVersion != APIVersion {
		t.Errorf("Notion-Version = %q", gotVersion)
	}
	if gotBody.StartCursor != "cur-2" {
		t.Errorf("start_cursor = %q, want cur-2", gotBody.StartCursor)
	}
}

func TestQueryModifiedAfterFilter(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(Page{})
	}))
	defer srv.Close()

	c, _ := NewClient("t", WithBaseURL(srv.URL))
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.Query(context.Background(), "db1", "", &Filter{ModifiedAfter: since}); err != nil {
		t.Fatal(err)
	}

	filter, ok := raw["filter"]
	if !ok {
		t.Fatal("expected filter clause in request body")
	}
	var clause struct {
		Timestamp      string `json:"timestamp"`
		LastEditedTime struct {
			After string `json:"after"`
		} `json:"last_edited_time"`
	}
	if err := json.Unmarshal(filter, &clause); err != nil {
		t.Fatal(err)
	}
	if clause.Timestamp != "last_edited_time" {
		t.Errorf("timestamp = %q", clause.Timestamp)
	}
	if clause.LastEditedTime.After != "2024-01-01T00:00:00Z" {
		t.Errorf("after = %q", clause.LastEditedTime.After)
	}
}

func TestQueryRateLimitResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient("t", WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "db1", "", nil)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rl.RetryAfter() != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", rl.RetryAfter())
	}
}

func TestQueryRateLimitDefaultWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient("t", WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), "db1", "", nil)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rl.RetryAfter() != defaultRateLimitWait {
		t.Errorf("RetryAfter = %v, want default %v", rl.RetryAfter(), defaultRateLimitWait)
	}
}

func TestQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewClient("t", WithBaseURL(srv.URL))
	if _, err := c.Query(context.Background(), "db1", "", nil); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestPing(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"object":"user"}`))
	}))
	defer srv.Close()

	c, _ := NewClient("t", WithBaseURL(srv.URL))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if gotPath != "/v1/users/me" {
		t.Errorf("path = %q", gotPath)
	}
}
