package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompatibleInvoke(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{
			"choices": [{"message": {"content": "hello there"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompatible("openai", "sk-test", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	got, err := p.Invoke(context.Background(),
		[]Message{{Role: RoleUser, Content: "hi"}},
		Options{Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" || len(gotReq.Messages) != 1 {
		t.Errorf("request = %+v", gotReq)
	}
	if got.Content != "hello there" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestOpenAICompatibleAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := NewOpenAICompatible("openai", "k", srv.URL)
	if _, err := p.Invoke(context.Background(), nil, Options{Model: "m"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestOpenAICompatibleNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAICompatible("openai", "k", srv.URL)
	if _, err := p.Invoke(context.Background(), nil, Options{Model: "m"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAICompatibleValidation(t *testing.T) {
	if _, err := NewOpenAICompatible("", "k", "http://x"); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewOpenAICompatible("openai", "", "http://x"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewOpenAICompatible("openai", "k", ""); err == nil {
		t.Error("expected error for empty base URL")
	}
}
