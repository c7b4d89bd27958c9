package summarize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUnconfiguredClientErrors(t *testing.T) {
	c := NewClient("", "", "")
	if c.Available() {
		t.Error("Client without key must report unavailable")
	}
	if _, err := c.SummarizeSiteDigest(context.Background(), "HN", []string{"a"}); err == nil {
		t.Error("Expected error from unconfigured client")
	}
}

func TestSummarizeSiteDigest(t *testing.T) {
	var gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  今天大家在聊新模型。  "},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	c := NewClient("sk-test", server.URL, "test-model")
	summary, err := c.SummarizeSiteDigest(context.Background(), "Hacker News", []string{"Topic A (42 replies)", "Topic B"})
	if err != nil {
		t.Fatalf("SummarizeSiteDigest failed: %v", err)
	}
	if summary != "今天大家在聊新模型。" {
		t.Errorf("Expected trimmed content, got: %q", summary)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Unexpected auth header: %q", gotAuth)
	}
	if !strings.Contains(gotBody, "Topic A") || !strings.Contains(gotBody, "test-model") {
		t.Errorf("Unexpected request body: %q", gotBody)
	}
}

func TestUpstreamErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("sk-test", server.URL, "")
	if _, err := c.SummarizeSiteDigest(context.Background(), "HN", []string{"x"}); err == nil {
		t.Error("Expected error on non-200 upstream response")
	}
}

func TestEmptyCompletionIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"   "}}]}`)
	}))
	defer server.Close()

	c := NewClient("sk-test", server.URL, "")
	if _, err := c.SummarizeSiteDigest(context.Background(), "HN", []string{"x"}); err == nil {
		t.Error("Expected error on blank completion")
	}
}
