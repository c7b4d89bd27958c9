package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(blocked); err == nil {
		t.Error("Third acquire should block until a slot frees")
	}

	l.Release()
	if err := l.Acquire(ctx); err != nil {
		t.Errorf("Acquire after release failed: %v", err)
	}
}

func TestClientDedupesConcurrentGets(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(30 * time.Millisecond)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	c := NewClient("test-agent", 5*time.Second, 8)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Get(context.Background(), "test", server.URL, nil)
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if string(resp.Body) != "payload" {
				t.Errorf("Unexpected body: %q", resp.Body)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call for 5 concurrent gets, got: %d", got)
	}
}

func TestClientSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
	}))
	defer server.Close()

	c := NewClient("Mozilla/5.0 Test", 5*time.Second, 8)
	_, err := c.Get(context.Background(), "test", server.URL, &Options{Cookies: "sid=abc"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if gotUA != "Mozilla/5.0 Test" {
		t.Errorf("Expected configured user agent, got: %q", gotUA)
	}
	if gotCookie != "sid=abc" {
		t.Errorf("Expected cookie header, got: %q", gotCookie)
	}
}

func TestClientReturnsBodyOn5xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("challenge page body"))
	}))
	defer server.Close()

	c := NewClient("test-agent", 5*time.Second, 8)
	resp, err := c.Get(context.Background(), "test", server.URL, nil)
	if err == nil {
		t.Error("Expected error for 503")
	}
	if resp == nil || string(resp.Body) != "challenge page body" {
		t.Error("Expected response body alongside the 5xx error")
	}
}
