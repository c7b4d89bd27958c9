package linuxdo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"threadhub/app/cookies"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

type noCookies struct{}

func (noCookies) CookieHeader(string) string                 { return "" }
func (noCookies) SaveResponseCookies(string, []string) error { return nil }

type memCreds struct {
	mu      sync.Mutex
	cookies map[string]string
}

func (c *memCreds) GetCookies(sourceID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies[sourceID], nil
}

func (c *memCreds) SaveCookies(sourceID, header string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[sourceID] = header
	return nil
}

func (c *memCreds) HasCookies(sourceID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies[sourceID] != "", nil
}

func (c *memCreds) RemoveCookies(sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cookies, sourceID)
	return nil
}

func newTestSource(t *testing.T, mux *http.ServeMux) *Source {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	s := New(httpx.NewClient("test-agent", 5*time.Second, 8), noCookies{})
	s.baseURL = server.URL
	return s
}

func TestCategoriesAndSlugLearning(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/categories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"category_list":{"categories":[
			{"id":4,"name":"开发调优","slug":"develop","description_text":"dev talk","topic_count":120,"post_count":3400}
		]}}`)
	})

	s := newTestSource(t, mux)
	cats, err := s.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if len(cats) != 1 || cats[0].ID != "4" || cats[0].Name != "开发调优" {
		t.Fatalf("Unexpected categories: %+v", cats)
	}
	if cats[0].StatPrimary != 120 || cats[0].StatSecondary != 3400 {
		t.Errorf("Unexpected counters: %+v", cats[0])
	}
}

func TestItemsTranslatesPageIndex(t *testing.T) {
	var gotPage string
	mux := http.NewServeMux()
	mux.HandleFunc("/categories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"category_list":{"categories":[{"id":4,"slug":"develop","name":"Dev"}]}}`)
	})
	mux.HandleFunc("/c/develop/4.json", func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		fmt.Fprint(w, `{"users":[{"id":7,"username":"neo"}],"topic_list":{"topics":[
			{"id":101,"title":"Topic A","posts_count":13,"like_count":5,"created_at":"2024-01-01T00:00:00Z","posters":[{"user_id":7}]}
		]}}`)
	})

	s := newTestSource(t, mux)
	items, err := s.Items(context.Background(), "4", 2)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}

	// Contract page 2 is the site's page 1
	if gotPage != "1" {
		t.Errorf("Expected 0-indexed page 1 on the wire, got: %q", gotPage)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}
	if items[0].Author.Name != "neo" {
		t.Errorf("Expected poster resolved from users table, got: %+v", items[0].Author)
	}
	if items[0].ReplyCount != 12 {
		t.Errorf("Expected posts_count-1 replies, got: %d", items[0].ReplyCount)
	}
}

func TestDetailSeparatesBodyFromComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/t/101.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"title":"Topic A","posts_count":2,"like_count":9,"post_stream":{"posts":[
			{"id":1001,"username":"neo","cooked":"<p>the body</p>","created_at":"2024-01-01T00:00:00Z","post_number":1},
			{"id":1002,"username":"trinity","cooked":"<p>a reply</p>","created_at":"2024-01-01T01:00:00Z","post_number":2,"moderator":true}
		]}}`)
	})

	s := newTestSource(t, mux)
	detail, err := s.Detail(context.Background(), "101", 1)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if detail.Item.Body != "the body" {
		t.Errorf("Expected first post as item body, got: %q", detail.Item.Body)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Body != "a reply" {
		t.Fatalf("Expected 1 comment, got: %+v", detail.Comments)
	}
	if detail.Comments[0].Author.Role != "moderator" {
		t.Errorf("Expected moderator role label, got: %q", detail.Comments[0].Author.Role)
	}
	if detail.TotalPages != 1 {
		t.Errorf("Expected 1 page, got: %d", detail.TotalPages)
	}
}

func TestChallengeDetection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/t/5.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body>Just a moment... <div id="challenge-platform"></div></body></html>`)
	})

	s := newTestSource(t, mux)
	_, err := s.Detail(context.Background(), "5", 1)
	if err == nil {
		t.Fatal("Expected challenge error")
	}
	if !source.IsChallenge(err) {
		t.Errorf("Expected a ChallengeError, got: %v", err)
	}
}

func TestPlain403IsNotAChallenge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/t/6.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":["forbidden"]}`)
	})

	s := newTestSource(t, mux)
	_, err := s.Detail(context.Background(), "6", 1)
	if err == nil {
		t.Fatal("Expected error")
	}
	if source.IsChallenge(err) {
		t.Error("Plain 403 must not be classified as a challenge")
	}
}

func TestRotatedSessionCookieIsReused(t *testing.T) {
	calls := 0
	var secondCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/categories.json", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: "_forum_session", Value: "rotated123", Path: "/"})
		} else {
			secondCookie = r.Header.Get("Cookie")
		}
		fmt.Fprint(w, `{"category_list":{"categories":[]}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	creds := &memCreds{cookies: map[string]string{"linuxdo": "_t=login"}}
	s := New(httpx.NewClient("test-agent", 5*time.Second, 8), cookies.NewStoreJar(creds))
	s.baseURL = server.URL

	for i := 0; i < 2; i++ {
		if _, err := s.Categories(context.Background()); err != nil {
			t.Fatalf("Categories failed: %v", err)
		}
	}

	if !strings.Contains(secondCookie, "_forum_session=rotated123") {
		t.Errorf("Expected rotated session cookie on the follow-up request, got: %q", secondCookie)
	}
	if !strings.Contains(secondCookie, "_t=login") {
		t.Errorf("Expected original login cookie kept, got: %q", secondCookie)
	}
	saved, _ := creds.GetCookies("linuxdo")
	if !strings.Contains(saved, "_forum_session=rotated123") {
		t.Errorf("Expected rotated cookie flushed to the store, got: %q", saved)
	}
}

func TestPostReplyRequiresLogin(t *testing.T) {
	s := newTestSource(t, http.NewServeMux())
	err := s.PostReply(context.Background(), "101", "4", "hello")
	if err != source.ErrLoginRequired {
		t.Errorf("Expected ErrLoginRequired, got: %v", err)
	}
}
