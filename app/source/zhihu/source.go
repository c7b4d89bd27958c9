// Package zhihu adapts the Zhihu hot-list API. A listing entry can be an
// answer, an article or a question; the item id carries the type tag
// ("answer_123") and every detail or comment endpoint branches on it.
//
// The detail endpoints reject anonymous callers intermittently with 403.
// Listing responses are memoized in a bounded LRU so a rejected detail
// fetch can still render whatever the list already showed.
package zhihu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"threadhub/app/content"
	"threadhub/app/cookies"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const (
	defaultBaseURL = "https://www.zhihu.com"

	memoCapacity = 100
	commentPage  = 20

	suppressedPrefKey = "zhihu_suppressed"
)

var _ source.Suppressor = (*Source)(nil)

type Source struct {
	client  *httpx.Client
	jar     cookies.Jar
	prefs   source.PrefStore
	baseURL string

	memo *lru.Cache[string, source.Item]

	mu         sync.Mutex
	suppressed map[string]bool
	loaded     bool
}

func New(client *httpx.Client, jar cookies.Jar, prefs source.PrefStore) *Source {
	memo, _ := lru.New[string, source.Item](memoCapacity)
	return &Source{
		client:     client,
		jar:        jar,
		prefs:      prefs,
		baseURL:    defaultBaseURL,
		memo:       memo,
		suppressed: map[string]bool{},
	}
}

func (s *Source) ID() string   { return "zhihu" }
func (s *Source) Name() string { return "知乎" }

func (s *Source) SupportsPosting() bool { return false }
func (s *Source) RequiresLogin() bool   { return false }

// Hot-list sections are fixed API paths.
func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	return []source.Category{
		{ID: "total", Name: "全站热榜", Description: "全站热门内容"},
		{ID: "science", Name: "科学", Description: "科学领域热榜"},
		{ID: "digital", Name: "数码", Description: "数码领域热榜"},
		{ID: "sport", Name: "体育", Description: "体育领域热榜"},
		{ID: "film", Name: "影视", Description: "影视领域热榜"},
	}, nil
}

// listEntry is the hot-list feed shape; the target carries the actual
// content object.
type listEntry struct {
	Target struct {
		ID      json.Number `json:"id"`
		Type    string      `json:"type"`
		Title   string      `json:"title"`
		Excerpt string      `json:"excerpt"`
		Created int64       `json:"created"`
		Author  struct {
			Name      string `json:"name"`
			AvatarURL string `json:"avatar_url"`
		} `json:"author"`
		VoteupCount  int `json:"voteup_count"`
		CommentCount int `json:"comment_count"`
		Question     *struct {
			ID    json.Number `json:"id"`
			Title string      `json:"title"`
		} `json:"question"`
	} `json:"target"`
	DetailText string `json:"detail_text"`
}

// The hot list is not paginated upstream; page 1 returns everything and
// later pages are empty.
func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	if page > 1 {
		return []source.Item{}, nil
	}

	url := fmt.Sprintf("%s/api/v3/feed/topstory/hot-lists/%s?limit=50&desktop=true", s.baseURL, categoryID)
	resp, err := s.client.Get(ctx, s.ID(), url, &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
	})
	if err != nil {
		return nil, fmt.Errorf("hot list request failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data []listEntry `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode hot list: %w", err)
	}

	s.loadSuppressed()

	items := make([]source.Item, 0, len(payload.Data))
	for _, entry := range payload.Data {
		item, ok := s.toItem(entry, categoryID)
		if !ok {
			continue
		}
		s.memo.Add(item.ID, item)
		if s.isSuppressed(item.ID) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	tag, numID, err := splitID(itemID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	item, err := s.fetchDetailItem(ctx, tag, numID, itemID)
	if err != nil {
		// A 403 detail is served from the list-time memo; everything
		// else propagates.
		if !isForbidden(err) {
			return nil, err
		}
		memoized, ok := s.memo.Get(itemID)
		if !ok {
			return nil, err
		}
		item = &memoized
	}

	comments, totalPages := s.fetchComments(ctx, tag, numID, page)

	return &source.PagedDetail{
		Item:       *item,
		Comments:   comments,
		TotalPages: totalPages,
	}, nil
}

func (s *Source) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	return source.ErrUnsupported
}

func (s *Source) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	return "", source.ErrUnsupported
}

func (s *Source) WebURL(item source.Item) string {
	tag, numID, err := splitID(item.ID)
	if err != nil {
		return s.baseURL
	}
	switch tag {
	case "article":
		return fmt.Sprintf("https://zhuanlan.zhihu.com/p/%s", numID)
	case "question":
		return fmt.Sprintf("%s/question/%s", s.baseURL, numID)
	default:
		return fmt.Sprintf("%s/answer/%s", s.baseURL, numID)
	}
}

// Suppress hides an item from every subsequent listing. The set persists
// through the preference store so dismissals survive restarts.
func (s *Source) Suppress(itemID string) error {
	s.loadSuppressed()

	s.mu.Lock()
	s.suppressed[itemID] = true
	ids := make([]string, 0, len(s.suppressed))
	for id := range s.suppressed {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	return s.prefs.SetPref(suppressedPrefKey, strings.Join(ids, ","))
}

func (s *Source) isSuppressed(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed[itemID]
}

func (s *Source) loadSuppressed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	raw, err := s.prefs.GetPref(suppressedPrefKey)
	if err != nil || raw == "" {
		return
	}
	for _, id := range strings.Split(raw, ",") {
		if id != "" {
			s.suppressed[id] = true
		}
	}
}

// detailTarget is the shape shared by the answer, article and question
// detail endpoints.
type detailTarget struct {
	ID      json.Number `json:"id"`
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Detail  string      `json:"detail"`
	Excerpt string      `json:"excerpt"`
	Created int64       `json:"created"`
	Author  struct {
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"author"`
	VoteupCount  int `json:"voteup_count"`
	CommentCount int `json:"comment_count"`
	Question     *struct {
		Title string `json:"title"`
	} `json:"question"`
}

func (s *Source) fetchDetailItem(ctx context.Context, tag, numID, itemID string) (*source.Item, error) {
	var url string
	switch tag {
	case "answer":
		url = fmt.Sprintf("%s/api/v4/answers/%s?include=content,voteup_count,comment_count", s.baseURL, numID)
	case "article":
		url = fmt.Sprintf("%s/api/v4/articles/%s", s.baseURL, numID)
	case "question":
		url = fmt.Sprintf("%s/api/v4/questions/%s?include=detail,answer_count", s.baseURL, numID)
	default:
		return nil, fmt.Errorf("unknown item type %q", tag)
	}

	resp, err := s.client.Get(ctx, s.ID(), url, &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
	})
	if err != nil {
		return nil, fmt.Errorf("detail request failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if resp.StatusCode == 403 {
		return nil, errForbidden
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var target detailTarget
	if err := json.Unmarshal(resp.Body, &target); err != nil {
		return nil, fmt.Errorf("failed to decode detail: %w", err)
	}

	title := target.Title
	if title == "" && target.Question != nil {
		title = target.Question.Title
	}
	body := target.Content
	if body == "" {
		body = target.Detail
	}
	if body == "" {
		body = target.Excerpt
	}

	return &source.Item{
		ID:    itemID,
		Title: title,
		Body:  content.Normalize(body),
		Author: source.Author{
			Name:      target.Author.Name,
			AvatarURL: target.Author.AvatarURL,
		},
		Age:        source.RelativeAge(time.Unix(target.Created, 0)),
		Score:      target.VoteupCount,
		ReplyCount: target.CommentCount,
	}, nil
}

// fetchComments resolves the reply view for an item. Questions list their
// answers as the reply stream; answers and articles list comments. Failures
// degrade to an empty page, never to a detail-view error.
func (s *Source) fetchComments(ctx context.Context, tag, numID string, page int) ([]source.Comment, int) {
	offset := (page - 1) * commentPage

	var url string
	switch tag {
	case "question":
		url = fmt.Sprintf("%s/api/v4/questions/%s/answers?include=content,voteup_count&limit=%d&offset=%d",
			s.baseURL, numID, commentPage, offset)
	case "article":
		url = fmt.Sprintf("%s/api/v4/articles/%s/root_comments?limit=%d&offset=%d",
			s.baseURL, numID, commentPage, offset)
	default:
		url = fmt.Sprintf("%s/api/v4/answers/%s/root_comments?limit=%d&offset=%d",
			s.baseURL, numID, commentPage, offset)
	}

	resp, err := s.client.Get(ctx, s.ID(), url, &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
	})
	if err != nil || resp.StatusCode != 200 {
		return nil, 0
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)

	var payload struct {
		Data []struct {
			ID      json.Number `json:"id"`
			Content string      `json:"content"`
			Excerpt string      `json:"excerpt"`
			Created int64       `json:"created_time"`
			Author  struct {
				Name      string `json:"name"`
				AvatarURL string `json:"avatar_url"`
			} `json:"author"`
			VoteCount   int `json:"vote_count"`
			VoteupCount int `json:"voteup_count"`
		} `json:"data"`
		Paging struct {
			Totals int `json:"totals"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, 0
	}

	comments := make([]source.Comment, 0, len(payload.Data))
	for _, c := range payload.Data {
		body := c.Content
		if body == "" {
			body = c.Excerpt
		}
		score := c.VoteCount
		if score == 0 {
			score = c.VoteupCount
		}
		comments = append(comments, source.Comment{
			ID:     c.ID.String(),
			Author: source.Author{Name: c.Author.Name, AvatarURL: c.Author.AvatarURL},
			Body:   content.Normalize(body),
			Age:    source.RelativeAge(time.Unix(c.Created, 0)),
			Score:  score,
		})
	}

	totalPages := 0
	if payload.Paging.Totals > 0 {
		totalPages = (payload.Paging.Totals + commentPage - 1) / commentPage
	}
	return comments, totalPages
}

func (s *Source) toItem(entry listEntry, categoryID string) (source.Item, bool) {
	target := entry.Target
	if target.Type == "" || target.ID.String() == "" {
		return source.Item{}, false
	}

	title := target.Title
	if title == "" && target.Question != nil {
		title = target.Question.Title
	}
	if title == "" {
		return source.Item{}, false
	}

	item := source.Item{
		ID:    fmt.Sprintf("%s_%s", target.Type, target.ID.String()),
		Title: title,
		Body:  content.Normalize(target.Excerpt),
		Author: source.Author{
			Name:      target.Author.Name,
			AvatarURL: target.Author.AvatarURL,
		},
		CategoryID: categoryID,
		Age:        source.RelativeAge(time.Unix(target.Created, 0)),
		Score:      target.VoteupCount,
		ReplyCount: target.CommentCount,
	}
	// detail_text carries the hot-list heat label ("1234 万热度")
	if entry.DetailText != "" {
		item.Tags = []string{entry.DetailText}
	}
	return item, true
}

var errForbidden = fmt.Errorf("detail endpoint rejected the request")

func isForbidden(err error) bool {
	return err == errForbidden
}

func splitID(itemID string) (tag, numID string, err error) {
	tag, numID, ok := strings.Cut(itemID, "_")
	if !ok || tag == "" || numID == "" {
		return "", "", fmt.Errorf("malformed item id %q", itemID)
	}
	return tag, numID, nil
}
