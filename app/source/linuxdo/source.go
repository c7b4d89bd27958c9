// Package linuxdo adapts a Discourse forum through its JSON endpoints.
// Discourse pages are 0-indexed; the adapter contract is 1-indexed, so every
// listing call translates. Cloudflare sits in front of the site and its
// challenge pages must be told apart from ordinary failures.
package linuxdo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"threadhub/app/content"
	"threadhub/app/cookies"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const (
	defaultBaseURL = "https://linux.do"
	postsPerPage   = 20 // Discourse post_stream chunk size
)

// Body markers that identify a Cloudflare challenge interstitial. Substring
// matching is brittle against provider changes and is best-effort only.
var challengeMarkers = []string{
	"cf-chl",
	"_cf_chl_opt",
	"challenge-platform",
	"Just a moment",
}

type Source struct {
	client  *httpx.Client
	jar     cookies.Jar
	baseURL string

	mu    sync.Mutex
	slugs map[int]string // category id -> slug, learned from the category list
}

func New(client *httpx.Client, jar cookies.Jar) *Source {
	return &Source{
		client:  client,
		jar:     jar,
		baseURL: defaultBaseURL,
		slugs:   make(map[int]string),
	}
}

func (s *Source) ID() string   { return "linuxdo" }
func (s *Source) Name() string { return "LINUX DO" }

func (s *Source) SupportsPosting() bool { return true }
func (s *Source) RequiresLogin() bool   { return false }

type categoriesPayload struct {
	CategoryList struct {
		Categories []struct {
			ID          int    `json:"id"`
			Name        string `json:"name"`
			Slug        string `json:"slug"`
			Description string `json:"description_text"`
			TopicCount  int    `json:"topic_count"`
			PostCount   int    `json:"post_count"`
		} `json:"categories"`
	} `json:"category_list"`
}

func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	body, err := s.getJSON(ctx, s.baseURL+"/categories.json")
	if err != nil {
		return nil, err
	}

	var payload categoriesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	s.mu.Lock()
	categories := make([]source.Category, 0, len(payload.CategoryList.Categories))
	for _, c := range payload.CategoryList.Categories {
		s.slugs[c.ID] = c.Slug
		categories = append(categories, source.Category{
			ID:            fmt.Sprintf("%d", c.ID),
			Name:          c.Name,
			Description:   c.Description,
			StatPrimary:   c.TopicCount,
			StatSecondary: c.PostCount,
		})
	}
	s.mu.Unlock()

	return categories, nil
}

type topicListPayload struct {
	Users []struct {
		ID             int    `json:"id"`
		Username       string `json:"username"`
		AvatarTemplate string `json:"avatar_template"`
	} `json:"users"`
	TopicList struct {
		Topics []struct {
			ID         int    `json:"id"`
			Title      string `json:"title"`
			PostsCount int    `json:"posts_count"`
			LikeCount  int    `json:"like_count"`
			CreatedAt  string `json:"created_at"`
			Posters    []struct {
				UserID int `json:"user_id"`
			} `json:"posters"`
		} `json:"topics"`
	} `json:"topic_list"`
}

func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	slug, err := s.slugFor(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	// 1-indexed contract, 0-indexed site
	url := fmt.Sprintf("%s/c/%s/%s.json?page=%d", s.baseURL, slug, categoryID, page-1)

	body, err := s.getJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload topicListPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode topic list: %w", err)
	}

	userNames := make(map[int]string, len(payload.Users))
	for _, u := range payload.Users {
		userNames[u.ID] = u.Username
	}

	items := make([]source.Item, 0, len(payload.TopicList.Topics))
	for _, t := range payload.TopicList.Topics {
		author := source.Author{}
		if len(t.Posters) > 0 {
			author.Name = userNames[t.Posters[0].UserID]
		}
		items = append(items, source.Item{
			ID:         fmt.Sprintf("%d", t.ID),
			Title:      t.Title,
			Author:     author,
			CategoryID: categoryID,
			Age:        source.RelativeAge(parseTime(t.CreatedAt)),
			Score:      t.LikeCount,
			ReplyCount: max(t.PostsCount-1, 0),
		})
	}
	return items, nil
}

type topicPayload struct {
	Title      string `json:"title"`
	PostsCount int    `json:"posts_count"`
	LikeCount  int    `json:"like_count"`
	PostStream struct {
		Posts []struct {
			ID             int     `json:"id"`
			Username       string  `json:"username"`
			AvatarTemplate string  `json:"avatar_template"`
			Cooked         string  `json:"cooked"`
			CreatedAt      string  `json:"created_at"`
			PostNumber     int     `json:"post_number"`
			Score          float64 `json:"score"`
			Moderator      bool    `json:"moderator"`
			Admin          bool    `json:"admin"`
		} `json:"posts"`
	} `json:"post_stream"`
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	if page < 1 {
		page = 1
	}
	url := fmt.Sprintf("%s/t/%s.json?page=%d", s.baseURL, itemID, page)

	body, err := s.getJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload topicPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode topic: %w", err)
	}

	detail := &source.PagedDetail{
		Item: source.Item{
			ID:         itemID,
			Title:      payload.Title,
			Score:      payload.LikeCount,
			ReplyCount: max(payload.PostsCount-1, 0),
		},
		TotalPages: (payload.PostsCount + postsPerPage - 1) / postsPerPage,
	}

	for _, p := range payload.PostStream.Posts {
		author := source.Author{
			Name:      p.Username,
			AvatarURL: expandAvatar(s.baseURL, p.AvatarTemplate),
			Role:      roleLabel(p.Moderator, p.Admin),
		}
		// post_number 1 is the topic body itself, never a comment
		if p.PostNumber == 1 {
			detail.Item.Body = content.Normalize(p.Cooked)
			detail.Item.Author = author
			detail.Item.Age = source.RelativeAge(parseTime(p.CreatedAt))
			continue
		}
		detail.Comments = append(detail.Comments, source.Comment{
			ID:     fmt.Sprintf("%d", p.ID),
			Author: author,
			Body:   content.Normalize(p.Cooked),
			Age:    source.RelativeAge(parseTime(p.CreatedAt)),
			Score:  int(p.Score),
		})
	}
	return detail, nil
}

func (s *Source) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	header := s.jar.CookieHeader(s.ID())
	if header == "" {
		return source.ErrLoginRequired
	}

	csrf, err := s.fetchCSRF(ctx, header)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"topic_id": content.FirstInt(itemID),
		"raw":      text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	resp, err := s.client.Post(ctx, s.ID(), s.baseURL+"/posts.json", payload, "application/json", &httpx.Options{
		Cookies: header,
		Headers: map[string]string{"X-CSRF-Token": csrf},
	})
	if err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if err := s.checkChallenge(resp); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("reply rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Source) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	header := s.jar.CookieHeader(s.ID())
	if header == "" {
		return "", source.ErrLoginRequired
	}

	csrf, err := s.fetchCSRF(ctx, header)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title":    title,
		"raw":      body,
		"category": content.FirstInt(categoryID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode topic: %w", err)
	}

	resp, err := s.client.Post(ctx, s.ID(), s.baseURL+"/posts.json", payload, "application/json", &httpx.Options{
		Cookies: header,
		Headers: map[string]string{"X-CSRF-Token": csrf},
	})
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if err := s.checkChallenge(resp); err != nil {
		return "", err
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("create rejected with status %d", resp.StatusCode)
	}

	var created struct {
		TopicID int `json:"topic_id"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	return fmt.Sprintf("%d", created.TopicID), nil
}

func (s *Source) WebURL(item source.Item) string {
	return fmt.Sprintf("%s/t/%s", s.baseURL, item.ID)
}

func (s *Source) slugFor(ctx context.Context, categoryID string) (string, error) {
	id := content.FirstInt(categoryID)

	s.mu.Lock()
	slug, ok := s.slugs[id]
	s.mu.Unlock()
	if ok {
		return slug, nil
	}

	// Cold start: the slug table fills as a side effect of listing categories
	if _, err := s.Categories(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	slug, ok = s.slugs[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown category %s", categoryID)
	}
	return slug, nil
}

func (s *Source) getJSON(ctx context.Context, url string) ([]byte, error) {
	opts := &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
		Headers: map[string]string{"Accept": "application/json"},
	}
	resp, err := s.client.Get(ctx, s.ID(), url, opts)
	if resp != nil {
		// Discourse rotates _forum_session on most responses
		cookies.Absorb(s.jar, s.ID(), resp.Header)
		if cerr := s.checkChallenge(resp); cerr != nil {
			return nil, cerr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Source) fetchCSRF(ctx context.Context, cookieHeader string) (string, error) {
	resp, err := s.client.Get(ctx, s.ID(), s.baseURL+"/session/csrf.json", &httpx.Options{
		Cookies: cookieHeader,
		Headers: map[string]string{"Accept": "application/json"},
		NoDedup: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	var payload struct {
		CSRF string `json:"csrf"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode csrf token: %w", err)
	}
	return payload.CSRF, nil
}

// checkChallenge recognizes Cloudflare interstitials: the right status plus
// at least one known body marker.
func (s *Source) checkChallenge(resp *httpx.Response) error {
	if resp.StatusCode != 403 && resp.StatusCode != 503 {
		return nil
	}
	body := string(resp.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return &source.ChallengeError{SourceID: s.ID(), StatusCode: resp.StatusCode}
		}
	}
	return nil
}

func expandAvatar(baseURL, template string) string {
	if template == "" {
		return ""
	}
	url := strings.Replace(template, "{size}", "64", 1)
	if strings.HasPrefix(url, "/") {
		return baseURL + url
	}
	return url
}

func roleLabel(moderator, admin bool) string {
	switch {
	case admin:
		return "admin"
	case moderator:
		return "moderator"
	default:
		return ""
	}
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
