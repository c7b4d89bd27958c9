// Package hackernews adapts the Hacker News Firebase API. Listing is
// two-phase: an ordered id list, then a bounded concurrent fan-out of
// per-id fetches. Individual fetch failures drop the item silently rather
// than failing the page.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"threadhub/app/content"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const (
	defaultBaseURL = "https://hacker-news.firebaseio.com/v0"
	webBaseURL     = "https://news.ycombinator.com"

	pageSize       = 25
	maxConcurrent  = 10 // parallel per-id fetches
	maxKidDepth    = 2  // comment tree depth resolved per detail page
	maxKidsPerNode = 10
)

// hnItem is the API's single item shape, shared by stories and comments.
type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Kids        []int  `json:"kids"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

type Source struct {
	client  *httpx.Client
	baseURL string
}

func New(client *httpx.Client) *Source {
	return &Source{
		client:  client,
		baseURL: defaultBaseURL,
	}
}

func (s *Source) ID() string   { return "hackernews" }
func (s *Source) Name() string { return "Hacker News" }

func (s *Source) SupportsPosting() bool { return false }
func (s *Source) RequiresLogin() bool   { return false }

// The category set is static; the API has one endpoint per listing.
func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	return []source.Category{
		{ID: "top", Name: "Top", Description: "Front page stories"},
		{ID: "new", Name: "New", Description: "Latest submissions"},
		{ID: "best", Name: "Best", Description: "Highest voted recent stories"},
		{ID: "ask", Name: "Ask HN", Description: "Questions to the community"},
		{ID: "show", Name: "Show HN", Description: "Projects and launches"},
	}, nil
}

func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	ids, err := s.fetchIDs(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(ids) {
		return []source.Item{}, nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	window := ids[start:end]

	raw := s.fetchParallel(ctx, window)

	items := make([]source.Item, 0, len(raw))
	for _, hn := range raw {
		if hn == nil || hn.Title == "" || hn.Deleted || hn.Dead {
			continue
		}
		items = append(items, s.toItem(hn, categoryID))
	}
	return items, nil
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	hn, err := s.fetchItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	totalPages := (len(hn.Kids) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	var window []int
	if start < len(hn.Kids) {
		end := start + pageSize
		if end > len(hn.Kids) {
			end = len(hn.Kids)
		}
		window = hn.Kids[start:end]
	}

	comments := s.fetchComments(ctx, window, maxKidDepth)

	return &source.PagedDetail{
		Item:       s.toItem(hn, ""),
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
	return fmt.Sprintf("%s/item?id=%s", webBaseURL, item.ID)
}

func (s *Source) fetchIDs(ctx context.Context, categoryID string) ([]int, error) {
	url := fmt.Sprintf("%s/%sstories.json", s.baseURL, categoryID)
	resp, err := s.client.Get(ctx, s.ID(), url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch story ids: %w", err)
	}

	var ids []int
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode story ids: %w", err)
	}
	return ids, nil
}

// fetchParallel resolves a page window of ids concurrently, preserving the
// listing order. Failed ids leave a nil slot that the caller skips.
func (s *Source) fetchParallel(ctx context.Context, ids []int) []*hnItem {
	results := make([]*hnItem, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)

	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			hn, err := s.fetchItem(ctx, fmt.Sprintf("%d", id))
			if err != nil {
				return
			}
			results[i] = hn
		}(i, id)
	}
	wg.Wait()

	return results
}

func (s *Source) fetchItem(ctx context.Context, id string) (*hnItem, error) {
	url := fmt.Sprintf("%s/item/%s.json", s.baseURL, id)
	resp, err := s.client.Get(ctx, s.ID(), url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %s: %w", id, err)
	}

	var hn hnItem
	if err := json.Unmarshal(resp.Body, &hn); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	if hn.ID == 0 {
		return nil, fmt.Errorf("item %s does not exist", id)
	}
	return &hn, nil
}

// fetchComments resolves a window of comment ids concurrently, recursing a
// bounded depth into each comment's children.
func (s *Source) fetchComments(ctx context.Context, ids []int, depth int) []source.Comment {
	if depth == 0 || len(ids) == 0 {
		return nil
	}

	results := make([]*source.Comment, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrent)

	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			hn, err := s.fetchItem(ctx, fmt.Sprintf("%d", id))
			if err != nil || hn.Deleted || hn.Dead {
				return
			}

			kids := hn.Kids
			if len(kids) > maxKidsPerNode {
				kids = kids[:maxKidsPerNode]
			}

			results[i] = &source.Comment{
				ID:      fmt.Sprintf("%d", hn.ID),
				Author:  source.Author{Name: hn.By},
				Body:    content.Normalize(hn.Text),
				Age:     source.RelativeAge(time.Unix(hn.Time, 0)),
				Replies: s.fetchComments(ctx, kids, depth-1),
			}
		}(i, id)
	}
	wg.Wait()

	comments := make([]source.Comment, 0, len(ids))
	for _, c := range results {
		if c != nil {
			comments = append(comments, *c)
		}
	}
	return comments
}

func (s *Source) toItem(hn *hnItem, categoryID string) source.Item {
	return source.Item{
		ID:         fmt.Sprintf("%d", hn.ID),
		Title:      hn.Title,
		Body:       content.Normalize(hn.Text),
		Author:     source.Author{Name: hn.By},
		CategoryID: categoryID,
		Age:        source.RelativeAge(time.Unix(hn.Time, 0)),
		Score:      hn.Score,
		ReplyCount: hn.Descendants,
	}
}
