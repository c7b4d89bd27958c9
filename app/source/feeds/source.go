// Package feeds adapts user-configured RSS/Atom feeds. Parsing is
// delegated to gofeed; feeds that gofeed rejects outright go through the
// tolerant fallback parser, which salvages whatever items precede the
// malformed region.
//
// Feed backends have no detail endpoint. Every listed item is cached in a
// bounded LRU keyed by item id, and Detail is served exclusively from that
// cache; an id that was never listed is a hard failure.
package feeds

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/gofeed"

	"threadhub/app/content"
	"threadhub/app/feedparse"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const (
	pageSize      = 20
	cacheCapacity = 100
)

type cachedItem struct {
	item source.Item
	link string
}

type Source struct {
	client  *httpx.Client
	configs *source.ConfigCache
	parser  *gofeed.Parser

	cache *lru.Cache[string, cachedItem]
}

func New(client *httpx.Client, configs *source.ConfigCache) *Source {
	cache, _ := lru.New[string, cachedItem](cacheCapacity)
	return &Source{
		client:  client,
		configs: configs,
		parser:  gofeed.NewParser(),
		cache:   cache,
	}
}

func (s *Source) ID() string   { return "feeds" }
func (s *Source) Name() string { return "RSS 订阅" }

func (s *Source) SupportsPosting() bool { return false }
func (s *Source) RequiresLogin() bool   { return false }

// Each configured feed is one category.
func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	cfg := s.configs.GetConfig(s.ID())
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured")
	}

	categories := make([]source.Category, 0, len(cfg.Feeds))
	for i, feed := range cfg.Feeds {
		categories = append(categories, source.Category{
			ID:          feedCategoryID(feed, i),
			Name:        feed.Name,
			Description: feed.URL,
		})
	}
	return categories, nil
}

func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	feed, err := s.findFeed(categoryID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	resp, err := s.client.Get(ctx, s.ID(), feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	items := s.parse(resp.Body, categoryID)

	start := (page - 1) * pageSize
	if start >= len(items) {
		return []source.Item{}, nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	cached, ok := s.cache.Get(itemID)
	if !ok {
		return nil, source.ErrUnknownItem
	}

	item := cached.item
	if s.configs.GetConfig(s.ID()).Settings.ExtractContent && cached.link != "" {
		if extracted := s.extract(ctx, cached.link); extracted != "" {
			item.Body = extracted
		}
	}

	return &source.PagedDetail{
		Item:       item,
		TotalPages: 1,
	}, nil
}

func (s *Source) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	return source.ErrUnsupported
}

func (s *Source) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	return "", source.ErrUnsupported
}

func (s *Source) WebURL(item source.Item) string {
	if cached, ok := s.cache.Get(item.ID); ok {
		return cached.link
	}
	return ""
}

// parse runs gofeed first and the tolerant fallback second. gofeed fails
// the whole document on malformed XML; the fallback keeps every item that
// parsed before the bad region.
func (s *Source) parse(data []byte, categoryID string) []source.Item {
	feed, err := s.parser.ParseString(string(data))
	if err != nil {
		items := feedparse.Parse(data, categoryID)
		for i := range items {
			items[i].ID = itemID(items[i].ID, "")
			s.cache.Add(items[i].ID, cachedItem{item: items[i]})
		}
		return items
	}

	items := make([]source.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item := s.toItem(entry, categoryID)
		if item.ID == "" {
			continue
		}
		s.cache.Add(item.ID, cachedItem{item: item, link: entry.Link})
		items = append(items, item)
	}
	return items
}

func (s *Source) toItem(entry *gofeed.Item, categoryID string) source.Item {
	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	var author string
	if len(entry.Authors) > 0 {
		author = entry.Authors[0].Name
	}

	published := time.Time{}
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	return source.Item{
		ID:         itemID(entry.GUID, entry.Link),
		Title:      strings.TrimSpace(entry.Title),
		Body:       content.Normalize(body),
		Author:     source.Author{Name: author},
		CategoryID: categoryID,
		Age:        source.RelativeAge(published),
		Tags:       entry.Categories,
	}
}

// extract pulls readable article content from the item's web page. Any
// failure falls back to the feed-provided body.
func (s *Source) extract(ctx context.Context, link string) string {
	resp, err := s.client.Get(ctx, s.ID(), link, nil)
	if err != nil || resp.StatusCode != 200 {
		return ""
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(string(resp.Body)), pageURL)
	if err != nil {
		return ""
	}
	return content.Normalize(article.Content)
}

func (s *Source) findFeed(categoryID string) (*source.ConfigFeed, error) {
	cfg := s.configs.GetConfig(s.ID())
	for i, feed := range cfg.Feeds {
		if feedCategoryID(feed, i) == categoryID {
			return &cfg.Feeds[i], nil
		}
	}
	return nil, fmt.Errorf("unknown feed %q", categoryID)
}

// feedCategoryID derives a stable path-safe id from the feed name.
func feedCategoryID(feed source.ConfigFeed, index int) string {
	slug := strings.ToLower(strings.TrimSpace(feed.Name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fmt.Sprintf("feed-%d", index)
	}
	return slug
}

// itemID hashes the guid (or link) into a short path-safe id that stays
// stable across refreshes.
func itemID(guid, link string) string {
	key := guid
	if key == "" {
		key = link
	}
	if key == "" {
		return ""
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}
