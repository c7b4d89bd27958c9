// Package nodeseek scrapes the NodeSeek community site. Rows that fail to
// yield an id and a title are skipped individually; a template change
// degrades a page, it never fails it.
package nodeseek

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"threadhub/app/content"
	"threadhub/app/cookies"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const defaultBaseURL = "https://www.nodeseek.com"

var (
	rePostID  = regexp.MustCompile(`/post-(\d+)-`)
	rePageNum = regexp.MustCompile(`page=(\d+)`)
)

type Source struct {
	client  *httpx.Client
	jar     cookies.Jar
	baseURL string
}

func New(client *httpx.Client, jar cookies.Jar) *Source {
	return &Source{
		client:  client,
		jar:     jar,
		baseURL: defaultBaseURL,
	}
}

func (s *Source) ID() string   { return "nodeseek" }
func (s *Source) Name() string { return "NodeSeek" }

func (s *Source) SupportsPosting() bool { return true }
func (s *Source) RequiresLogin() bool   { return true }

// The site's category slugs are fixed; there is no endpoint to enumerate
// them.
func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	return []source.Category{
		{ID: "daily", Name: "日常", Description: "综合讨论"},
		{ID: "tech", Name: "技术", Description: "技术交流"},
		{ID: "info", Name: "情报", Description: "资讯与线报"},
		{ID: "review", Name: "测评", Description: "商家与产品测评"},
		{ID: "trade", Name: "交易", Description: "买卖与转让"},
		{ID: "dev", Name: "Dev", Description: "开发者专区"},
	}, nil
}

func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	if page < 1 {
		page = 1
	}
	url := fmt.Sprintf("%s/categories/%s?page=%d", s.baseURL, categoryID, page)
	doc, err := s.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}

	var items []source.Item
	doc.Find(".post-list .post-list-item").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find(`.post-title a[href*="/post-"]`).First()
		href, _ := link.Attr("href")
		m := rePostID.FindStringSubmatch(href)
		title := strings.TrimSpace(link.Text())
		if m == nil || title == "" {
			return
		}

		items = append(items, source.Item{
			ID:         m[1],
			Title:      title,
			Author:     source.Author{Name: strings.TrimSpace(sel.Find(".post-username a").First().Text())},
			CategoryID: categoryID,
			Age:        textOrRecent(sel.Find(".post-time, time").First()),
			ReplyCount: content.FirstInt(sel.Find(".post-comment-count").Text()),
		})
	})
	return items, nil
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	if page < 1 {
		page = 1
	}
	url := fmt.Sprintf("%s/post-%s-%d", s.baseURL, itemID, page)
	doc, err := s.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}

	detail := &source.PagedDetail{
		Item: source.Item{
			ID:    itemID,
			Title: strings.TrimSpace(doc.Find(".post-title, h1").First().Text()),
			Age:   "Recent",
		},
		TotalPages: maxPageNumber(doc),
	}

	doc.Find(".content-item").Each(func(i int, sel *goquery.Selection) {
		author := strings.TrimSpace(sel.Find(".author-name, .post-username").First().Text())
		age := textOrRecent(sel.Find(".post-time, time").First())

		html, err := sel.Find(".post-content").First().Html()
		if err != nil {
			return
		}
		body := content.Normalize(html)

		if page == 1 && i == 0 {
			detail.Item.Body = body
			detail.Item.Author = source.Author{Name: author}
			detail.Item.Age = age
			return
		}
		detail.Comments = append(detail.Comments, source.Comment{
			ID:     fmt.Sprintf("%s-%d", itemID, i),
			Author: source.Author{Name: author},
			Body:   body,
			Age:    age,
			Score:  content.FirstInt(sel.Find(".like-count").Text()),
		})
	})

	return detail, nil
}

func (s *Source) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	header := s.jar.CookieHeader(s.ID())
	if header == "" {
		return source.ErrLoginRequired
	}

	payload, err := json.Marshal(map[string]string{
		"content": text,
		"postId":  itemID,
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(ctx, s.ID(), s.baseURL+"/api/content/new-comment",
		payload, "application/json", &httpx.Options{Cookies: header})
	if err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if resp.StatusCode != 200 {
		return fmt.Errorf("reply rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Source) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	return "", source.ErrUnsupported
}

func (s *Source) WebURL(item source.Item) string {
	return fmt.Sprintf("%s/post-%s-1", s.baseURL, item.ID)
}

func (s *Source) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := s.client.Get(ctx, s.ID(), url, &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// maxPageNumber scans every pagination anchor for the largest page number.
// No pagination markup at all means a single page; markup with no parseable
// numbers means the total is unknown.
func maxPageNumber(doc *goquery.Document) int {
	pager := doc.Find(".pagination, .pager")
	if pager.Length() == 0 {
		return 1
	}

	max := 0
	pager.Find("a").Each(func(_ int, sel *goquery.Selection) {
		if n := content.FirstInt(sel.Text()); n > max {
			max = n
		}
		if href, ok := sel.Attr("href"); ok {
			if m := rePageNum.FindStringSubmatch(href); m != nil {
				if n := content.FirstInt(m[1]); n > max {
					max = n
				}
			}
		}
	})
	return max
}

func textOrRecent(sel *goquery.Selection) string {
	raw := strings.TrimSpace(sel.Text())
	if raw == "" {
		return "Recent"
	}
	return raw
}
