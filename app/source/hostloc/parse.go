package hostloc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"threadhub/app/content"
	"threadhub/app/source"
)

var (
	reForumID  = regexp.MustCompile(`fid=(\d+)`)
	reThreadID = regexp.MustCompile(`tid=(\d+)`)

	// Desktop template thread links, used only when the mobile template
	// yields nothing.
	reDesktopThread = regexp.MustCompile(`<a href="forum\.php\?mod=viewthread&(?:amp;)?tid=(\d+)[^"]*"[^>]*>([^<]+)</a>`)
)

func parseCategories(markup string) []source.Category {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var categories []source.Category

	doc.Find(`a[href*="forumdisplay"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := reForumID.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}

		// The trailing counter span is part of the link text; take the
		// name from the first text node only.
		name := strings.TrimSpace(sel.Contents().First().Text())
		if name == "" {
			name = strings.TrimSpace(sel.Text())
		}
		if name == "" {
			return
		}

		seen[m[1]] = true
		categories = append(categories, source.Category{
			ID:          m[1],
			Name:        name,
			StatPrimary: content.FirstInt(sel.Find("span.num").Text()),
		})
	})
	return categories
}

func parseThreadList(markup, categoryID string) []source.Item {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var items []source.Item
	doc.Find(".threadlist li, ul.list li").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find(`a[href*="viewthread"]`).First()
		href, _ := link.Attr("href")
		m := reThreadID.FindStringSubmatch(href)
		if m == nil {
			// Sticky separators and ad rows carry no thread link
			return
		}

		title := strings.TrimSpace(link.Contents().First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		if title == "" {
			return
		}

		items = append(items, source.Item{
			ID:         m[1],
			Title:      title,
			Author:     source.Author{Name: strings.TrimSpace(sel.Find(".by, .author").First().Text())},
			CategoryID: categoryID,
			Age:        ageOrRecent(sel.Find(".time, .dateline").First().Text()),
			ReplyCount: content.FirstInt(sel.Find("span.num").Text()),
		})
	})
	return items
}

// parseThreadListFallback scans raw markup for desktop-template thread links.
// Order of first appearance is kept; duplicate tids (last-post links, page
// jumps) collapse into the first hit.
func parseThreadListFallback(markup, categoryID string) []source.Item {
	seen := map[string]bool{}
	var items []source.Item

	for _, m := range reDesktopThread.FindAllStringSubmatch(markup, -1) {
		tid, title := m[1], strings.TrimSpace(m[2])
		if seen[tid] || title == "" {
			continue
		}
		seen[tid] = true
		items = append(items, source.Item{
			ID:         tid,
			Title:      content.DecodeEntities(title),
			CategoryID: categoryID,
			Age:        "Recent",
		})
	}
	return items
}

func parseThread(markup, itemID string, firstPage bool) (*source.PagedDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse thread page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("#thread_subject, .threadtitle h1, h2.ts").First().Text())

	detail := &source.PagedDetail{
		Item: source.Item{
			ID:    itemID,
			Title: title,
			Age:   "Recent",
		},
		TotalPages: parseTotalPages(doc),
	}

	posts := doc.Find(".postlist li, div.plc")
	if posts.Length() == 0 {
		return nil, fmt.Errorf("no posts parsed; template may have changed")
	}

	posts.Each(func(i int, sel *goquery.Selection) {
		author := strings.TrimSpace(sel.Find(`a[href*="uid"]`).First().Text())
		age := ageOrRecent(sel.Find(".time, em.time, .grey").First().Text())

		html, err := sel.Find(".message").First().Html()
		if err != nil {
			return
		}
		body := content.Normalize(cleanDiscuz(html))

		if firstPage && i == 0 {
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
		})
	})

	return detail, nil
}

var rePageOf = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*页`)

func parseTotalPages(doc *goquery.Document) int {
	pg := doc.Find(".pg, .pgs").First().Text()
	if m := rePageOf.FindStringSubmatch(pg); m != nil {
		return content.FirstInt(m[2])
	}
	// Single-page threads render no pager at all
	if strings.TrimSpace(pg) == "" {
		return 1
	}
	return 0
}

func ageOrRecent(raw string) string {
	raw = strings.TrimSpace(content.DecodeEntities(raw))
	if raw == "" {
		return "Recent"
	}
	return raw
}
