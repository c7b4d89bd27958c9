// Package feedparse is a tolerant single-pass RSS 2.0 / Atom parser. It
// exists next to gofeed for one reason: gofeed aborts the whole document on
// malformed XML, while feeds in the wild frequently break halfway. This
// parser walks the token stream and returns every item that closed cleanly
// before the damage.
package feedparse

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"threadhub/app/content"
	"threadhub/app/source"
)

type scratch struct {
	title       string
	link        string
	guid        string
	description string
	fullContent string
	author      string
	dateRaw     string
}

// Parse extracts items from feed XML. Minor malformations never abort the
// document: whatever items were fully closed before a token error are
// returned. Items without a usable link or guid are dropped because no
// stable id can be built for them.
func Parse(data []byte, categoryID string) []source.Item {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.CharsetReader = charset.NewReaderLabel

	var items []source.Item
	var cur scratch
	var text strings.Builder

	inItem := false
	inAuthor := false
	capture := "" // element currently accumulating character data

	for {
		tok, err := decoder.Token()
		if err != nil {
			// EOF or broken markup; either way keep what we have.
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)

			if name == "item" || name == "entry" {
				inItem = true
				inAuthor = false
				cur = scratch{}
				continue
			}
			if !inItem {
				continue
			}

			switch name {
			case "author":
				inAuthor = true
			case "title":
				// The author's own <title> sub-element is not the item title
				if !inAuthor && cur.title == "" {
					capture = "title"
					text.Reset()
				}
			case "link":
				// Atom carries the link in an href attribute; RSS in text
				if href := attr(t, "href"); href != "" {
					rel := attr(t, "rel")
					if cur.link == "" && (rel == "" || rel == "alternate") {
						cur.link = href
					}
				} else {
					capture = "link"
					text.Reset()
				}
			case "guid", "id":
				capture = "guid"
				text.Reset()
			case "description", "summary":
				capture = "description"
				text.Reset()
			case "encoded", "content":
				capture = "content"
				text.Reset()
			case "pubdate", "published", "updated":
				if cur.dateRaw == "" {
					capture = "date"
					text.Reset()
				}
			case "creator":
				capture = "author"
				text.Reset()
			case "name":
				if inAuthor {
					capture = "author"
					text.Reset()
				}
			}

		case xml.CharData:
			if capture != "" {
				text.Write(t)
			}

		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)

			if name == "item" || name == "entry" {
				if item, ok := finalize(cur, categoryID); ok {
					items = append(items, item)
				}
				inItem = false
				capture = ""
				continue
			}
			if !inItem {
				continue
			}
			if name == "author" {
				inAuthor = false
			}

			if capture == "" {
				continue
			}
			value := strings.TrimSpace(text.String())
			switch capture {
			case "title":
				cur.title = value
			case "link":
				if cur.link == "" {
					cur.link = value
				}
			case "guid":
				if cur.guid == "" {
					cur.guid = value
				}
			case "description":
				if cur.description == "" {
					cur.description = value
				}
			case "content":
				if cur.fullContent == "" {
					cur.fullContent = value
				}
			case "date":
				if cur.dateRaw == "" {
					cur.dateRaw = value
				}
			case "author":
				cur.author = value
			}
			capture = ""
		}
	}

	return items
}

func finalize(cur scratch, categoryID string) (source.Item, bool) {
	id := cur.link
	if id == "" {
		id = cur.guid
	}
	if strings.TrimSpace(id) == "" {
		return source.Item{}, false
	}

	// Full content wins over the summary when both are present
	body := cur.fullContent
	if body == "" {
		body = cur.description
	}

	return source.Item{
		ID:         id,
		Title:      cur.title,
		Body:       content.Normalize(body),
		Author:     source.Author{Name: cur.author},
		CategoryID: categoryID,
		Age:        source.RelativeAge(ParseDate(cur.dateRaw)),
	}, true
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate tries the date formats seen across real feeds. Returns the zero
// time when nothing matches; callers render that as the "Recent"
// placeholder.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
