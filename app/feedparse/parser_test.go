package feedparse

import (
	"testing"
)

func TestParseMinimalRSSItem(t *testing.T) {
	data := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>First Post</title>
      <link>https://example.com/post1</link>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	items := Parse([]byte(data), "feed-1")
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}
	if items[0].ID != "https://example.com/post1" {
		t.Errorf("Expected id to equal the link, got: %q", items[0].ID)
	}
	if items[0].Title != "First Post" {
		t.Errorf("Unexpected title: %q", items[0].Title)
	}
	if items[0].Age == "" {
		t.Error("Expected non-empty age string")
	}
	if items[0].CategoryID != "feed-1" {
		t.Errorf("Unexpected category: %q", items[0].CategoryID)
	}
}

func TestParseDropsItemWithoutIdentity(t *testing.T) {
	data := `<rss version="2.0"><channel>
    <item><title>No identity</title></item>
    <item><title>Good</title><guid>g-1</guid></item>
  </channel></rss>`

	items := Parse([]byte(data), "f")
	if len(items) != 1 {
		t.Fatalf("Expected identity-less item dropped, got %d items", len(items))
	}
	if items[0].ID != "g-1" {
		t.Errorf("Expected guid fallback id, got: %q", items[0].ID)
	}
}

func TestParseAtomEntry(t *testing.T) {
	data := `<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Feed Title</title>
  <entry>
    <title>Atom Post</title>
    <link rel="alternate" href="https://example.com/atom1"/>
    <id>tag:example.com,2023:1</id>
    <published>2023-07-03T10:00:00Z</published>
    <author><name>alice</name></author>
    <summary>short text</summary>
    <content type="html">&lt;p&gt;full &lt;b&gt;content&lt;/b&gt;&lt;/p&gt;</content>
  </entry>
</feed>`

	items := Parse([]byte(data), "f")
	if len(items) != 1 {
		t.Fatalf("Expected 1 entry, got: %d", len(items))
	}
	item := items[0]
	if item.ID != "https://example.com/atom1" {
		t.Errorf("Expected href link as id, got: %q", item.ID)
	}
	if item.Author.Name != "alice" {
		t.Errorf("Expected atom author name, got: %q", item.Author.Name)
	}
	// Full content beats the summary, and markup is normalized away
	if item.Body != "full content" {
		t.Errorf("Expected normalized full content, got: %q", item.Body)
	}
}

func TestParseTitleNotTakenFromAuthor(t *testing.T) {
	data := `<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <author><name>bob</name><title>Dr.</title></author>
    <title>Real Title</title>
    <id>e-1</id>
  </entry>
</feed>`

	items := Parse([]byte(data), "f")
	if len(items) != 1 {
		t.Fatalf("Expected 1 entry, got: %d", len(items))
	}
	if items[0].Title != "Real Title" {
		t.Errorf("Title leaked from author element: %q", items[0].Title)
	}
}

func TestParseSurvivesMidDocumentDamage(t *testing.T) {
	data := `<rss version="2.0"><channel>
    <item><title>Complete</title><link>https://example.com/1</link></item>
    <item><title>Broken &</bad<<`

	items := Parse([]byte(data), "f")
	if len(items) != 1 {
		t.Fatalf("Expected the completed item to survive, got: %d", len(items))
	}
	if items[0].Title != "Complete" {
		t.Errorf("Unexpected surviving item: %+v", items[0])
	}
}

func TestParseUnparseableDateBecomesRecent(t *testing.T) {
	data := `<rss version="2.0"><channel>
    <item><title>T</title><link>https://example.com/x</link><pubDate>whenever</pubDate></item>
  </channel></rss>`

	items := Parse([]byte(data), "f")
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}
	if items[0].Age != "Recent" {
		t.Errorf("Expected 'Recent' placeholder, got: %q", items[0].Age)
	}
}

func TestParseDateLayouts(t *testing.T) {
	for _, raw := range []string{
		"Mon, 03 Jul 2023 10:00:00 GMT",
		"Mon, 3 Jul 2023 10:00:00 +0200",
		"2023-07-03T10:00:00Z",
		"2023-07-03",
	} {
		if ParseDate(raw).IsZero() {
			t.Errorf("Expected %q to parse", raw)
		}
	}
	if !ParseDate("not a date").IsZero() {
		t.Error("Expected zero time for garbage input")
	}
}

func TestParseEmptyAndGarbageInput(t *testing.T) {
	for _, data := range []string{"", "not xml at all", "<rss><channel>"} {
		items := Parse([]byte(data), "f")
		if len(items) != 0 {
			t.Errorf("Expected no items for %q, got: %d", data, len(items))
		}
	}
}
