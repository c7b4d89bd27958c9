package content

import (
	"strings"
	"testing"
)

func TestNormalizeBasicMarkup(t *testing.T) {
	result := Normalize("<p>Hello <b>World</b>!</p>")
	if result != "Hello World!" {
		t.Errorf("Expected 'Hello World!', got: %q", result)
	}
}

func TestNormalizeLinkMarker(t *testing.T) {
	result := Normalize(`<a href="http://x.com">Link</a>`)
	if result != "[LINK:http://x.com|Link]" {
		t.Errorf("Expected link marker, got: %q", result)
	}
}

func TestNormalizeMentionLink(t *testing.T) {
	result := Normalize(`<a href="/member/u">@user</a>`)
	if result != "@user" {
		t.Errorf("Expected bare mention, got: %q", result)
	}

	// Profile path alone is enough even without the @ prefix
	result = Normalize(`<a href="/space-uid-12345.html">someone</a>`)
	if result != "someone" {
		t.Errorf("Expected bare profile link text, got: %q", result)
	}
}

func TestNormalizeFragmentAndScriptHrefs(t *testing.T) {
	result := Normalize(`see <a href="#top">this</a> and <a href="javascript:void(0)">that</a>`)
	if result != "see this and that" {
		t.Errorf("Expected plain text for dead anchors, got: %q", result)
	}
}

func TestNormalizeImageMarker(t *testing.T) {
	result := Normalize(`before<img src="https://cdn.example.com/photo.jpg">after`)
	expected := "before\n[IMAGE:https://cdn.example.com/photo.jpg]\nafter"
	if result != expected {
		t.Errorf("Expected %q, got: %q", expected, result)
	}
}

func TestNormalizeDropsDecorativeImages(t *testing.T) {
	result := Normalize(`ok<img src="/static/image/smiley/default/titter.gif">fine`)
	if strings.Contains(result, "IMAGE") {
		t.Errorf("Decorative image should be dropped, got: %q", result)
	}
}

func TestNormalizeStripsScriptAndStyle(t *testing.T) {
	raw := `<style>.a{color:red}</style><p>Text</p><script>alert("x")</script>`
	result := Normalize(raw)
	if result != "Text" {
		t.Errorf("Expected 'Text', got: %q", result)
	}
}

func TestNormalizeBlockStructure(t *testing.T) {
	result := Normalize("<div>one</div><div>two</div>")
	if result != "one\n\ntwo" {
		t.Errorf("Expected paragraph break between divs, got: %q", result)
	}
}

func TestNormalizeEntities(t *testing.T) {
	result := Normalize("a &amp; b &#39;c&#39; &#x41;")
	if result != "a & b 'c' A" {
		t.Errorf("Expected decoded entities, got: %q", result)
	}
}

func TestNormalizeMentionStaysInline(t *testing.T) {
	result := Normalize(`<a href="/member/bob">@bob</a><br>thanks for the tip`)
	if result != "@bob thanks for the tip" {
		t.Errorf("Expected mention joined with reply, got: %q", result)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	result := Normalize("<p>a</p><p></p><p></p><p>b</p>")
	if result != "a\n\nb" {
		t.Errorf("Expected at most two newlines, got: %q", result)
	}
}

func TestNormalizeNeverPanicsOrLeaksTags(t *testing.T) {
	inputs := []string{
		"",
		"<",
		"<div",
		"<div><a href=",
		"<p>unclosed",
		"<a href='x'>dangling anchor",
		"<<<><><script>",
		strings.Repeat("<div>", 500),
		"plain text, no markup",
		"<img><img src=''>",
	}
	for _, in := range inputs {
		result := Normalize(in)
		if strings.Contains(result, "<div") || strings.Contains(result, "<p>") {
			t.Errorf("Tag leaked through for input %q: %q", in, result)
		}
	}
}

func TestNormalizeUnclosedAnchorKeepsText(t *testing.T) {
	result := Normalize("<a href='http://x.com'>dangling")
	if !strings.Contains(result, "dangling") {
		t.Errorf("Expected anchor text preserved, got: %q", result)
	}
}

func TestDecodeEntities(t *testing.T) {
	result := DecodeEntities("&quot;hi&quot;&nbsp;&#8203;there")
	if result != `"hi" there` {
		t.Errorf("Expected zero-width removed and nbsp as space, got: %q", result)
	}
}

func TestFirstInt(t *testing.T) {
	cases := map[string]int{
		"42 replies":   42,
		"replies: 7":   7,
		"no numbers":   0,
		"":             0,
		"3.5k, then 9": 3,
	}
	for in, want := range cases {
		if got := FirstInt(in); got != want {
			t.Errorf("FirstInt(%q) = %d, want %d", in, got, want)
		}
	}
}
