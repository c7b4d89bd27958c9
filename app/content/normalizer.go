// Package content converts raw HTML fragments from upstream sources into
// plain text with inline [IMAGE:...] and [LINK:...] markers.
package content

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Asset path fragments for decorative images (forum smilies, emoji sprites,
// UI chrome) that are dropped instead of being turned into markers.
var decorativeAssets = []string{
	"static/image/smiley",
	"static/image/common",
	"/smilies/",
	"/emoji/",
	"emoticon",
	"/icons/",
	"spacer.gif",
	"grey.gif",
}

// Href path fragments identifying user profile links. Anchors pointing at a
// profile are rendered as bare text so @mentions stay readable.
var profilePaths = []string{
	"/member/",
	"/u/",
	"/user/",
	"/people/",
	"/space-uid-",
	"home.php?mod=space",
}

var (
	reMentionNewline = regexp.MustCompile(`(@[^\s@<>\[\]]+)\n+`)
	reManyNewlines   = regexp.MustCompile(`\n{3,}`)
	reSpaceRuns      = regexp.MustCompile(`[ \t]{2,}`)
	reNewlinePad     = regexp.MustCompile(` ?\n ?`)
	reNumericEntity  = regexp.MustCompile(`&#(x?[0-9a-fA-F]+);`)
	reFirstInt       = regexp.MustCompile(`\d+`)
)

// Normalize flattens raw markup to plain text. Images become line-isolated
// [IMAGE:src] markers (decorative assets are dropped), anchors become
// [LINK:href|text] markers (profile links and @mentions keep their bare
// text), block elements become paragraph breaks, and entities are decoded.
// Malformed input never fails: whatever text was extracted before the
// tokenizer gave up is cleaned and returned.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(raw))

	var out strings.Builder
	var anchorText strings.Builder
	var anchorHref string
	inAnchor := false
	skipDepth := 0

	appendText := func(s string) {
		if inAnchor {
			anchorText.WriteString(s)
		} else {
			out.WriteString(s)
		}
	}

walk:
	for {
		switch z.Next() {
		case html.ErrorToken:
			// EOF or unrecoverable markup; keep what we have.
			break walk

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			appendText(string(z.Text()))

		case html.StartTagToken, html.SelfClosingTagToken:
			name, attrs := tagNameAndAttrs(z)
			if skipDepth > 0 {
				if isSkipContainer(name) {
					skipDepth++
				}
				continue
			}
			switch name {
			case "script", "style", "head":
				skipDepth++
			case "meta", "link":
				// void elements, nothing to skip past
			case "img":
				src := attrs["src"]
				if src == "" {
					src = attrs["data-src"]
				}
				if src != "" && !isDecorative(src) {
					appendText("\n[IMAGE:" + src + "]\n")
				}
			case "br", "p", "div", "li":
				appendText("\n\n")
			case "a":
				inAnchor = true
				anchorHref = strings.TrimSpace(attrs["href"])
				anchorText.Reset()
			}

		case html.EndTagToken:
			name, _ := tagNameAndAttrs(z)
			switch name {
			case "script", "style", "head":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "div", "li":
				if skipDepth == 0 {
					appendText("\n\n")
				}
			case "a":
				if inAnchor {
					inAnchor = false
					out.WriteString(renderAnchor(anchorHref, anchorText.String()))
				}
			}
		}
	}

	// Unclosed anchor at EOF: keep its text rather than losing it.
	if inAnchor {
		out.WriteString(renderAnchor(anchorHref, anchorText.String()))
	}

	return cleanup(out.String())
}

func tagNameAndAttrs(z *html.Tokenizer) (string, map[string]string) {
	name, hasAttr := z.TagName()
	var attrs map[string]string
	if hasAttr {
		attrs = make(map[string]string, 4)
		for {
			key, val, more := z.TagAttr()
			attrs[string(key)] = string(val)
			if !more {
				break
			}
		}
	}
	return string(name), attrs
}

func isSkipContainer(name string) bool {
	return name == "script" || name == "style" || name == "head"
}

func isDecorative(src string) bool {
	lower := strings.ToLower(src)
	for _, fragment := range decorativeAssets {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func renderAnchor(href, text string) string {
	text = strings.TrimSpace(collapseSpace(text))

	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") {
		return text
	}

	if strings.HasPrefix(text, "@") || isProfileLink(lower) {
		return text
	}

	if text == "" {
		text = href
	}
	return "[LINK:" + href + "|" + text + "]"
}

func isProfileLink(href string) bool {
	for _, fragment := range profilePaths {
		if strings.Contains(href, fragment) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanup(s string) string {
	s = DecodeEntities(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	// Keep @mentions on the same line as the reply text they prefix.
	s = reMentionNewline.ReplaceAllString(s, "$1 ")
	s = reSpaceRuns.ReplaceAllString(s, " ")
	s = reNewlinePad.ReplaceAllString(s, "\n")
	s = reManyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// DecodeEntities resolves numeric, hex and the common named HTML entities.
// Zero-width characters are removed outright. Used on its own by the
// raw-pattern parsing fallbacks that never go through the tokenizer.
func DecodeEntities(s string) string {
	s = reNumericEntity.ReplaceAllStringFunc(s, func(m string) string {
		body := m[2 : len(m)-1]
		base := 10
		if body[0] == 'x' || body[0] == 'X' {
			body = body[1:]
			base = 16
		}
		n, err := strconv.ParseInt(body, base, 32)
		if err != nil {
			return m
		}
		switch n {
		case 0x200b, 0x200c, 0x200d, 0xfeff:
			return ""
		}
		return string(rune(n))
	})

	replacer := strings.NewReplacer(
		"&quot;", `"`,
		"&apos;", "'",
		"&lt;", "<",
		"&gt;", ">",
		"&nbsp;", " ",
		"&amp;", "&",
	)
	s = replacer.Replace(s)

	return strings.Map(func(r rune) rune {
		switch r {
		case 0x200b, 0x200c, 0x200d, 0xfeff:
			return -1
		}
		return r
	}, s)
}

// FirstInt extracts the first integer found in a text fragment. Engagement
// counters on scraped pages live in arbitrary sibling elements; every
// adapter goes through this single helper so a template change only needs
// one fix.
func FirstInt(s string) int {
	m := reFirstInt.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
