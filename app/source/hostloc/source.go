// Package hostloc adapts a Discuz forum whose server speaks GBK end to end.
// Every response runs through the charset bridge, and every outbound query
// parameter is built with the GBK form encoder or the server garbles it.
//
// Discuz hands out a short-lived sid and an anti-forgery formhash embedded
// in page markup. Neither survives reliably across requests, so both are
// re-extracted opportunistically from every page fetched.
package hostloc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"threadhub/app/charset"
	"threadhub/app/cookies"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

const defaultBaseURL = "https://hostloc.com"

var (
	reSID      = regexp.MustCompile(`[?&]sid=([a-zA-Z0-9]{8,12})`)
	reFormhash = regexp.MustCompile(`formhash=([a-f0-9]{8})`)
)

type Source struct {
	client  *httpx.Client
	jar     cookies.Jar
	baseURL string

	mu       sync.Mutex
	sid      string
	formhash string
}

func New(client *httpx.Client, jar cookies.Jar) *Source {
	return &Source{
		client:  client,
		jar:     jar,
		baseURL: defaultBaseURL,
	}
}

func (s *Source) ID() string   { return "hostloc" }
func (s *Source) Name() string { return "全球主机交流" }

func (s *Source) SupportsPosting() bool { return true }
func (s *Source) RequiresLogin() bool   { return true }

func (s *Source) Categories(ctx context.Context) ([]source.Category, error) {
	page, err := s.fetch(ctx, "/forum.php?mobile=2")
	if err != nil {
		return nil, err
	}
	categories := parseCategories(page)
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories parsed; template may have changed")
	}
	return categories, nil
}

func (s *Source) Items(ctx context.Context, categoryID string, page int) ([]source.Item, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/forum.php?mod=forumdisplay&fid=%s&page=%d&mobile=2", categoryID, page)
	markup, err := s.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	items := parseThreadList(markup, categoryID)
	if len(items) == 0 {
		// The mobile template yielded nothing; fall back to tolerant
		// pattern search over the raw markup (desktop template).
		items = parseThreadListFallback(markup, categoryID)
	}
	return items, nil
}

func (s *Source) Detail(ctx context.Context, itemID string, page int) (*source.PagedDetail, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/forum.php?mod=viewthread&tid=%s&page=%d&mobile=2", itemID, page)
	markup, err := s.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	// The original post only renders on page 1. Later pages are replies
	// top to bottom.
	return parseThread(markup, itemID, page == 1)
}

func (s *Source) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	header := s.jar.CookieHeader(s.ID())
	if header == "" {
		return source.ErrLoginRequired
	}

	s.mu.Lock()
	formhash := s.formhash
	s.mu.Unlock()
	if formhash == "" {
		// The freshest formhash comes from the thread page itself
		if _, err := s.Detail(ctx, itemID, 1); err != nil {
			return err
		}
		s.mu.Lock()
		formhash = s.formhash
		s.mu.Unlock()
		if formhash == "" {
			return fmt.Errorf("no formhash available; fetch a page first")
		}
	}

	// The server expects the message percent-encoded in GBK, not UTF-8
	form := fmt.Sprintf("message=%s&formhash=%s&usesig=1&subject=",
		charset.EncodeFormValue(text), formhash)

	path := fmt.Sprintf("%s/forum.php?mod=post&action=reply&fid=%s&tid=%s&extsubmit=yes&replysubmit=yes&mobile=2",
		s.baseURL, categoryID, itemID)

	resp, err := s.client.Post(ctx, s.ID(), s.withSID(path), []byte(form),
		"application/x-www-form-urlencoded", &httpx.Options{Cookies: header})
	if err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)

	body := charset.Decode(resp.Body)
	s.extractSession(body)
	if strings.Contains(body, "succeed") || strings.Contains(body, "回复发布成功") {
		return nil
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("reply rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (s *Source) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	return "", source.ErrUnsupported
}

func (s *Source) WebURL(item source.Item) string {
	return fmt.Sprintf("%s/thread-%s-1-1.html", s.baseURL, item.ID)
}

// fetch retrieves a path, decodes it from GBK and harvests session tokens
// from the markup before returning it.
func (s *Source) fetch(ctx context.Context, path string) (string, error) {
	url := s.withSID(s.baseURL + path)

	resp, err := s.client.Get(ctx, s.ID(), url, &httpx.Options{
		Cookies: s.jar.CookieHeader(s.ID()),
	})
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	cookies.Absorb(s.jar, s.ID(), resp.Header)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	markup := charset.Decode(resp.Body)
	s.extractSession(markup)
	return markup, nil
}

// withSID appends the current session id when one is known.
func (s *Source) withSID(url string) string {
	s.mu.Lock()
	sid := s.sid
	s.mu.Unlock()

	if sid == "" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "sid=" + sid
}

// extractSession pulls sid and formhash out of raw markup. Tokens are never
// assumed fresh across requests; whatever the latest page carries wins.
func (s *Source) extractSession(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := reSID.FindStringSubmatch(markup); m != nil {
		s.sid = m[1]
	}
	if m := reFormhash.FindStringSubmatch(markup); m != nil {
		s.formhash = m[1]
	}
}
