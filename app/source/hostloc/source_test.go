package hostloc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"threadhub/app/charset"
	"threadhub/app/httpx"
	"threadhub/app/source"
)

type stubJar struct{ header string }

func (j stubJar) CookieHeader(string) string                 { return j.header }
func (j stubJar) SaveResponseCookies(string, []string) error { return nil }

// writeGBK encodes a UTF-8 fixture the way the live server does.
func writeGBK(w http.ResponseWriter, markup string) {
	w.Write(charset.Encode(markup))
}

func newTestSource(t *testing.T, mux *http.ServeMux, jar stubJar) *Source {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	s := New(httpx.NewClient("test-agent", 5*time.Second, 8), jar)
	s.baseURL = server.URL
	return s
}

func TestCategoriesFromGBKPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		writeGBK(w, `<html><body>
			<a href="forum.php?mod=forumdisplay&fid=45">全球主机交流<span class="num">123456</span></a>
			<a href="forum.php?mod=forumdisplay&fid=60">测评专区<span class="num">789</span></a>
			<a href="forum.php?mod=forumdisplay&fid=45">重复链接</a>
		</body></html>`)
	})

	s := newTestSource(t, mux, stubJar{})
	cats, err := s.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("Expected 2 categories, got: %d", len(cats))
	}
	if cats[0].ID != "45" || cats[0].Name != "全球主机交流" {
		t.Errorf("Unexpected category: %+v", cats[0])
	}
	if cats[0].StatPrimary != 123456 {
		t.Errorf("Expected counter parsed from span, got: %d", cats[0].StatPrimary)
	}
}

func TestItemsMobileTemplate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		writeGBK(w, `<div class="threadlist"><ul>
			<li><a href="forum.php?mod=viewthread&tid=100">甲骨文免费机器<span class="num">33</span></a>
				<span class="by">alice</span><span class="time">3 天前</span></li>
			<li><span>置顶分隔行</span></li>
			<li><a href="forum.php?mod=viewthread&tid=101">测评求推荐<span class="num">5</span></a>
				<span class="by">bob</span></li>
		</ul></div>`)
	})

	s := newTestSource(t, mux, stubJar{})
	items, err := s.Items(context.Background(), "45", 1)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items (separator row skipped), got: %d", len(items))
	}
	if items[0].ID != "100" || items[0].Title != "甲骨文免费机器" {
		t.Errorf("Unexpected item: %+v", items[0])
	}
	if items[0].ReplyCount != 33 || items[0].Author.Name != "alice" {
		t.Errorf("Unexpected metadata: %+v", items[0])
	}
	if items[0].Age != "3 天前" {
		t.Errorf("Expected raw age text kept, got: %q", items[0].Age)
	}
	if items[1].Age != "Recent" {
		t.Errorf("Expected Recent for missing time, got: %q", items[1].Age)
	}
}

func TestItemsDesktopFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		// No mobile threadlist markup at all
		writeGBK(w, `<table>
			<tr><td><a href="forum.php?mod=viewthread&tid=200&extra=page%3D1">主题一</a></td></tr>
			<tr><td><a href="forum.php?mod=viewthread&tid=201">主题二</a></td></tr>
			<tr><td><a href="forum.php?mod=viewthread&tid=200&page=3">3</a></td></tr>
		</table>`)
	})

	s := newTestSource(t, mux, stubJar{})
	items, err := s.Items(context.Background(), "45", 1)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 deduplicated items, got: %d", len(items))
	}
	if items[0].ID != "200" || items[0].Title != "主题一" {
		t.Errorf("Unexpected fallback item: %+v", items[0])
	}
}

func TestDetailFirstPageSplitsBodyFromComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		writeGBK(w, `<h2 class="ts">甲骨文免费机器</h2>
			<div class="postlist"><ul>
			<li><a href="home.php?mod=space&uid=1">alice</a><span class="time">昨天 10:00</span>
				<div class="message"><i class="pstatus">本帖最后由 alice 于 2024-1-1 编辑</i>
				正文内容<div class="sign">我的签名</div></div></li>
			<li><a href="home.php?mod=space&uid=2">bob</a><span class="time">昨天 11:00</span>
				<div class="message">沙发<em class="floor">2楼</em></div></li>
			</ul></div>
			<div class="pg">1 / 3 页</div>`)
	})

	s := newTestSource(t, mux, stubJar{})
	detail, err := s.Detail(context.Background(), "100", 1)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if detail.Item.Title != "甲骨文免费机器" {
		t.Errorf("Unexpected title: %q", detail.Item.Title)
	}
	if detail.Item.Body != "正文内容" {
		t.Errorf("Expected boilerplate stripped from body, got: %q", detail.Item.Body)
	}
	if detail.Item.Author.Name != "alice" {
		t.Errorf("Unexpected author: %+v", detail.Item.Author)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Body != "沙发" {
		t.Fatalf("Expected 1 cleaned comment, got: %+v", detail.Comments)
	}
	if detail.TotalPages != 3 {
		t.Errorf("Expected 3 pages from pager, got: %d", detail.TotalPages)
	}
}

func TestDetailLaterPagesAreAllComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		writeGBK(w, `<div class="postlist"><ul>
			<li><a href="home.php?mod=space&uid=3">carol</a><div class="message">21楼的回复</div></li>
			<li><a href="home.php?mod=space&uid=4">dave</a><div class="message">22楼的回复</div></li>
			</ul></div>`)
	})

	s := newTestSource(t, mux, stubJar{})
	detail, err := s.Detail(context.Background(), "100", 2)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if detail.Item.Body != "" {
		t.Errorf("Expected no body on page 2, got: %q", detail.Item.Body)
	}
	if len(detail.Comments) != 2 {
		t.Fatalf("Expected 2 comments, got: %d", len(detail.Comments))
	}
}

func TestSessionTokensAreReextracted(t *testing.T) {
	var gotSID []string
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		gotSID = append(gotSID, r.URL.Query().Get("sid"))
		writeGBK(w, `<a href="forum.php?mod=forumdisplay&fid=45&sid=Ab3dE6gH">交流区</a>
			<input type="hidden" name="formhash" value="deadbeef" />
			<a href="forum.php?mod=viewthread&tid=1">t</a>`)
	})

	s := newTestSource(t, mux, stubJar{})
	if _, err := s.Items(context.Background(), "45", 1); err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if _, err := s.Items(context.Background(), "45", 2); err != nil {
		t.Fatalf("Items failed: %v", err)
	}

	if gotSID[0] != "" {
		t.Errorf("First request must carry no sid, got: %q", gotSID[0])
	}
	if gotSID[1] != "Ab3dE6gH" {
		t.Errorf("Second request must carry the harvested sid, got: %q", gotSID[1])
	}

	s.mu.Lock()
	formhash := s.formhash
	s.mu.Unlock()
	if formhash != "deadbeef" {
		t.Errorf("Expected formhash harvested, got: %q", formhash)
	}
}

func TestPostReplyRequiresLogin(t *testing.T) {
	s := newTestSource(t, http.NewServeMux(), stubJar{})
	if err := s.PostReply(context.Background(), "100", "45", "hi"); err != source.ErrLoginRequired {
		t.Errorf("Expected ErrLoginRequired, got: %v", err)
	}
}

func TestPostReplyEncodesFormAsGBK(t *testing.T) {
	var gotForm string
	mux := http.NewServeMux()
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			raw, _ := io.ReadAll(r.Body)
			gotForm = string(raw)
			writeGBK(w, `<root>succeed</root>`)
			return
		}
		writeGBK(w, `<input type="hidden" name="formhash" value="cafe1234" />
			<div class="postlist"><ul><li><div class="message">x</div></li></ul></div>`)
	})

	s := newTestSource(t, mux, stubJar{header: "cdb_auth=abc"})
	if err := s.PostReply(context.Background(), "100", "45", "中文回复"); err != nil {
		t.Fatalf("PostReply failed: %v", err)
	}
	if !strings.Contains(gotForm, "formhash=cafe1234") {
		t.Errorf("Expected harvested formhash in form, got: %q", gotForm)
	}
	// 中 is D6D0 in GBK; a UTF-8 encoder would have sent %E4%B8%AD
	if !strings.Contains(gotForm, "%D6%D0") {
		t.Errorf("Expected GBK percent-encoding, got: %q", gotForm)
	}
}

func TestWebURL(t *testing.T) {
	s := New(httpx.NewClient("test-agent", time.Second, 1), stubJar{})
	got := s.WebURL(source.Item{ID: "100"})
	want := fmt.Sprintf("%s/thread-100-1-1.html", defaultBaseURL)
	if got != want {
		t.Errorf("Unexpected web url: %q", got)
	}
}
