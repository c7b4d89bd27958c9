// Package source defines the normalized content model and the uniform
// adapter contract every external discussion platform implements.
package source

import (
	"context"
)

// Author is embedded in items and comments, never stored on its own.
type Author struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"` // moderator/admin label when the source exposes one
}

// Item is one unit of discussion content: a post, story, topic or question.
// The ID is source-scoped and must round-trip into the same source's Detail
// call. Body is already normalized plain text with inline markers.
type Item struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Body       string   `json:"body,omitempty"`
	Author     Author   `json:"author"`
	CategoryID string   `json:"category_id,omitempty"`
	Age        string   `json:"age"`
	Score      int      `json:"score"`
	ReplyCount int      `json:"reply_count"`
	Liked      bool     `json:"liked,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Comment belongs to an item. Replies recurse for threaded sources, but
// pagination is flattened per page.
type Comment struct {
	ID      string    `json:"id"`
	Author  Author    `json:"author"`
	Body    string    `json:"body"`
	Age     string    `json:"age"`
	Score   int       `json:"score"`
	Replies []Comment `json:"replies,omitempty"`
}

// Category is a forum section, node or feed. The two counters carry
// source-defined meaning (active-today/online-now on one forum,
// topics/posts on another).
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	StatPrimary   int    `json:"stat_primary"`
	StatSecondary int    `json:"stat_secondary"`
}

// PagedDetail is the result of a detail fetch: the item, one page of its
// comments, and the total page count when the source exposes it.
// TotalPages is 0 when unknown; callers then stop on the first empty page.
type PagedDetail struct {
	Item       Item      `json:"item"`
	Comments   []Comment `json:"comments"`
	TotalPages int       `json:"total_pages,omitempty"`
}

// Adapter is the uniform per-source contract. Page numbers are 1-indexed.
// Implementations own their session state (tokens, suppression sets, raw
// entry caches) exclusively; page-to-page fetches on one instance must be
// serialized by the caller.
type Adapter interface {
	ID() string
	Name() string

	Categories(ctx context.Context) ([]Category, error)
	Items(ctx context.Context, categoryID string, page int) ([]Item, error)
	Detail(ctx context.Context, itemID string, page int) (*PagedDetail, error)

	// PostReply and CreateItem return ErrUnsupported on read-only sources,
	// decided from the capability flags before any network traffic.
	PostReply(ctx context.Context, itemID, categoryID, text string) error
	CreateItem(ctx context.Context, categoryID, title, body string) (string, error)

	WebURL(item Item) string
	SupportsPosting() bool
	RequiresLogin() bool
}

// Suppressor is implemented by adapters whose listings can hide individual
// items on request. The set persists across restarts.
type Suppressor interface {
	Suppress(itemID string) error
}

// CredentialStore is the external cookie/session store. The interactive
// login flow deposits a raw cookie header string per source; adapters only
// read it back, except where an API response itself rotates cookies.
type CredentialStore interface {
	GetCookies(sourceID string) (string, error)
	SaveCookies(sourceID, cookies string) error
	HasCookies(sourceID string) (bool, error)
	RemoveCookies(sourceID string) error
}

// PrefStore is the external preference store used for small persisted
// per-source state such as the suppression set.
type PrefStore interface {
	GetPref(key string) (string, error)
	SetPref(key, value string) error
}
