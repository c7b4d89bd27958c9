package api

import (
	"time"

	"threadhub/app/cookies"
	"threadhub/app/database"
	"threadhub/app/digest"
	"threadhub/app/httpx"
	"threadhub/app/source"
	"threadhub/app/tasks"
)

// Listing pages younger than their TTL are served straight from cache;
// older pages revalidate against the network and fall back to the stale
// copy when the network fails.
const (
	categoriesTTL = 30 * time.Minute
	itemsTTL      = 10 * time.Minute
	detailTTL     = 10 * time.Minute
)

type Handler struct {
	registry    *source.Registry
	configCache *source.ConfigCache
	filterer    *source.Filterer
	cache       database.CacheStore
	creds       source.CredentialStore
	jar         *cookies.StoreJar
	client      *httpx.Client
	aggregator  *digest.Aggregator
	scheduler   tasks.TaskSchedulerInterface
	startedAt   time.Time
}

type sourceInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Enabled         bool   `json:"enabled"`
	SupportsPosting bool   `json:"supports_posting"`
	RequiresLogin   bool   `json:"requires_login"`
	LoggedIn        bool   `json:"logged_in"`
}

type replyRequest struct {
	CategoryID string `json:"category_id"`
	Text       string `json:"text" binding:"required"`
}

type cookiesRequest struct {
	Cookies string `json:"cookies" binding:"required"`
}
