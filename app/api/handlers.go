package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"threadhub/app/cookies"
	"threadhub/app/database"
	"threadhub/app/digest"
	"threadhub/app/httpx"
	"threadhub/app/source"
	"threadhub/app/tasks"
)

func NewHandler(registry *source.Registry, configCache *source.ConfigCache,
	cache database.CacheStore, creds source.CredentialStore, jar *cookies.StoreJar,
	client *httpx.Client, aggregator *digest.Aggregator,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		registry:    registry,
		configCache: configCache,
		filterer:    source.NewFilterer(),
		cache:       cache,
		creds:       creds,
		jar:         jar,
		client:      client,
		aggregator:  aggregator,
		scheduler:   scheduler,
		startedAt:   time.Now(),
	}
}

func (h *Handler) ListSources(c *gin.Context) {
	adapters := h.registry.All()

	sources := make([]sourceInfo, 0, len(adapters))
	for _, adapter := range adapters {
		loggedIn, err := h.creds.HasCookies(adapter.ID())
		if err != nil {
			slog.Warn("Failed to check login state", "source", adapter.ID(), "error", err)
		}

		sources = append(sources, sourceInfo{
			ID:              adapter.ID(),
			Name:            adapter.Name(),
			Enabled:         h.configCache.GetConfig(adapter.ID()).Settings.Enabled,
			SupportsPosting: adapter.SupportsPosting(),
			RequiresLogin:   adapter.RequiresLogin(),
			LoggedIn:        loggedIn,
		})
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources, "total": len(sources)})
}

func (h *Handler) GetCategories(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}

	key := "categories_" + adapter.ID()
	payload, stale, err := h.throughCache(c, key, categoriesTTL, func() (string, error) {
		categories, err := adapter.Categories(c.Request.Context())
		if err != nil {
			return "", err
		}
		return marshal(categories)
	})
	if err != nil {
		h.fetchError(c, adapter.ID(), err)
		return
	}

	serveJSON(c, payload, stale)
}

func (h *Handler) GetItems(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}
	categoryID := c.Param("cid")
	page := pageParam(c)

	key := fmt.Sprintf("items_%s_%s_%d", adapter.ID(), categoryID, page)
	payload, stale, err := h.throughCache(c, key, itemsTTL, func() (string, error) {
		items, err := adapter.Items(c.Request.Context(), categoryID, page)
		if err != nil {
			return "", err
		}
		items = h.filterer.Run(items, h.configCache.GetConfig(adapter.ID()))
		return marshal(items)
	})
	if err != nil {
		h.fetchError(c, adapter.ID(), err)
		return
	}

	serveJSON(c, payload, stale)
}

func (h *Handler) GetDetail(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}
	itemID := c.Param("iid")
	page := pageParam(c)

	// Only the first page is cached; deeper comment pages are read rarely
	// enough to fetch live.
	if page > 1 {
		detail, err := adapter.Detail(c.Request.Context(), itemID, page)
		if err != nil {
			h.fetchError(c, adapter.ID(), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": detail, "stale": false})
		return
	}

	key := fmt.Sprintf("detail_%s_%s", adapter.ID(), itemID)
	payload, stale, err := h.throughCache(c, key, detailTTL, func() (string, error) {
		detail, err := adapter.Detail(c.Request.Context(), itemID, 1)
		if err != nil {
			return "", err
		}
		return marshal(detail)
	})
	if err != nil {
		h.fetchError(c, adapter.ID(), err)
		return
	}

	serveJSON(c, payload, stale)
}

func (h *Handler) PostReply(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}
	itemID := c.Param("iid")

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing reply text"})
		return
	}

	err := adapter.PostReply(c.Request.Context(), itemID, req.CategoryID, req.Text)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"status": "posted"})
	case err == source.ErrUnsupported:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Source does not support posting"})
	case err == source.ErrLoginRequired:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login required", "kind": "login"})
	case source.IsChallenge(err):
		c.JSON(http.StatusForbidden, gin.H{"error": "Bot challenge encountered", "kind": "challenge"})
	default:
		slog.Error("Reply failed", "source", adapter.ID(), "item", itemID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Reply failed"})
	}
}

// DismissItem hides an item from the source's listings permanently. Cached
// listing pages for the source are purged so the next read reflects it.
func (h *Handler) DismissItem(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}
	itemID := c.Param("iid")

	suppressor, ok := adapter.(source.Suppressor)
	if !ok {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Source does not support dismissing items"})
		return
	}

	if err := suppressor.Suppress(itemID); err != nil {
		slog.Error("Dismiss failed", "source", adapter.ID(), "item", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist dismissal"})
		return
	}

	if err := h.cache.DeleteByPrefix("items_" + adapter.ID() + "_"); err != nil {
		slog.Warn("Failed to purge cached listings", "source", adapter.ID(), "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "dismissed"})
}

// SaveCookies deposits a raw cookie header for a source, replacing whatever
// the jar held before.
func (h *Handler) SaveCookies(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}

	var req cookiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cookies"})
		return
	}

	if err := h.creds.SaveCookies(adapter.ID(), req.Cookies); err != nil {
		slog.Error("Failed to save cookies", "source", adapter.ID(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save cookies"})
		return
	}
	h.jar.Invalidate(adapter.ID())

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *Handler) RemoveCookies(c *gin.Context) {
	adapter, ok := h.lookupSource(c)
	if !ok {
		return
	}

	if err := h.creds.RemoveCookies(adapter.ID()); err != nil {
		slog.Error("Failed to remove cookies", "source", adapter.ID(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove cookies"})
		return
	}
	h.jar.Invalidate(adapter.ID())

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) GetDigest(c *gin.Context) {
	artifact, needsRefresh, err := h.aggregator.Get(c.Request.Context())
	if err != nil {
		slog.Error("Digest generation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Digest unavailable"})
		return
	}

	if needsRefresh {
		if err := h.scheduler.EnqueueTask(tasks.NewRefreshDigestTask(h.aggregator, true)); err != nil {
			slog.Warn("Failed to schedule digest refresh", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": artifact, "stale": needsRefresh})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"sources":   h.registry.Count(),
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()
	if count, err := h.cache.CountEntries(); err == nil {
		health["cache_entries"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	adapters := h.registry.All()

	stats := make([]gin.H, 0, len(adapters))
	for _, adapter := range adapters {
		loggedIn, _ := h.creds.HasCookies(adapter.ID())
		stats = append(stats, gin.H{
			"id":           adapter.ID(),
			"name":         adapter.Name(),
			"enabled":      h.configCache.GetConfig(adapter.ID()).Settings.Enabled,
			"logged_in":    loggedIn,
			"circuit_open": h.client.Breakers().IsOpen(adapter.ID()),
		})
	}

	c.JSON(http.StatusOK, gin.H{"sources": stats})
}

// throughCache implements the serve-stale-then-revalidate read path: a
// fresh cached payload short-circuits, a miss or expired entry goes to the
// network and is written through, and a failed fetch falls back to the
// stale payload when one exists.
func (h *Handler) throughCache(c *gin.Context, key string, ttl time.Duration,
	fetch func() (string, error)) (payload string, stale bool, err error) {
	entry, cacheErr := h.cache.GetEntry(key)
	if cacheErr != nil {
		slog.Warn("Cache read failed", "key", key, "error", cacheErr)
	}

	if entry != nil && time.Since(entry.CreatedAt) <= ttl {
		return entry.Payload, false, nil
	}

	fresh, err := fetch()
	if err == nil {
		if setErr := h.cache.SetEntry(key, fresh); setErr != nil {
			slog.Warn("Cache write failed", "key", key, "error", setErr)
		}
		return fresh, false, nil
	}

	if entry != nil {
		slog.Warn("Serving stale cache after fetch failure", "key", key, "error", err)
		return entry.Payload, true, nil
	}
	return "", false, err
}

// fetchError maps adapter errors to response codes. Challenges carry a
// distinct kind so callers know user action is required.
func (h *Handler) fetchError(c *gin.Context, sourceID string, err error) {
	switch {
	case source.IsChallenge(err):
		c.JSON(http.StatusForbidden, gin.H{"error": "Bot challenge encountered", "kind": "challenge"})
	case err == source.ErrUnknownItem:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case httpx.IsCircuitOpen(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Source temporarily suspended", "kind": "circuit_open"})
	default:
		slog.Error("Upstream fetch failed", "source", sourceID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream fetch failed"})
	}
}

func (h *Handler) lookupSource(c *gin.Context) (source.Adapter, bool) {
	adapter, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown source"})
		return nil, false
	}
	return adapter, true
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func marshal(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(raw), nil
}

// serveJSON writes an already-serialized payload inside the standard
// response envelope.
func serveJSON(c *gin.Context, payload string, stale bool) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.String(http.StatusOK, `{"data":%s,"stale":%t}`, payload, stale)
}
