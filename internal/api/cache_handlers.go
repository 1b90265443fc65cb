package api

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

const (
	defaultLinkLimit = 100
	maxLinkLimit     = 1000
	cacheTimeout     = 3 * time.Second
)

// CacheHandler exposes read-only views of the delivered-link cache.
type CacheHandler struct {
	store   alert.LinkCacheStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewCacheHandler wires the store and logger.
func NewCacheHandler(store alert.LinkCacheStore, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{store: store, timeout: cacheTimeout, logger: logger}
}

// ListLabels handles GET /v1/labels. It returns {"labels": [{"label", "links"}]}
// sorted by label, or 503 when the cache cannot be read.
func (h *CacheHandler) ListLabels(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.read(w, r)
	if !ok {
		return
	}
	out := make([]labelDTO, 0, len(cache))
	for _, label := range slices.Sorted(maps.Keys(cache)) {
		out = append(out, labelDTO{Label: label, Links: len(cache[label])})
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": out})
}

// ListLinks handles GET /v1/labels/{label}/links?limit=&offset=. It returns
// {"label", "total", "links"} on success, 400 for invalid paging, 404 for an
// unknown label, or 503 when the cache cannot be read.
func (h *CacheHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	limit, offset, err := parseLimitOffset(r, defaultLinkLimit, maxLinkLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cache, ok := h.read(w, r)
	if !ok {
		return
	}
	links, found := cache[label]
	if !found {
		writeError(w, http.StatusNotFound, "label not found")
		return
	}
	total := len(links)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"label": label,
		"total": total,
		"links": append([]string{}, links[start:end]...),
	})
}

func (h *CacheHandler) read(w http.ResponseWriter, r *http.Request) (alert.LinkCache, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	cache, err := h.store.ReadLinkCache(ctx)
	if err != nil {
		h.logger.Error("read link cache failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "link cache unavailable")
		return nil, false
	}
	return cache, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type labelDTO struct {
	Label string `json:"label"`
	Links int    `json:"links"`
}
