package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

func TestCacheHandlerListLabels(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/labels", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Labels []labelDTO `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []labelDTO{{Label: "L0", Links: 0}, {Label: "L1", Links: 3}}, body.Labels)
}

func TestCacheHandlerListLinksPaging(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/labels/L1/links?limit=2&offset=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Label string   `json:"label"`
		Total int      `json:"total"`
		Links []string `json:"links"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Equal(t, []string{"https://x/b/thread/2", "https://x/b/thread/3"}, body.Links)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/labels/L1/links?offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Links)
}

func TestCacheHandlerListLinksErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusBadRequest,
		env.do(httptest.NewRequest(http.MethodGet, "/v1/labels/L1/links?limit=-1", nil)).Code)
	require.Equal(t, http.StatusNotFound,
		env.do(httptest.NewRequest(http.MethodGet, "/v1/labels/nope/links", nil)).Code)
}

type brokenCache struct{}

func (brokenCache) ReadLinkCache(context.Context) (alert.LinkCache, error) {
	return nil, errors.New("unreachable")
}

func (brokenCache) WriteLinkCache(context.Context, map[string][]string) error { return nil }

func TestCacheHandlerUnavailable(t *testing.T) {
	t.Parallel()

	h := NewCacheHandler(brokenCache{}, nil)
	rec := httptest.NewRecorder()
	h.ListLabels(rec, httptest.NewRequest(http.MethodGet, "/v1/labels", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
