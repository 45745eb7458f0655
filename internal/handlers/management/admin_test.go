package management

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"neuromail-go/internal/config"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/settings"
	"neuromail-go/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type stubProber struct{ valid map[string]bool }

func (p stubProber) Probe(_ context.Context, key string) (bool, error) {
	return p.valid[key], nil
}

type fixture struct {
	router *gin.Engine
	pool   *credential.Pool
	mgr    *settings.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewFileBackend(t.TempDir())
	require.NoError(t, store.Initialize(context.Background()))
	mgr, err := settings.NewManager(context.Background(), store, settings.Options{
		Prober: stubProber{valid: map[string]bool{"good-personal-key": true}},
	})
	require.NoError(t, err)

	pool := credential.NewPool([]string{"pool-key-aaaa-0001", "pool-key-bbbb-0002"}, credential.PoolOptions{})
	cfg := config.Default()
	cfg.Upstream.PublicKeys = []string{"pool-key-aaaa-0001", "pool-key-bbbb-0002"}
	cfg.Security.ManagementKey = "admin-secret"
	cfg.Storage.RedisPassword = "hunter2"

	h := NewAdminAPIHandler(pool, mgr, func() *config.Config { return cfg })
	r := gin.New()
	h.RegisterRoutes(r.Group("/admin"))
	return &fixture{router: r, pool: pool, mgr: mgr}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPoolEndpoints(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pool.RecordUseAt(0, true))

	w := f.do(http.MethodGet, "/admin/pool", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, gjson.Get(w.Body.String(), "total").Int())
	assert.NotContains(t, w.Body.String(), "pool-key-aaaa-0001")

	w = f.do(http.MethodGet, "/admin/pool/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, gjson.Get(w.Body.String(), "total_errors").Int())

	w = f.do(http.MethodPost, "/admin/pool/advance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, gjson.Get(w.Body.String(), "index").Int())

	w = f.do(http.MethodPost, "/admin/pool/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.pool.UsageStats().TotalErrors)

	w = f.do(http.MethodGet, "/admin/pool/current", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestEmptyPool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := storage.NewFileBackend(t.TempDir())
	require.NoError(t, store.Initialize(context.Background()))
	mgr, err := settings.NewManager(context.Background(), store, settings.Options{})
	require.NoError(t, err)

	h := NewAdminAPIHandler(credential.NewPool(nil, credential.PoolOptions{}), mgr, config.Default)
	r := gin.New()
	h.RegisterRoutes(r.Group("/admin"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/pool/current", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/pool/advance", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/admin/settings/mode", `{"mode":"combined"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "combined", gjson.Get(w.Body.String(), "apiMode").String())

	w = f.do(http.MethodPut, "/admin/settings/mode", `{"mode":"shared"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/admin/settings/personal-key", `{"key":"  my-personal-key-123  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "my-personal-key-123")
	assert.Equal(t, "my-personal-key-123", f.mgr.Get().PersonalKey)

	w = f.do(http.MethodPut, "/admin/settings", `{"maxRetries":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, gjson.Get(w.Body.String(), "maxRetries").Int())

	w = f.do(http.MethodPut, "/admin/settings", `{"timeout":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/admin/settings/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "hasPersonalKey").Bool())
	assert.EqualValues(t, 19, gjson.Get(w.Body.String(), "personalKeyLength").Int())
}

func TestExportImportAndReset(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.SetPersonalKey(context.Background(), "exported-key-000001")
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/admin/settings/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.String()
	assert.Equal(t, "exported-key-000001", gjson.Get(exported, "personalApiKey").String())

	w = f.do(http.MethodPost, "/admin/settings/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.mgr.Get().PersonalKey)

	w = f.do(http.MethodPost, "/admin/settings/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exported-key-000001", f.mgr.Get().PersonalKey)

	w = f.do(http.MethodPost, "/admin/settings/import", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/admin/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settings.Defaults(), f.mgr.Get())
}

func TestRecommendedAndValidate(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/admin/settings/recommended/personal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 15000, gjson.Get(w.Body.String(), "timeout").Int())

	w = f.do(http.MethodPost, "/admin/settings/recommended/personal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.mgr.Get().AutoRotateKeys)
	assert.Equal(t, 2, f.mgr.Get().MaxRetries)

	w = f.do(http.MethodPost, "/admin/settings/validate", `{"key":"good-personal-key"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "valid").Bool())

	w = f.do(http.MethodPost, "/admin/settings/validate", `{"key":"other"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "valid").Bool())

	w = f.do(http.MethodPost, "/admin/settings/validate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigIsMasked(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/admin/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "admin-secret")
	assert.NotContains(t, body, "hunter2")
	assert.NotContains(t, body, "pool-key-aaaa-0001")
	assert.Equal(t, "***", gjson.Get(body, "security.management_key").String())
	assert.EqualValues(t, 8080, gjson.Get(body, "server.port").Int())

	w = f.do(http.MethodGet, "/admin/system", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, gjson.Get(w.Body.String(), "pool_size").Int())
	assert.Equal(t, "public", gjson.Get(w.Body.String(), "api_mode").String())
}
