package logging

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"neuromail-go/internal/config"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		status int
		hasErr bool
		want   string
	}{
		{0, true, "network_error"},
		{200, false, "ok"},
		{401, true, "upstream_401"},
		{429, true, "upstream_429"},
		{404, true, "upstream_4xx"},
		{502, true, "upstream_5xx"},
		{504, true, "timeout"},
		{200, true, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.status, tt.hasErr))
	}
}

func TestSetupWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg := config.Default()
	cfg.Server.Debug = true
	cfg.Server.LogFile = path

	require.NoError(t, Setup(cfg))
	defer func() {
		Close()
		_ = Setup(nil)
	}()

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	Component("test").Info("hello file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "component=test")
}

func TestWithReqCarriesRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/inboxes", nil)
	c.Set("request_id", "rid-1")

	entry := WithReq(c, log.Fields{"extra": 1})
	assert.Equal(t, "rid-1", entry.Data["request_id"])
	assert.Equal(t, "GET", entry.Data["method"])
	assert.Equal(t, "/api/inboxes", entry.Data["path"])
	assert.Equal(t, 1, entry.Data["extra"])
}
