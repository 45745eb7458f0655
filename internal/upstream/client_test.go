package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"neuromail-go/internal/credential"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"public", ModePublic, false},
		{" Personal ", ModePersonal, false},
		{"COMBINED", ModeCombined, false},
		{"", ModePublic, false},
		{"shared", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestCarriesKeyQueryAndBody(t *testing.T) {
	var got *http.Request
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	pool := credential.NewPool([]string{"pool-key-aaaa-0001"}, credential.PoolOptions{})
	c := NewClient(pool, Options{BaseURL: srv.URL + "/"})

	res, err := c.Execute(context.Background(), RequestSpec{
		Method: "post",
		Path:   "inboxes",
		Query:  url.Values{"expiresIn": {"300000"}},
		Body:   []byte(`{"name":"x"}`),
		Header: http.Header{"X-Trace": {"t1"}},
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/inboxes", got.URL.Path)
	assert.Equal(t, "300000", got.URL.Query().Get("expiresIn"))
	assert.Equal(t, "pool-key-aaaa-0001", got.Header.Get("x-api-key"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "t1", got.Header.Get("X-Trace"))
	assert.Equal(t, `{"name":"x"}`, body)

	var decoded struct {
		ID string `json:"id"`
	}
	require.NoError(t, res.Decode(&decoded))
	assert.Equal(t, "abc", decoded.ID)
	assert.Equal(t, "application/json", res.ContentType())
}

func TestCustomAuthHeader(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(nil, Options{BaseURL: srv.URL, Mode: ModePersonal, PersonalKey: "pk-123456789", AuthHeader: "Authorization"})
	res, err := c.Execute(context.Background(), RequestSpec{Method: http.MethodDelete, Path: "/inboxes/1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Equal(t, "pk-123456789", key)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/info", r.URL.Path)
		switch r.Header.Get("x-api-key") {
		case "good-key-000000":
			_, _ = w.Write([]byte(`{"id":"u1"}`))
		case "broken-key-0000":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	pool := credential.NewPool([]string{"pool-key-aaaa-0001"}, credential.PoolOptions{})
	c := NewClient(pool, Options{BaseURL: srv.URL})

	ok, err := c.Probe(context.Background(), "good-key-000000")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Probe(context.Background(), "bad-key-0000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Probe(context.Background(), "broken-key-0000")
	require.Error(t, err)
	assert.False(t, ok)

	_, err = c.Probe(context.Background(), "  ")
	require.Error(t, err)

	assert.Zero(t, pool.UsageStats().TotalUsage)
}
