package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// RequestSpec describes one logical mail-service call.
type RequestSpec struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
	// Raw skips JSON validation of the response body (attachments).
	Raw bool
}

func (s RequestSpec) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}

func (s RequestSpec) build(ctx context.Context, baseURL, authHeader, secret string) (*http.Request, error) {
	target := baseURL + "/" + strings.TrimLeft(s.Path, "/")
	if len(s.Query) > 0 {
		target += "?" + s.Query.Encode()
	}

	var body io.Reader
	if s.Body != nil {
		body = bytes.NewReader(s.Body)
	}
	req, err := http.NewRequestWithContext(ctx, s.method(), target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if s.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Raw {
		req.Header.Set("Accept", "*/*")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(authHeader, secret)
	return req, nil
}

// Result is a successful upstream response.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON exposes the body for path lookups.
func (r *Result) JSON() gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Result) Decode(v interface{}) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ContentType returns the response media type.
func (r *Result) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
