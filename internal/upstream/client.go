package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"

	"golang.org/x/time/rate"
)

// Mode selects where the API key for a request comes from.
type Mode string

const (
	// ModePublic always draws from the shared pool.
	ModePublic Mode = "public"
	// ModePersonal uses the personal key when set, the pool otherwise.
	ModePersonal Mode = "personal"
	// ModeCombined behaves like ModePersonal; pool rotation stays enabled for fallback.
	ModeCombined Mode = "combined"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePublic, ModePersonal, ModeCombined:
		return m, nil
	case "":
		return ModePublic, nil
	default:
		return "", fmt.Errorf("invalid API mode %q (available: public, personal, combined)", s)
	}
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configure a Client. Zero values fall back to the documented defaults.
type Options struct {
	BaseURL     string
	Mode        Mode
	PersonalKey string
	RetryLimit  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
	// AuthHeader carries the API key. Defaults to "x-api-key".
	AuthHeader string
	HTTPClient Doer
	// RateLimit paces outbound attempts (requests per second); zero disables pacing.
	RateLimit float64
	RateBurst int
}

// Client performs logical mail-service operations with key selection, a
// per-attempt deadline, exponential backoff and failure-driven rotation.
type Client struct {
	pool       *credential.Pool
	baseURL    string
	authHeader string
	http       Doer
	limiter    *rate.Limiter

	mu          sync.RWMutex
	mode        Mode
	personalKey string
	noRotate    bool
	retryLimit  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	timeout     time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client over pool. The pool may be nil when only a
// personal key is used.
func NewClient(pool *credential.Pool, opts Options) *Client {
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = constants.DefaultRetryLimit
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = constants.DefaultBaseDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultAttemptTimeout
	}
	if opts.AuthHeader == "" {
		opts.AuthHeader = "x-api-key"
	}
	if opts.Mode == "" {
		opts.Mode = ModePublic
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	c := &Client{
		pool:        pool,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authHeader:  opts.AuthHeader,
		http:        opts.HTTPClient,
		mode:        opts.Mode,
		personalKey: strings.TrimSpace(opts.PersonalKey),
		retryLimit:  opts.RetryLimit,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		timeout:     opts.Timeout,
		sleep:       sleepContext,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Pool returns the credential pool backing the client.
func (c *Client) Pool() *credential.Pool { return c.pool }

// BaseURL returns the mail service root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetMode switches the key source.
func (c *Client) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SetPersonalKey sets or clears (empty string) the personal key.
func (c *Client) SetPersonalKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personalKey = strings.TrimSpace(key)
}

// SetRotation toggles advancing the pool on credential failures. With rotation
// off the failing key is still charged and leaves the pool once exhausted.
func (c *Client) SetRotation(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noRotate = !enabled
}

// SetRetryPolicy updates the attempt budget and per-attempt timeout. Non-positive
// values leave the current setting untouched.
func (c *Client) SetRetryPolicy(retryLimit int, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if retryLimit > 0 {
		c.retryLimit = retryLimit
	}
	if timeout > 0 {
		c.timeout = timeout
	}
}

// Policy is a point-in-time copy of the client's runtime settings.
type Policy struct {
	Mode           Mode          `json:"mode"`
	HasPersonalKey bool          `json:"has_personal_key"`
	AutoRotate     bool          `json:"auto_rotate"`
	RetryLimit     int           `json:"retry_limit"`
	BaseDelay      time.Duration `json:"base_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	Timeout        time.Duration `json:"timeout"`
}

// Policy returns the current runtime settings.
func (c *Client) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Policy{
		Mode:           c.mode,
		HasPersonalKey: c.personalKey != "",
		AutoRotate:     !c.noRotate,
		RetryLimit:     c.retryLimit,
		BaseDelay:      c.baseDelay,
		MaxDelay:       c.maxDelay,
		Timeout:        c.timeout,
	}
}

func (c *Client) snapshot() (Policy, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Policy{
		Mode:       c.mode,
		AutoRotate: !c.noRotate,
		RetryLimit: c.retryLimit,
		BaseDelay:  c.baseDelay,
		MaxDelay:   c.maxDelay,
		Timeout:    c.timeout,
	}, c.personalKey
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
