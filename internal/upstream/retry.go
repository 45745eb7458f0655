package upstream

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"
	apperrors "neuromail-go/internal/errors"
	"neuromail-go/internal/monitoring"
	"neuromail-go/internal/monitoring/tracing"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoCredentialAvailable is returned when neither a personal key nor a
// pooled key can be resolved. No attempt is made.
var ErrNoCredentialAvailable = stderrors.New("no API key available")

// RetryExhaustedError reports that every attempt failed.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// resolved key for one attempt; pooled keys carry the lease slot.
type keyRef struct {
	secret string
	lease  credential.Lease
	pooled bool
}

func (k keyRef) source() string {
	if k.pooled {
		return "pool"
	}
	return "personal"
}

type outcome struct {
	kind   apperrors.FailureKind
	err    error
	result *Result
	// unsent marks attempts that never reached the upstream.
	unsent bool
}

// Execute runs spec with up to RetryLimit attempts.
//
// Each attempt resolves a key, applies the per-attempt timeout and records the
// outcome against the pooled slot that served it. Credential failures rotate
// the pool before the next attempt; other failures retry with the same key.
func (c *Client) Execute(ctx context.Context, spec RequestSpec) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "upstream", "upstream.execute",
		trace.WithAttributes(
			attribute.String("http.method", spec.method()),
			attribute.String("upstream.path", spec.Path),
		))

	res, err := c.execute(ctx, spec)

	result := "ok"
	if err != nil {
		result = "error"
	}
	monitoring.UpstreamRequestDuration.WithLabelValues(spec.method(), result).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	return res, err
}

func (c *Client) execute(ctx context.Context, spec RequestSpec) (*Result, error) {
	policy, personal := c.snapshot()
	attempts := policy.RetryLimit
	if attempts < 1 {
		attempts = 1
	}

	key, err := c.resolve(policy.Mode, personal)
	if err != nil {
		return nil, err
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		out := c.attempt(ctx, spec, key, policy.Timeout)
		c.record(key, out)
		monitoring.UpstreamAttemptsTotal.WithLabelValues(out.kind.String(), key.source()).Inc()

		if out.kind == apperrors.FailureNone {
			return out.result, nil
		}
		last = out.err

		fields := log.Fields{
			"method":  spec.method(),
			"path":    spec.Path,
			"attempt": attempt + 1,
			"of":      attempts,
			"outcome": out.kind.String(),
			"source":  key.source(),
		}
		if key.pooled {
			fields["slot"] = key.lease.Index
		}
		log.WithFields(fields).WithError(out.err).Warn("upstream attempt failed")

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request aborted: %w", ctx.Err())
		}

		rotate := out.kind == apperrors.FailureCredential && key.pooled
		if rotate && policy.AutoRotate {
			c.pool.Advance()
			monitoring.CredentialRotationsTotal.Inc()
		}

		if attempt == attempts-1 {
			break
		}
		if rotate {
			next, err := c.resolve(policy.Mode, personal)
			if err != nil {
				return nil, err
			}
			key = next
		}
		if err := c.sleep(ctx, c.backoff(policy, attempt)); err != nil {
			return nil, fmt.Errorf("request aborted during backoff: %w", err)
		}
	}

	monitoring.UpstreamRetriesExhausted.Inc()
	log.WithFields(log.Fields{
		"method":   spec.method(),
		"path":     spec.Path,
		"attempts": attempts,
	}).WithError(last).Error("upstream request failed")
	return nil, &RetryExhaustedError{Attempts: attempts, Last: last}
}

// resolve picks the personal key when the mode allows it, the pool otherwise.
func (c *Client) resolve(mode Mode, personal string) (keyRef, error) {
	if (mode == ModePersonal || mode == ModeCombined) && personal != "" {
		return keyRef{secret: personal}, nil
	}
	if c.pool == nil {
		return keyRef{}, ErrNoCredentialAvailable
	}
	lease, err := c.pool.Acquire()
	if err != nil {
		return keyRef{}, ErrNoCredentialAvailable
	}
	return keyRef{secret: lease.Secret, lease: lease, pooled: true}, nil
}

// record charges the pooled slot exactly once per attempt that was sent.
func (c *Client) record(key keyRef, out outcome) {
	if !key.pooled || out.unsent {
		return
	}
	if err := c.pool.RecordUseAt(key.lease.Index, out.kind != apperrors.FailureNone); err != nil {
		log.WithError(err).WithField("slot", key.lease.Index).Debug("record use skipped")
	}
}

// backoff is BaseDelay*2^attempt, saturating at MaxDelay or MaxBackoffDelay.
func (c *Client) backoff(policy Policy, attempt int) time.Duration {
	ceiling := constants.MaxBackoffDelay
	if policy.MaxDelay > 0 {
		ceiling = policy.MaxDelay
	}
	if policy.BaseDelay <= 0 {
		return 0
	}
	d := policy.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= ceiling {
			break
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func (c *Client) attempt(ctx context.Context, spec RequestSpec, key keyRef, timeout time.Duration) outcome {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return outcome{kind: apperrors.FailureGeneric, err: fmt.Errorf("rate limiter: %w", err), unsent: true}
		}
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := spec.build(actx, c.baseURL, c.authHeader, key.secret)
	if err != nil {
		return outcome{kind: apperrors.FailureGeneric, err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(ctx, actx, timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportFailure(ctx, actx, timeout, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := apperrors.MapHTTPError(resp.StatusCode, body)
		return outcome{kind: apperrors.Classify(apiErr), err: apiErr}
	}

	if !spec.Raw && len(bytes.TrimSpace(body)) > 0 && !gjson.ValidBytes(body) {
		return outcome{kind: apperrors.FailureGeneric, err: fmt.Errorf("parse response: invalid JSON (status %d)", resp.StatusCode)}
	}

	return outcome{
		kind:   apperrors.FailureNone,
		result: &Result{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body},
	}
}

// transportFailure distinguishes the attempt deadline from caller cancellation
// and other network errors.
func (c *Client) transportFailure(parent, actx context.Context, timeout time.Duration, err error) outcome {
	if parent.Err() == nil && stderrors.Is(actx.Err(), context.DeadlineExceeded) {
		return outcome{
			kind: apperrors.FailureTimeout,
			err:  fmt.Errorf("request timed out after %s: %w", timeout, context.DeadlineExceeded),
		}
	}
	mapped := apperrors.MapNetworkError(err)
	return outcome{kind: apperrors.Classify(err), err: fmt.Errorf("%s: %w", mapped.Code, err)}
}
