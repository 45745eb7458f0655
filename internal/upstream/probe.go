package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"
	apperrors "neuromail-go/internal/errors"

	log "github.com/sirupsen/logrus"
)

// Probe checks a key with a single GET /user/info. It bypasses the pool and
// the retry loop so validation never charges a pooled credential.
func (c *Client) Probe(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("key is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ProbeTimeout)
	defer cancel()

	req, err := RequestSpec{Method: http.MethodGet, Path: "/user/info"}.build(ctx, c.baseURL, c.authHeader, key)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperrors.MapNetworkError(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := apperrors.MapHTTPError(resp.StatusCode, body)
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"key":    credential.MaskSecret(key),
		}).Debug("key probe rejected")
		if apperrors.IsCredentialFailure(apiErr) {
			return false, nil
		}
		return false, apiErr
	}
	return true, nil
}
