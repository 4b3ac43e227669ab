package cnwactivation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CheckForReleaseUpdate asks the server whether a release newer than version
// is published for platform.
func (m *Manager) CheckForReleaseUpdate(ctx context.Context, platform, version string) (bool, error) {
	key, err := m.LicenseKey(ctx)
	if err != nil {
		return false, err
	}
	query := url.Values{
		"platform":  {platform},
		"productId": {m.productID},
		"version":   {version},
		"key":       {key},
	}
	var body struct {
		Published bool `json:"published"`
	}
	if err := m.getJSON(ctx, "/releases/update", query, &body); err != nil {
		return false, err
	}
	return body.Published, nil
}

// GetLatestRelease returns the latest release published for platform.
func (m *Manager) GetLatestRelease(ctx context.Context, platform string) (*Release, error) {
	key, err := m.LicenseKey(ctx)
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"platform":  {platform},
		"productId": {m.productID},
		"key":       {key},
	}
	var release Release
	if err := m.getJSON(ctx, "/releases/latest", query, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (m *Manager) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	resp, err := m.transport.Get(ctx, path, query)
	if err != nil {
		m.metrics.recordServerRequest("release", StatusEInet)
		return fmt.Errorf("%w: %w", statusError(StatusEInet), err)
	}
	if !resp.Success() {
		status := releaseErrorStatus(resp.StatusCode)
		m.metrics.recordServerRequest("release", status)
		return fmt.Errorf("%w: %w", statusError(status), parseServerError(resp.StatusCode, resp.Body))
	}
	m.metrics.recordServerRequest("release", StatusOK)
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func releaseErrorStatus(code int) Status {
	switch code {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return StatusEServer
	case http.StatusTooManyRequests:
		return StatusERateLimit
	}
	return StatusEClient
}
