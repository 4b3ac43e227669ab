package cnwactivation

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

func TestCheckForReleaseUpdate(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	transport := &fakeTransport{get: func(path string, query url.Values) (*Response, error) {
		gotPath, gotQuery = path, query
		return jsonResponse(http.StatusOK, `{"published":true}`)
	}}
	h := newTestManager(t, transport)

	published, err := h.m.CheckForReleaseUpdate(context.Background(), "linux-amd64", "1.4.0")
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, "/releases/update", gotPath)
	assert.Equal(t, "linux-amd64", gotQuery.Get("platform"))
	assert.Equal(t, "1.4.0", gotQuery.Get("version"))
	assert.Equal(t, testProductID, gotQuery.Get("productId"))
	assert.Equal(t, testLicenseKey, gotQuery.Get("key"))
}

func TestGetLatestRelease(t *testing.T) {
	transport := &fakeTransport{get: func(path string, query url.Values) (*Response, error) {
		assert.Equal(t, "/releases/latest", path)
		assert.Empty(t, query.Get("version"))
		return jsonResponse(http.StatusOK, `{"version":"1.5.0","files":[{"name":"app.tar.gz","url":"https://dl.example.com/app.tar.gz"}]}`)
	}}
	h := newTestManager(t, transport)

	release, err := h.m.GetLatestRelease(context.Background(), "linux-amd64")
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", release.Version)
	require.Len(t, release.Files, 1)
	assert.Equal(t, "https://dl.example.com/app.tar.gz", release.Files[0].URL)
}

func TestRelease_Errors(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Status
	}{
		{"server", http.StatusServiceUnavailable, StatusEServer},
		{"rate limit", http.StatusTooManyRequests, StatusERateLimit},
		{"not found", http.StatusNotFound, StatusEClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{get: func(string, url.Values) (*Response, error) {
				return jsonResponse(tt.code, `{"code":"RELEASE_ERROR","message":"nope"}`)
			}}
			h := newTestManager(t, transport)

			_, err := h.m.GetLatestRelease(context.Background(), "linux-amd64")
			assert.ErrorIs(t, err, &StatusError{Status: tt.want})
			var se *ServerError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "RELEASE_ERROR", se.Code)
		})
	}

	h := newTestManager(t, &fakeTransport{})
	_, err := h.m.CheckForReleaseUpdate(context.Background(), "linux-amd64", "1.0.0")
	assert.ErrorIs(t, err, &StatusError{Status: StatusEInet})
	assert.ErrorIs(t, err, errNoNetwork)
}

func TestRelease_RequiresLicenseKey(t *testing.T) {
	m, err := NewManager(testProductID, persistence.NewMemoryProvider(), WithTransport(&fakeTransport{}), WithSystemInfo(fakeSystem{}))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.GetLatestRelease(context.Background(), "linux-amd64")
	assert.ErrorIs(t, err, ErrLicenseKeyNotSet)
}
