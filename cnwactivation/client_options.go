package cnwactivation

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client for the HTTPClient.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *HTTPClient) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
// Option ordering does not matter: timeout is always applied after all options.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *HTTPClient) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *HTTPClient) {
		o.userAgent = ua
	}
}

// WithRateLimit caps outbound requests at rps with the given burst. Callers
// wait for a token; a cancelled context surfaces as a transport error.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(o *HTTPClient) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}
