// package services implements the provider clients: Spotify as the playlist source and YouTube Music as the target.
package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/desertthunder/songbridge/internal/shared"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 2
)

// ClientOptions configures the HTTP client shared by the provider clients.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration // per request; zero uses 10s
	RetryCount int           // extra attempts for idempotent reads on 5xx or transport errors
	Logger     *log.Logger
}

// idempotentFunc decides whether a request may be retried.
type idempotentFunc func(r *resty.Request) bool

func isGet(r *resty.Request) bool { return r.Method == http.MethodGet }

func newRestClient(opts ClientOptions, idempotent idempotentFunc) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || !idempotent(r.Request) {
				return false
			}
			if r.Request.Context().Err() != nil {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	if opts.Logger != nil {
		client.SetLogger(opts.Logger)
	}
	return client
}

// decodeResponse turns a non-2xx response into an [shared.UpstreamError] and otherwise unmarshals the body into out.
func decodeResponse(resp *resty.Response, provider string, out any) error {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &shared.UpstreamError{Provider: provider, Status: resp.StatusCode(), Body: resp.String()}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrAPIRequest, provider, err)
	}
	return nil
}

// endpointName returns the last path segment of the request URL.
func endpointName(r *resty.Request) string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}
