package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"trafficcam-capture/internal/config"
)

// DefaultTimeout applies when Options.Timeout is not positive. Upstream calls never run unbounded.
const DefaultTimeout = 30 * time.Second

// Options configures an upstream HTTP client.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	Credentials        config.Credentials
	InsecureSkipVerify bool
}

// New builds a resty client that sends the injected credential material with every request.
// The credentials are copied into the client headers once; they are never changed afterwards.
func New(opts Options) *resty.Client {
	r := resty.New()
	if opts.BaseURL != "" {
		r.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.SetTimeout(timeout)

	r.SetHeader("Accept", "*/*")
	creds := opts.Credentials
	if creds.UserAgent != "" {
		r.SetHeader("User-Agent", creds.UserAgent)
	}
	if creds.Referer != "" {
		r.SetHeader("Referer", creds.Referer)
	}
	if creds.Origin != "" {
		r.SetHeader("Origin", creds.Origin)
	}
	if cookie := CookieHeader(creds.Cookies); cookie != "" {
		r.SetHeader("Cookie", cookie)
	}
	if creds.VerificationToken != "" {
		r.SetHeader("__requestverificationtoken", creds.VerificationToken)
	}

	// Some camera CDNs serve self-signed certificates
	if opts.InsecureSkipVerify {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return r
}

// CookieHeader renders cookies as a single Cookie header value, sorted by name.
func CookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, strings.TrimSpace(body))
}

// CheckResponse converts an error response into a *StatusError.
func CheckResponse(op string, resp *resty.Response) error {
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// IsAuthError reports whether err carries a 401 or 403 status, which for stream
// requests usually means the streaming token expired.
func IsAuthError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}
