package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie names used by the rewards API.
const (
	NonceCookie   = "nonce"
	SessionCookie = "__VERSE_TOKEN__"
)

// Request is one call against the rewards API. Cookies are sent only when set.
type Request struct {
	Method       string
	Path         string
	Body         []byte
	Nonce        string
	SessionToken string
}

// Response carries the raw body plus the cookie effects of the call. Token
// capture is reported here instead of being stored by the transport.
type Response struct {
	Status int
	Body   []byte

	// CapturedToken is the session token set by this response, if any.
	CapturedToken string
	// NonceCleared is true when the response expired the nonce cookie.
	NonceCleared bool
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport performs API calls.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport is the net/http Transport. Response cookies pass through a
// public-suffix aware jar so domain and expiry rules decide what is captured.
type HTTPTransport struct {
	baseURL *url.URL
	client  *http.Client
	jar     *cookiejar.Jar
}

// NewHTTPTransport creates a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme and host required", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		jar:     jar,
	}, nil
}

// Do sends req. Non-2xx statuses are not errors here; the caller decides.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	endpoint := t.baseURL.String() + req.Path

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Nonce != "" {
		httpReq.AddCookie(&http.Cookie{Name: NonceCookie, Value: req.Nonce})
	}
	if req.SessionToken != "" {
		httpReq.AddCookie(&http.Cookie{Name: SessionCookie, Value: req.SessionToken})
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	out := Response{Status: resp.StatusCode, Body: data}
	t.captureCookies(httpReq.URL, resp.Cookies(), &out)
	return out, nil
}

func (t *HTTPTransport) captureCookies(u *url.URL, cookies []*http.Cookie, out *Response) {
	if len(cookies) == 0 {
		return
	}

	var setToken string
	for _, c := range cookies {
		switch {
		case c.Name == NonceCookie && c.Value == "":
			out.NonceCleared = true
		case c.Name == SessionCookie:
			setToken = c.Value
		}
	}

	// the jar drops expired or foreign-domain cookies
	t.jar.SetCookies(u, cookies)
	for _, c := range t.jar.Cookies(u) {
		if c.Name == SessionCookie && c.Value != "" && c.Value == setToken {
			out.CapturedToken = c.Value
		}
	}
}
