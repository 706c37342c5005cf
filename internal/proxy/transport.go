package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// DefaultMaxResponseBytes bounds buffered backend responses.
const DefaultMaxResponseBytes = 10 << 20

// ErrResponseTooLarge is returned when a backend body exceeds the buffer
// limit. The partial body is discarded.
var ErrResponseTooLarge = errors.New("backend response too large")

// Transport sends one request to one backend instance.
type Transport interface {
	Send(ctx context.Context, address string, req *Request, timeout time.Duration) (*Response, error)
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPTransport creates an HTTPTransport. A nil client gets pooled
// defaults.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPTransport{client: client, maxBytes: DefaultMaxResponseBytes}
}

// Send implements Transport. address is a base URL such as
// http://10.0.0.5:8080.
func (t *HTTPTransport) Send(ctx context.Context, address string, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	target := strings.TrimSuffix(address, "/") + req.URI()
	out, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)
	setForwardedHeaders(out.Header, req)

	resp, err := t.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	if int64(len(b)) > t.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, t.maxBytes)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	header.Del("Content-Length")

	return &Response{StatusCode: resp.StatusCode, Header: header, Body: b}, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func setForwardedHeaders(h http.Header, req *Request) {
	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}

	if req.TLS {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}

	if req.Host != "" {
		h.Set("X-Forwarded-Host", req.Host)
	}
}
