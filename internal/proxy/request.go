package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Request is an outbound request owned by the pipeline. Filters mutate it
// before dispatch.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       []byte
	Host       string
	RemoteAddr string
	TLS        bool
}

// NewRequest copies r into a Request, reading at most maxBody bytes of
// its body. A non-positive maxBody means no limit.
func NewRequest(r *http.Request, maxBody int64) (*Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		b, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if maxBody > 0 && int64(len(b)) > maxBody {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxBody)
		}
		body = b
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header.Clone(),
		Body:       body,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		TLS:        r.TLS != nil,
	}, nil
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if r.Body != nil {
		c.Body = bytes.Clone(r.Body)
	}
	return &c
}

// URI returns the path with the query string.
func (r *Request) URI() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// Response is a buffered backend or gateway response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse creates a response with an empty header.
func NewResponse(status int, contentType string, body []byte) *Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{StatusCode: status, Header: h, Body: body}
}

// Write copies the response to w.
func (r *Response) Write(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vv := range r.Header {
		dst[k] = append([]string(nil), vv...)
	}
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
