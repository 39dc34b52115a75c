package httpclient

import "time"

// Request describes an outbound HTTP request.
type Request struct {
	// Method is the HTTP method.
	Method string
	// Path is appended to BaseURL, or used as-is when it is absolute.
	Path string
	// Headers are merged over the client defaults.
	Headers map[string]string
	// Query are URL query parameters.
	Query map[string]string
	// Body accepts []byte, string or any value that is JSON-encoded.
	Body any
	// UserAgent overrides the User-Agent header when set.
	UserAgent string
	// Proxy routes the request through an HTTP proxy URL when set.
	Proxy string
	// Timeout overrides the client timeout for this request.
	Timeout time.Duration
}

// Response is the result of an HTTP request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
