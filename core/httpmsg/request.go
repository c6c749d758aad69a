package httpmsg

import (
	"net/url"
	"sync"
)

// Request is a parsed HTTP request line plus headers and body. Version is
// empty when the client sent no HTTP version token, per the HTTP/0.9
// fallback rule.
type Request struct {
	Method  string
	RawURL  string
	URL     *url.URL
	Version string // "" means HTTP/0.9

	Headers *HeaderSet
	Body    []byte
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{
			Headers: NewHeaderSet(CasePreserve),
			Body:    make([]byte, 0, 1024),
		}
	},
}

// AcquireRequest returns a pooled Request ready for reuse.
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// ReleaseRequest resets req and returns it to the pool.
func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// Reset clears req for reuse without releasing backing storage.
func (r *Request) Reset() {
	r.Method = ""
	r.RawURL = ""
	r.URL = nil
	r.Version = ""
	r.Headers.Reset()
	r.Body = r.Body[:0]
}

// IsHTTP09 reports whether this request carried no protocol version token.
func (r *Request) IsHTTP09() bool { return r.Version == "" }

// KeepAlive reports whether the connection should be kept open after this
// request, respecting the Connection header and the version default
// (HTTP/1.1 defaults to keep-alive, HTTP/1.0 and HTTP/0.9 default to
// close).
func (r *Request) KeepAlive() bool {
	conn, ok := r.Headers.Get("Connection")
	if ok {
		switch lowerASCII(conn) {
		case "keep-alive":
			return true
		case "close":
			return false
		}
	}
	return r.Version == "HTTP/1.1"
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
