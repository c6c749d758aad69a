package httpmsg

import (
	"bytes"
	"fmt"
)

// Response is an outgoing status line, header set, and body.
type Response struct {
	Status  int
	Headers *HeaderSet
	Body    []byte
}

// NewResponse returns a Response with an empty, case-preserving header set.
func NewResponse(status int) *Response {
	return &Response{Status: status, Headers: NewHeaderSet(CasePreserve)}
}

// WriteTo renders the response into buf. When req is an HTTP/0.9 request,
// the status line and headers are suppressed entirely and only the body is
// written, per the external-interfaces HTTP/0.9 rule; otherwise the status
// line is "HTTP/1.0 <code> <reason>\r\n" followed by each header and a
// blank line.
func (r *Response) WriteTo(buf *bytes.Buffer, req *Request) {
	if req == nil || !req.IsHTTP09() {
		fmt.Fprintf(buf, "HTTP/1.0 %d %s\r\n", r.Status, ReasonPhrase(r.Status))
		r.Headers.Each(func(name, value string) {
			fmt.Fprintf(buf, "%s: %s\r\n", name, value)
		})
		buf.WriteString("\r\n")
	}
	buf.Write(r.Body)
}
