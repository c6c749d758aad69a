package httpmsg

import (
	"bytes"
	"net/url"

	"github.com/pkg/errors"
)

// ErrInvalidRequest is returned for a request line or header block that
// doesn't parse.
var ErrInvalidRequest = errors.New("httpmsg: invalid HTTP request")

// ErrLineTooLong is returned when the request line or a header line exceeds
// Limits.MaxLine.
var ErrLineTooLong = errors.New("httpmsg: request line or header too long")

// ErrHeadersTooLarge is returned when the total header block exceeds
// Limits.MaxHeaders.
var ErrHeadersTooLarge = errors.New("httpmsg: header block too large")

// ErrPostTooLarge is returned when the request body exceeds Limits.MaxPost.
var ErrPostTooLarge = errors.New("httpmsg: request body exceeds maxpost")

// Limits bounds the request line, header block, and body sizes a parser
// will accept, matching the server limits configuration surface
// (maxline, maxheaders, maxpost).
type Limits struct {
	MaxLine    int // 0 = unlimited
	MaxHeaders int // 0 = unlimited
	MaxPost    int // 0 = unlimited
}

// DefaultLimits matches the teacher's unbounded zero-allocation parser:
// no limits enforced unless the caller sets them explicitly.
var DefaultLimits = Limits{}

// Parser parses request bytes into *Request values under a fixed Limits
// and header name CasePolicy.
type Parser struct {
	Limits Limits
	Case   CasePolicy
}

// NewParser returns a Parser with the given limits and header case policy.
func NewParser(limits Limits, policy CasePolicy) *Parser {
	return &Parser{Limits: limits, Case: policy}
}

// ParseRequest parses data (one full request, line + headers + body) into
// a pooled *Request. The caller must call ReleaseRequest when done.
func (p *Parser) ParseRequest(data []byte) (*Request, error) {
	req := AcquireRequest()
	req.Headers = NewHeaderSet(p.Case)

	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd == -1 {
		ReleaseRequest(req)
		return nil, ErrInvalidRequest
	}
	if p.Limits.MaxLine > 0 && lineEnd > p.Limits.MaxLine {
		ReleaseRequest(req)
		return nil, ErrLineTooLong
	}

	line := data[:lineEnd]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		ReleaseRequest(req)
		return nil, ErrInvalidRequest
	}
	rest := line[sp1+1:]

	// METHOD URL [SP VERSION] — VERSION is optional per the HTTP/0.9
	// fallback rule, so a second space may or may not be present.
	sp2 := bytes.IndexByte(rest, ' ')
	var rawURL, version string
	if sp2 == -1 {
		rawURL = string(rest)
		version = ""
	} else {
		rawURL = string(rest[:sp2])
		version = string(bytes.TrimSpace(rest[sp2+1:]))
	}

	req.Method = string(line[:sp1])
	req.RawURL = rawURL
	req.Version = version

	if u, err := url.Parse(rawURL); err == nil {
		req.URL = u
	} else {
		req.URL = &url.URL{Path: rawURL}
	}

	data = data[lineEnd+1:]

	// HTTP/0.9 requests carry no headers and no body beyond the request
	// line: the connection is the response body itself.
	if req.IsHTTP09() {
		return req, nil
	}

	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	sep := 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(data, []byte("\n\n"))
		sep = 2
		if headerEnd == -1 {
			ReleaseRequest(req)
			return nil, ErrInvalidRequest
		}
	}
	if p.Limits.MaxHeaders > 0 && headerEnd > p.Limits.MaxHeaders {
		ReleaseRequest(req)
		return nil, ErrHeadersTooLarge
	}

	headerData := data[:headerEnd]
	if err := parseHeaders(req.Headers, headerData, p.Limits.MaxLine); err != nil {
		ReleaseRequest(req)
		return nil, err
	}
	data = data[headerEnd+sep:]

	if p.Limits.MaxPost > 0 && len(data) > p.Limits.MaxPost {
		ReleaseRequest(req)
		return nil, ErrPostTooLarge
	}
	if len(data) > 0 {
		req.Body = append(req.Body[:0], data...)
	}

	return req, nil
}

// parseHeaders parses header lines into set, joining folded continuation
// lines (a line beginning with whitespace extends the previous header's
// value, joined by a single space). A line longer than maxLine (when
// maxLine > 0) fails with ErrLineTooLong.
func parseHeaders(set *HeaderSet, data []byte, maxLine int) error {
	var lastName string
	haveLast := false

	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}
		if maxLine > 0 && lineEnd > maxLine {
			return ErrLineTooLong
		}
		line := data[:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if len(line) == 0 {
			break
		}

		if (line[0] == ' ' || line[0] == '\t') && haveLast {
			folded := string(bytes.TrimSpace(line))
			if existing, ok := set.Get(lastName); ok {
				set.Set(lastName, existing+" "+folded)
			}
		} else {
			colon := bytes.IndexByte(line, ':')
			if colon > 0 {
				name := string(bytes.TrimSpace(line[:colon]))
				value := string(bytes.TrimSpace(line[colon+1:]))
				set.Add(name, value)
				lastName = name
				haveLast = true
			}
		}

		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
	return nil
}
