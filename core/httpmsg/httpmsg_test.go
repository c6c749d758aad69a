package httpmsg

import (
	"bytes"
	"testing"
)

func TestParseRequestBasic(t *testing.T) {
	p := NewParser(DefaultLimits, CasePreserve)
	raw := "GET /hello?x=1 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n"
	req, err := p.ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ReleaseRequest(req)

	if req.Method != "GET" || req.Version != "HTTP/1.1" {
		t.Errorf("unexpected method/version: %q %q", req.Method, req.Version)
	}
	if host, _ := req.Headers.Get("Host"); host != "example.com" {
		t.Errorf("expected Host header, got %q", host)
	}
	if req.URL.Path != "/hello" || req.URL.Query().Get("x") != "1" {
		t.Errorf("unexpected URL parse: %+v", req.URL)
	}
}

func TestParseRequestHTTP09(t *testing.T) {
	p := NewParser(DefaultLimits, CasePreserve)
	req, err := p.ParseRequest([]byte("GET /index.html\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ReleaseRequest(req)

	if !req.IsHTTP09() {
		t.Error("expected HTTP/0.9 request (no version token)")
	}
	if req.Headers.Len() != 0 {
		t.Error("expected no headers for HTTP/0.9 request")
	}
}

func TestParseRequestFoldedHeader(t *testing.T) {
	p := NewParser(DefaultLimits, CasePreserve)
	raw := "GET / HTTP/1.0\r\nX-Long: part-one\r\n part-two\r\n\r\n"
	req, err := p.ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ReleaseRequest(req)

	val, ok := req.Headers.Get("X-Long")
	if !ok || val != "part-one part-two" {
		t.Errorf("expected folded header joined with a space, got %q", val)
	}
}

func TestParseRequestLineTooLong(t *testing.T) {
	p := NewParser(Limits{MaxLine: 8}, CasePreserve)
	_, err := p.ParseRequest([]byte("GET /this-is-a-very-long-path HTTP/1.1\r\n\r\n"))
	if err != ErrLineTooLong {
		t.Errorf("expected ErrLineTooLong, got %v", err)
	}
}

func TestHeaderSetCasePolicy(t *testing.T) {
	h := NewHeaderSet(CaseLower)
	h.Add("Content-Type", "text/plain")
	if _, fields := h.Get("content-type"); fields != true {
		t.Fatal("expected case-insensitive Get to find the header")
	}
	var storedName string
	h.Each(func(name, _ string) { storedName = name })
	if storedName != "content-type" {
		t.Errorf("expected name folded to lowercase, got %q", storedName)
	}
}

func TestHeaderSetSetReplaces(t *testing.T) {
	h := NewHeaderSet(CasePreserve)
	h.Add("X-A", "1")
	h.Add("X-B", "2")
	h.Set("X-A", "3")
	if v, _ := h.Get("X-A"); v != "3" {
		t.Errorf("expected replaced value 3, got %q", v)
	}
	if h.Len() != 2 {
		t.Errorf("expected 2 headers after Set, got %d", h.Len())
	}
}

func TestResponseWriteToSuppressesStatusLineForHTTP09(t *testing.T) {
	p := NewParser(DefaultLimits, CasePreserve)
	req, _ := p.ParseRequest([]byte("GET /\r\n"))
	defer ReleaseRequest(req)

	resp := NewResponse(200)
	resp.Body = []byte("hello")
	var buf bytes.Buffer
	resp.WriteTo(&buf, req)

	if buf.String() != "hello" {
		t.Errorf("expected body-only output for HTTP/0.9, got %q", buf.String())
	}
}

func TestResponseWriteToIncludesStatusLine(t *testing.T) {
	resp := NewResponse(404)
	resp.Body = []byte("not found")
	var buf bytes.Buffer
	resp.WriteTo(&buf, nil)

	want := "HTTP/1.0 404 Not Found\r\n\r\nnot found"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestReasonPhraseUnknown(t *testing.T) {
	if ReasonPhrase(999) != "Unknown Reason" {
		t.Error("expected Unknown Reason for unmapped code")
	}
}
