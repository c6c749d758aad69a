package middleware

import (
	"testing"
	"time"

	"github.com/corehttpd/corehttpd/core/httpmsg"
)

func newTestContext(method, path string) *Context {
	req := &httpmsg.Request{Method: method, RawURL: path}
	resp := httpmsg.NewResponse(200)
	return NewContext(req, resp)
}

func TestPipelineBasic(t *testing.T) {
	pipeline := NewPipeline()

	executed := false
	pipeline.Use(func(ctx *Context) { executed = true })

	ctx := newTestContext("GET", "/")
	pipeline.Execute(ctx, func(ctx *Context) {})

	if !executed {
		t.Error("middleware was not executed")
	}
}

func TestPipelineAbort(t *testing.T) {
	pipeline := NewPipeline()

	middleware1Executed := false
	middleware2Executed := false
	finalExecuted := false

	pipeline.Use(func(ctx *Context) {
		middleware1Executed = true
		ctx.Abort()
	})
	pipeline.Use(func(ctx *Context) {
		middleware2Executed = true
	})

	ctx := newTestContext("GET", "/")
	pipeline.Execute(ctx, func(ctx *Context) { finalExecuted = true })

	if !middleware1Executed {
		t.Error("middleware 1 should be executed")
	}
	if middleware2Executed {
		t.Error("middleware 2 should not be executed after abort")
	}
	if finalExecuted {
		t.Error("final handler should not be executed after abort")
	}
}

func TestPipelineOrder(t *testing.T) {
	pipeline := NewPipeline()

	var order []int
	pipeline.Use(func(ctx *Context) { order = append(order, 1) })
	pipeline.Use(func(ctx *Context) { order = append(order, 2) })
	pipeline.Use(func(ctx *Context) { order = append(order, 3) })

	ctx := newTestContext("GET", "/")
	pipeline.Execute(ctx, func(ctx *Context) { order = append(order, 4) })

	expected := []int{1, 2, 3, 4}
	if len(order) != len(expected) {
		t.Fatalf("expected %d executions, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %d, want %d", i, order[i], v)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	pipeline := NewPipeline()
	pipeline.Use(Recovery())

	ctx := newTestContext("GET", "/")
	pipeline.Execute(ctx, func(ctx *Context) { panic("test panic") })

	if !ctx.IsAborted() {
		t.Error("Recovery should abort the context after a panic")
	}
	if ctx.Resp.Status != 500 {
		t.Errorf("expected status 500, got %d", ctx.Resp.Status)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	middleware := RequestID()
	ctx := newTestContext("GET", "/")
	middleware(ctx)

	if _, ok := ctx.Resp.Headers.Get("X-Request-ID"); !ok {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestCORSPreflight(t *testing.T) {
	cors := CORS()
	ctx := newTestContext("OPTIONS", "/")
	cors(ctx)

	if !ctx.IsAborted() {
		t.Error("OPTIONS request should be aborted by CORS")
	}
	if ctx.Resp.Status != 204 {
		t.Errorf("expected 204, got %d", ctx.Resp.Status)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := RateLimiter(2)

	ctx1 := newTestContext("GET", "/")
	limiter(ctx1)
	if ctx1.IsAborted() {
		t.Error("first request should not be rate limited")
	}

	ctx2 := newTestContext("GET", "/")
	limiter(ctx2)
	if ctx2.IsAborted() {
		t.Error("second request should not be rate limited")
	}

	ctx3 := newTestContext("GET", "/")
	limiter(ctx3)
	if !ctx3.IsAborted() {
		t.Error("third request should be rate limited")
	}

	time.Sleep(1100 * time.Millisecond)

	ctx4 := newTestContext("GET", "/")
	limiter(ctx4)
	if ctx4.IsAborted() {
		t.Error("request after refill should not be rate limited")
	}
}

func TestAsyncPipeline(t *testing.T) {
	asyncPipeline := NewAsyncPipeline(2)

	syncExecuted := false
	asyncExecuted := make(chan struct{}, 1)

	asyncPipeline.UseSync(func(ctx *Context) { syncExecuted = true })
	asyncPipeline.UseAsync(func(ctx *Context) { asyncExecuted <- struct{}{} })

	ctx := newTestContext("GET", "/")
	asyncPipeline.Execute(ctx, func(ctx *Context) {})

	if !syncExecuted {
		t.Error("sync middleware was not executed")
	}

	select {
	case <-asyncExecuted:
	case <-time.After(time.Second):
		t.Error("async middleware was not executed")
	}
}

func BenchmarkPipeline(b *testing.B) {
	pipeline := NewPipeline()
	pipeline.Use(func(ctx *Context) {})
	pipeline.Use(func(ctx *Context) {})
	pipeline.Use(func(ctx *Context) {})
	pipeline.Compile()

	req := &httpmsg.Request{Method: "GET", RawURL: "/"}
	resp := httpmsg.NewResponse(200)
	finalHandler := func(ctx *Context) {}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := NewContext(req, resp)
		pipeline.Execute(ctx, finalHandler)
	}
}

func BenchmarkRecoveryMiddleware(b *testing.B) {
	middleware := Recovery()
	req := &httpmsg.Request{Method: "GET", RawURL: "/"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := NewContext(req, httpmsg.NewResponse(200))
		middleware(ctx)
	}
}

func BenchmarkRequestIDMiddleware(b *testing.B) {
	middleware := RequestID()
	req := &httpmsg.Request{Method: "GET", RawURL: "/"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := NewContext(req, httpmsg.NewResponse(200))
		middleware(ctx)
	}
}

func BenchmarkRateLimiter(b *testing.B) {
	middleware := RateLimiter(1000000)
	req := &httpmsg.Request{Method: "GET", RawURL: "/"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := NewContext(req, httpmsg.NewResponse(200))
		middleware(ctx)
	}
}
