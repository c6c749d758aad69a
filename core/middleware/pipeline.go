// Package middleware adapts connection-serving requests through a chain of
// pre/post handlers before and after the pool.Handler that answers them,
// generalized from the teacher's FDContext-based pipeline onto the
// httpmsg.Request/Response pair the connection lifecycle engine (core/pool)
// actually parses and writes.
package middleware

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corehttpd/corehttpd/core/codec"
	"github.com/corehttpd/corehttpd/core/httpmsg"
	"github.com/corehttpd/corehttpd/core/pools"
)

// Context carries one request/response pair through a pipeline. Aborting a
// Context stops the remaining middlewares and the final handler from
// running, mirroring FDContext.Abort.
type Context struct {
	Req     *httpmsg.Request
	Resp    *httpmsg.Response
	aborted bool
}

// NewContext wraps a request and the response that will be sent for it.
func NewContext(req *httpmsg.Request, resp *httpmsg.Response) *Context {
	return &Context{Req: req, Resp: resp}
}

var contextPool = pools.NewSmartPool(pools.SmartPoolConfig{
	New:        func() any { return &Context{} },
	Reset:      func(a any) { c := a.(*Context); c.Req, c.Resp, c.aborted = nil, nil, false },
	WarmupSize: 64,
})

// acquireContext returns a pooled Context wired to req/resp, the warmed
// counterpart to NewContext for the per-request hot path.
func acquireContext(req *httpmsg.Request, resp *httpmsg.Response) *Context {
	c := contextPool.Get().(*Context)
	c.Req, c.Resp = req, resp
	return c
}

// releaseContext returns ctx to the pool. Callers must not touch ctx
// afterward.
func releaseContext(ctx *Context) {
	contextPool.Put(ctx)
}

// Method returns the request method, or "" if Req is nil.
func (c *Context) Method() string {
	if c.Req == nil {
		return ""
	}
	return c.Req.Method
}

// Path returns the request path, or "" if Req is nil.
func (c *Context) Path() string {
	if c.Req == nil {
		return ""
	}
	return c.Req.RawURL
}

// Abort marks the context so the pipeline stops calling further handlers.
func (c *Context) Abort() { c.aborted = true }

// IsAborted reports whether Abort has been called.
func (c *Context) IsAborted() bool { return c.aborted }

// Status sets the response status code.
func (c *Context) Status(code int) { c.Resp.Status = code }

// SetHeader sets a response header.
func (c *Context) SetHeader(name, value string) { c.Resp.Headers.Set(name, value) }

// JSON sets the status and serializes v as the JSON response body.
func (c *Context) JSON(status int, v interface{}) {
	c.Resp.Status = status
	body, err := (&codec.JSONCodec{}).Encode(v)
	if err != nil {
		c.Resp.Status = 500
		c.Resp.Body = []byte(`{"error":"encode failure"}`)
		return
	}
	c.Resp.Headers.Set("Content-Type", "application/json")
	c.Resp.Body = body
}

// HandlerFunc is one middleware's signature.
type HandlerFunc func(*Context)

// Pipeline is an ordered, reusable chain of middlewares run before a final
// handler, short-circuiting on the first one that calls Abort.
type Pipeline struct {
	handlers []HandlerFunc
	length   int
}

// NewPipeline returns an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		handlers: make([]HandlerFunc, 0, 16),
	}
}

// Use appends a middleware to the pipeline.
func (p *Pipeline) Use(handler HandlerFunc) *Pipeline {
	p.handlers = append(p.handlers, handler)
	p.length = len(p.handlers)
	return p
}

// Execute runs every middleware in order, then finalHandler unless one of
// them aborted the context. A panic anywhere in the chain — middleware or
// final handler — is turned into a 500 response rather than crashing the
// pool worker that called Execute; recoverInto also logs the panic.
// Recovery() is a no-op kept for chain compatibility, since the
// chain-position a recover() is registered at can't catch a panic from a
// step that hasn't run yet.
func (p *Pipeline) Execute(ctx *Context, finalHandler HandlerFunc) {
	defer recoverInto(ctx)

	if p.length == 0 {
		finalHandler(ctx)
		return
	}

	for i := 0; i < p.length; i++ {
		p.handlers[i](ctx)
		if ctx.IsAborted() {
			return
		}
	}

	if !ctx.IsAborted() {
		finalHandler(ctx)
	}
}

func recoverInto(ctx *Context) {
	if err := recover(); err != nil {
		log.Printf("panic recovered: %v", err)
		ctx.Abort()
		ctx.JSON(500, map[string]interface{}{
			"error": "internal server error",
		})
	}
}

// Compile copies the handler slice to its exact length, dropping any spare
// append capacity before the pipeline is run repeatedly.
func (p *Pipeline) Compile() *Pipeline {
	if p.length <= 1 {
		return p
	}
	compiled := make([]HandlerFunc, p.length)
	copy(compiled, p.handlers)
	p.handlers = compiled
	return p
}

// AsyncPipeline runs a synchronous middleware chain followed by a set of
// middlewares dispatched to a worker pool, for concerns (logging, metrics)
// that must not add to request latency.
type AsyncPipeline struct {
	sync     *Pipeline
	async    []AsyncHandlerFunc
	pool     *sync.Pool
	workerCh chan asyncTask
}

// AsyncHandlerFunc is a middleware run off the request's goroutine.
type AsyncHandlerFunc func(*Context)

type asyncTask struct {
	handler AsyncHandlerFunc
	ctx     *Context
}

// NewAsyncPipeline returns an AsyncPipeline backed by workers goroutines
// (default 4 if workers <= 0).
func NewAsyncPipeline(workers int) *AsyncPipeline {
	if workers <= 0 {
		workers = 4
	}

	p := &AsyncPipeline{
		sync:     NewPipeline(),
		async:    make([]AsyncHandlerFunc, 0, 8),
		workerCh: make(chan asyncTask, 256),
		pool: &sync.Pool{
			New: func() interface{} {
				return &asyncTask{}
			},
		},
	}

	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *AsyncPipeline) worker() {
	for task := range p.workerCh {
		task.handler(task.ctx)
		p.pool.Put(&task)
	}
}

// UseSync adds a middleware that runs before the final handler, blocking.
func (p *AsyncPipeline) UseSync(handler HandlerFunc) *AsyncPipeline {
	p.sync.Use(handler)
	return p
}

// UseAsync adds a middleware dispatched to a worker after the sync chain
// completes.
func (p *AsyncPipeline) UseAsync(handler AsyncHandlerFunc) *AsyncPipeline {
	p.async = append(p.async, handler)
	return p
}

// Execute runs the sync chain, then fans the async middlewares out to
// workers, falling back to an inline call if the worker queue is full.
func (p *AsyncPipeline) Execute(ctx *Context, finalHandler HandlerFunc) {
	p.sync.Execute(ctx, finalHandler)

	if !ctx.IsAborted() {
		for _, handler := range p.async {
			task := p.pool.Get().(*asyncTask)
			task.handler = handler
			task.ctx = ctx

			select {
			case p.workerCh <- *task:
			default:
				handler(ctx)
				p.pool.Put(task)
			}
		}
	}
}

// Recovery is kept for pipelines that want crash isolation to be visible
// in their Use() chain; the actual recover() lives in Pipeline.Execute,
// since a middleware can't recover a panic raised by a step that runs
// after it returns.
func Recovery() HandlerFunc {
	return func(ctx *Context) {}
}

// Logger logs the method and path of every request, off the request path.
func Logger() AsyncHandlerFunc {
	return func(ctx *Context) {
		log.Printf("[%s] %s", ctx.Method(), ctx.Path())
	}
}

// CORS sets permissive CORS headers and short-circuits preflight requests.
func CORS() HandlerFunc {
	return func(ctx *Context) {
		ctx.SetHeader("Access-Control-Allow-Origin", "*")
		ctx.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if ctx.Method() == "OPTIONS" {
			ctx.Abort()
			ctx.Status(204)
		}
	}
}

// RateLimiter admits up to requestsPerSecond requests per second, refilling
// once per second, and rejects the rest with 429.
func RateLimiter(requestsPerSecond int) HandlerFunc {
	var (
		tokens     int
		lastRefill time.Time
		mu         sync.Mutex
	)

	tokens = requestsPerSecond
	lastRefill = time.Now()

	return func(ctx *Context) {
		mu.Lock()

		now := time.Now()
		if now.Sub(lastRefill) > time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}

		if tokens > 0 {
			tokens--
			mu.Unlock()
			return
		}

		mu.Unlock()

		ctx.Abort()
		ctx.JSON(429, map[string]interface{}{
			"error": "too many requests",
		})
	}
}

// RequestID stamps each request with an incrementing X-Request-ID header.
func RequestID() HandlerFunc {
	var counter uint64

	return func(ctx *Context) {
		id := atomic.AddUint64(&counter, 1)
		ctx.SetHeader("X-Request-ID", fmt.Sprintf("%d", id))
	}
}

// Metrics is a placeholder hook point for request metrics collected off
// the request path; callers typically replace this with a closure over a
// *metrics.Monitor.
func Metrics() AsyncHandlerFunc {
	return func(ctx *Context) {
		_ = ctx.Method()
		_ = ctx.Path()
	}
}
