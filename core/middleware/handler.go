package middleware

import (
	"context"

	"github.com/corehttpd/corehttpd/core/httpmsg"
)

// AsPoolHandler adapts a Pipeline into the pool.Handler interface's shape
// without importing core/pool here (core/pool has no reason to depend on
// middleware, so the adaptation point lives on this side), wrapping final
// in the pipeline and serving through the same Context every middleware
// above uses.
func (p *Pipeline) AsPoolHandler(final HandlerFunc) func(ctx context.Context, req *httpmsg.Request, resp *httpmsg.Response) {
	return func(_ context.Context, req *httpmsg.Request, resp *httpmsg.Response) {
		mctx := acquireContext(req, resp)
		p.Execute(mctx, final)
		releaseContext(mctx)
	}
}
