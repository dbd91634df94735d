package fetch

import (
	"context"
	"net/http"
	"sort"
)

// Handler invokes the remainder of the middleware chain, terminating at the
// transport-calling core (spec.md §4.7).
type Handler func(ctx context.Context, req *http.Request) (*http.Response, error)

// Middleware wraps a Handler. It may inspect/modify the request before
// calling next, inspect/modify the response next returns, short-circuit by
// returning a response without calling next, or wrap errors.
type Middleware func(ctx context.Context, req *http.Request, next Handler) (*http.Response, error)

// middlewareEntry pairs a Middleware with its priority, per spec.md §3's
// MiddlewareEntry.
type middlewareEntry struct {
	mw       Middleware
	priority int
	seq      int // insertion order, for tie-breaking
}

// Pipeline is an ordered sequence of middleware, compiled once per send.
// Higher priority runs first (outer); ties break by insertion order.
type Pipeline struct {
	entries []middlewareEntry
	nextSeq int
}

// NewPipeline builds an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Use appends m at priority (default ordering position).
func (p *Pipeline) Use(m Middleware, priority int) *Pipeline {
	p.entries = append(p.entries, middlewareEntry{mw: m, priority: priority, seq: p.nextSeq})
	p.nextSeq++
	return p
}

// Prepend installs m at maxPriority+1, per spec.md §4.7's prepend semantics.
func (p *Pipeline) Prepend(m Middleware) *Pipeline {
	max := 0
	for i, e := range p.entries {
		if i == 0 || e.priority > max {
			max = e.priority
		}
	}
	return p.Use(m, max+1)
}

// sorted returns entries ordered highest-priority-first, ties by insertion order.
func (p *Pipeline) sorted() []middlewareEntry {
	out := append([]middlewareEntry(nil), p.entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Compile folds the pipeline from the tail inward with core as the
// innermost handler, matching broady-tygor's chainInterceptors fold. An
// empty pipeline short-circuits to core directly.
func (p *Pipeline) Compile(core Handler) Handler {
	entries := p.sorted()
	if len(entries) == 0 {
		return core
	}

	chain := core
	for i := len(entries) - 1; i >= 0; i-- {
		mw := entries[i].mw
		next := chain
		chain = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return mw(ctx, req, next)
		}
	}
	return chain
}
