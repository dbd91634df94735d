package fetch

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineEmptyShortCircuitsToCore(t *testing.T) {
	t.Parallel()
	called := false
	core := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: 200}, nil
	}

	p := NewPipeline()
	resp, err := p.Compile(core)(context.Background(), &http.Request{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestPipelineOrdersByPriorityDescendingThenInsertion(t *testing.T) {
	t.Parallel()
	var order []string

	mw := func(name string) Middleware {
		return func(ctx context.Context, req *http.Request, next Handler) (*http.Response, error) {
			order = append(order, name)
			return next(ctx, req)
		}
	}

	core := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		order = append(order, "core")
		return &http.Response{StatusCode: 200}, nil
	}

	p := NewPipeline()
	p.Use(mw("low"), 1)
	p.Use(mw("high"), 10)
	p.Use(mw("tie-a"), 5)
	p.Use(mw("tie-b"), 5)

	_, err := p.Compile(core)(context.Background(), &http.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "tie-a", "tie-b", "low", "core"}, order)
}

func TestPipelinePrependAssignsMaxPriorityPlusOne(t *testing.T) {
	t.Parallel()
	var order []string
	mw := func(name string) Middleware {
		return func(ctx context.Context, req *http.Request, next Handler) (*http.Response, error) {
			order = append(order, name)
			return next(ctx, req)
		}
	}
	core := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200}, nil
	}

	p := NewPipeline()
	p.Use(mw("first"), 3)
	p.Prepend(mw("prepended"))

	_, err := p.Compile(core)(context.Background(), &http.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"prepended", "first"}, order)
}

func TestPipelineShortCircuit(t *testing.T) {
	t.Parallel()
	coreCalled := false
	core := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		coreCalled = true
		return &http.Response{StatusCode: 200}, nil
	}

	shortCircuit := func(ctx context.Context, req *http.Request, next Handler) (*http.Response, error) {
		return &http.Response{StatusCode: 403}, nil
	}

	p := NewPipeline()
	p.Use(shortCircuit, 0)

	resp, err := p.Compile(core)(context.Background(), &http.Request{})
	require.NoError(t, err)
	assert.False(t, coreCalled)
	assert.Equal(t, 403, resp.StatusCode)
}
