package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/strategybench/internal/llm/transport"
)

type stubProvider struct {
	name     string
	complete func(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return p.complete(ctx, req)
}

type stubRouter struct{ provider transport.Provider }

func (r stubRouter) Pick(name string) (transport.Provider, error) {
	if r.provider == nil || r.provider.Name() != name {
		return nil, errors.New("unknown provider " + name)
	}
	return r.provider, nil
}

// TestChain_Order verifies that the first middleware runs outermost.
func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) transport.Middleware {
		return func(next transport.Handler) transport.Handler {
			return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				order = append(order, name+">")
				resp, err := next.Handle(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			})
		}
	}
	core := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		order = append(order, "core")
		return &transport.Response{Content: "ok"}, nil
	})

	h := transport.Chain(core, tag("a"), tag("b"))
	resp, err := h.Handle(context.Background(), &transport.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"a>", "b>", "core", "<b", "<a"}, order)
}

// TestCoreHandler_Routes verifies provider selection and latency capture.
func TestCoreHandler_Routes(t *testing.T) {
	p := &stubProvider{name: "openai", complete: func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Content: "echo: " + req.User}, nil
	}}
	h := transport.NewCoreHandler(stubRouter{provider: p})

	resp, err := h.Handle(context.Background(), &transport.Request{Provider: "openai", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Content)

	_, err = h.Handle(context.Background(), &transport.Request{Provider: "anthropic"})
	assert.ErrorContains(t, err, "failed to select provider")
}

// TestCoreHandler_AttemptTimeout verifies that an attempt deadline is
// reported as a timeout while the caller's cancellation passes through.
func TestCoreHandler_AttemptTimeout(t *testing.T) {
	p := &stubProvider{name: "openai", complete: func(ctx context.Context, _ *transport.Request) (*transport.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := transport.NewCoreHandler(stubRouter{provider: p})

	_, err := h.Handle(context.Background(), &transport.Request{Provider: "openai", Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrAttemptTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Handle(ctx, &transport.Request{Provider: "openai", Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, transport.ErrAttemptTimeout)
}

// TestGenerateIdemKey verifies key stability and sensitivity.
func TestGenerateIdemKey(t *testing.T) {
	base := transport.Request{
		Provider: "OpenAI ", Model: "gpt-4", System: "sys", User: "q",
		MaxTokens: 2000, Temperature: 0.7, Timeout: time.Minute,
	}

	k1, err := transport.GenerateIdemKey(&base)
	require.NoError(t, err)
	assert.Len(t, k1.String(), 64)

	same := base
	same.Provider = "openai"
	same.Timeout = time.Second
	k2, err := transport.GenerateIdemKey(&same)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "provider case and timeout do not affect the key")

	for _, mutate := range []func(r *transport.Request){
		func(r *transport.Request) { r.User = "q2" },
		func(r *transport.Request) { r.System = "" },
		func(r *transport.Request) { r.Temperature = 0 },
		func(r *transport.Request) { r.Model = "gpt-4o" },
		func(r *transport.Request) { r.MaxTokens = 10 },
	} {
		changed := base
		mutate(&changed)
		k, err := transport.GenerateIdemKey(&changed)
		require.NoError(t, err)
		assert.NotEqual(t, k1, k)
	}
}
