package executor

import "context"

// Invocation is the ambient metadata of the agent call that produced the code.
// Executors pass it through untouched; only the layers around them read it.
type Invocation struct {
	ID        string `json:"id"`
	AgentName string `json:"agentName,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Caller    string `json:"caller,omitempty"`
}

type invocationKey struct{}

// WithInvocation returns a copy of ctx carrying inv.
func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFromContext returns the invocation attached to ctx, if any.
func InvocationFromContext(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}
