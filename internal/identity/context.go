// Package identity carries the caller identity established by the hosting
// gateway. The registry never authenticates anyone itself: it trusts a
// configured request header and places its value on the request context.
package identity

import "context"

type callerKey struct{}

// WithCaller 将调用方身份写入上下文，空字符串不写入。
func WithCaller(ctx context.Context, caller string) context.Context {
	if caller == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext 从上下文中读取调用方身份。
func CallerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}
