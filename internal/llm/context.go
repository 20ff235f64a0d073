package llm

import "context"

type callKey struct{}

// CallInfo labels a provider call in the request log.
type CallInfo struct {
	Purpose   string
	SessionID string
}

func callFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callKey{}).(CallInfo)
	return info
}

// WithPurpose labels provider calls made with ctx, e.g. "chat" or
// "verification". Any session already attached is kept.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	info := callFrom(ctx)
	info.Purpose = purpose
	return context.WithValue(ctx, callKey{}, info)
}

// WithSession ties provider calls made with ctx to a tutoring session.
func WithSession(ctx context.Context, sessionID string) context.Context {
	info := callFrom(ctx)
	info.SessionID = sessionID
	return context.WithValue(ctx, callKey{}, info)
}

// PurposeFrom returns the purpose attached to ctx, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if p := callFrom(ctx).Purpose; p != "" {
		return p
	}
	return "unknown"
}

// SessionFrom returns the session attached to ctx, or "".
func SessionFrom(ctx context.Context) string {
	return callFrom(ctx).SessionID
}
