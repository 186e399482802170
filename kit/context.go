package kit

import "context"

// Transports an endpoint can be reached through.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

// callInfo describes the request an endpoint is serving.
type callInfo struct {
	transport string
	requestID string
}

type callKey struct{}

func infoFrom(ctx context.Context) callInfo {
	ci, _ := ctx.Value(callKey{}).(callInfo)
	return ci
}

// WithTransport records which surface the call came through.
func WithTransport(ctx context.Context, t string) context.Context {
	ci := infoFrom(ctx)
	ci.transport = t
	return context.WithValue(ctx, callKey{}, ci)
}

// GetTransport defaults to TransportHTTP.
func GetTransport(ctx context.Context) string {
	if t := infoFrom(ctx).transport; t != "" {
		return t
	}
	return TransportHTTP
}

func WithRequestID(ctx context.Context, id string) context.Context {
	ci := infoFrom(ctx)
	ci.requestID = id
	return context.WithValue(ctx, callKey{}, ci)
}

func GetRequestID(ctx context.Context) string { return infoFrom(ctx).requestID }
