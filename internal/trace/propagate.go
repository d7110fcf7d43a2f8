package trace

import (
	"context"
	"encoding/json"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Middleware continues the caller's trace from request headers, or starts a new one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := continueTrace(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// ExtractFromJSON reads an optional trace_id field from a WebSocket message.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return continueTrace(msg.TraceID, ""), true
}

func continueTrace(traceID, parentSpan string) Context {
	if traceID == "" {
		traceID = newTraceID()
	}
	return Context{TraceID: traceID, SpanID: newSpanID(), ParentSpanID: parentSpan}
}

// UnaryClientInterceptor copies the trace context into outgoing gRPC metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(outgoing(ctx), method, req, reply, cc, opts...)
	}
}

func outgoing(ctx context.Context) context.Context {
	ctx, tc := EnsureContext(ctx)
	pairs := []string{TraceIDKey, tc.TraceID, SpanIDKey, tc.SpanID}
	if tc.ParentSpanID != "" {
		pairs = append(pairs, ParentSpanIDKey, tc.ParentSpanID)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
