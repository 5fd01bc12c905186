package interceptors

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request ID set by the request-ID
// interceptor or middleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID stores a request ID on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewRequestIDInterceptor propagates the request ID from header, generating
// one when the caller did not send it. The ID is echoed on the response.
func NewRequestIDInterceptor(header string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id := req.Header().Get(header)
			if id == "" {
				id = RequestIDFromContext(ctx)
			}
			if id == "" {
				id = uuid.NewString()
			}

			resp, err := next(WithRequestID(ctx, id), req)
			if resp != nil {
				resp.Header().Set(header, id)
			}
			if err != nil {
				var cerr *connect.Error
				if errors.As(err, &cerr) {
					cerr.Meta().Set(header, id)
				}
			}
			return resp, err
		}
	}
}

// RequestIDMiddleware is the plain HTTP counterpart of
// NewRequestIDInterceptor for non-Connect routes.
func RequestIDMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}
