package identity

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// FromContext returns the authenticated principal stored by Middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	who, ok := ctx.Value(ctxKey{}).(*Identity)
	return who, ok
}

// WithIdentity stores a principal in the context. Exposed for tests.
func WithIdentity(ctx context.Context, who *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, who)
}

// Middleware verifies the bearer token and stores the principal in the
// request context. Requests without a valid token get 401 before reaching
// the handler.
func Middleware(provider Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w, "Bearer token required")
				return
			}
			who, err := provider.VerifyAccessToken(r.Context(), token)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), who)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + msg + `"}`))
}
