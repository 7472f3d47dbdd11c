package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/sells-group/floodcover/internal/model"
)

// CallerHeader carries the caller identity. Absent or blank means anonymous.
const CallerHeader = "X-Caller-Principal"

type callerKey struct{}

func callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := model.Principal(strings.TrimSpace(r.Header.Get(CallerHeader)))
		if p == "" {
			p = model.AnonymousPrincipal
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), p)))
	})
}

// WithCaller returns a context carrying p as the caller identity.
func WithCaller(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// Caller returns the identity attached to ctx, or the anonymous identity.
func Caller(ctx context.Context) model.Principal {
	if p, ok := ctx.Value(callerKey{}).(model.Principal); ok && p != "" {
		return p
	}
	return model.AnonymousPrincipal
}
