package http

import (
	"context"
	"net/http"
	"time"
)

const DefaultRequestTimeout = 10 * time.Second

// Timeout gives every request context a deadline of d unless it already has
// one. A non-positive d uses DefaultRequestTimeout.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); !ok {
				ctx, cancel := context.WithTimeout(r.Context(), d)
				defer cancel()
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
