package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const requestIDHeader = "X-Request-ID"

// Upstream proxies may send their own ids. Anything outside this shape is
// replaced so log fields stay greppable.
var acceptedRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID assigns the request id, echoes it in the response and stores a
// child of base carrying request_id and client_ip on the context.
func RequestID(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(requestIDHeader)
			if !acceptedRequestID.MatchString(rid) {
				rid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, rid)

			l := base.With().
				Str("request_id", rid).
				Str("client_ip", ClientIP(r)).
				Logger()
			ctx := l.WithContext(context.WithValue(r.Context(), requestIDKey, rid))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

// LoggerFromContext returns the request logger. Outside RequestID it is the
// zerolog disabled logger.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
