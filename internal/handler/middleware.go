package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ops-reports/internal/platform/auth"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// Authenticate resolves the Bearer token to a person id for every request
// routed through it.
func Authenticate(verifier *auth.Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			personID, err := verifier.FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, errors.Wrap(err, errors.ErrCodeUnauthorized, "authentication required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPersonID(r.Context(), personID)))
		})
	}
}

// Timeout bounds each request's context.
func Timeout(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wrote {
		return
	}
	s.status = code
	s.wrote = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

// RequestLogger logs one line per request and recovers from handler panics.
func RequestLogger(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Interface("panic", p).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Handler panic")
					if rec.wrote {
						rec.status = http.StatusInternalServerError
					} else {
						writeError(rec, errors.New(errors.ErrCodeInternal, "internal error"))
					}
				}

				ev := log.Info()
				if rec.status >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", rec.status).
					Dur("duration", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
