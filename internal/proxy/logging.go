package proxy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"embedproxy/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func withLogging(logger zerolog.Logger, clock func() time.Time, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock()
		logger.Info().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("ua", r.UserAgent()).
			Str("from", clientIP(r)).
			Msg("REQ")

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("took", clock().Sub(start)).
			Msg("RESP")
	})
}

// withCORS opens every response to any origin and answers preflights
// with an empty 200.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRecover turns a handler panic into a JSON 500. The panic text is
// only exposed when debug is set.
func withRecover(logger zerolog.Logger, debug bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}
			msg := fmt.Sprint(rv)
			logger.Error().Str("panic", msg).Str("path", r.URL.Path).Msg("handler panic")

			if !debug {
				msg = "Something went wrong"
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Internal server error",
				"message": msg,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects requests once the shared token bucket is empty.
// A nil limiter disables the check.
func withRateLimit(limiter *rate.Limiter, m metrics.Backend, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			m.IncCounter(metrics.RejectedTotal, 1, metrics.Labels{"reason": "rate_limited"})
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
