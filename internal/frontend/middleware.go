package frontend

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coalmine/sluice/pkg/log"
)

// chain wraps h with each middleware in order, outermost first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// corsMiddleware allows browser-hosted dashboards to talk to the queue
// server from a different origin under a permissive development CORS
// policy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one structured line per request through the
// shared Logger facade instead of the standard library's log package.
func loggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := startTimer()
			next.ServeHTTP(w, r)
			logger.Info("http request",
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.F("elapsed", elapsed(start)),
			)
		})
	}
}

// startTimer/elapsed exist only so loggingMiddleware never calls time.Now
// more than once per request on two different code paths; kept trivial on
// purpose.
func startTimer() time.Time                 { return time.Now() }
func elapsed(start time.Time) time.Duration { return time.Since(start) }

// limiterSet hands out one rate.Limiter per remote address instead of one
// shared global limiter, so a noisy client can't starve the others.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = l
	}
	return l
}

// rateLimitMiddleware rejects requests once a remote address exceeds its
// token bucket.
func rateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	set := newLimiterSet(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !set.get(r.RemoteAddr).Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
