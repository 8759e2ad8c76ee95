package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// limiterTTL is how long an idle client's limiter is kept.
const limiterTTL = time.Minute

// ipLimiter holds one token bucket per client IP.
type ipLimiter struct {
	limit float64
	burst int
	cache *ttlcache.Cache[string, *rate.Limiter]
}

func newIPLimiter(limit float64, burst int) *ipLimiter {
	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](limiterTTL),
	)
	go cache.Start()
	return &ipLimiter{limit: limit, burst: burst, cache: cache}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	item, _ := l.cache.GetOrSet(ip, rate.NewLimiter(rate.Limit(l.limit), l.burst))
	return item.Value()
}

func (l *ipLimiter) close() {
	l.cache.Stop()
}

// clientIP is the first X-Forwarded-For entry, else the remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited rejects requests over the client's budget with 429.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiter.get(clientIP(r))
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			// Not proceeding; give the token back.
			res.Cancel()
			s.metrics.RateLimited()
			s.logger.Warn("rate limit exceeded", "path", r.URL.Path, "remote_addr", r.RemoteAddr)

			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%v", limiter.Limit()))
			w.Header().Set("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.Burst()))
			s.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": http.StatusText(http.StatusTooManyRequests)})
			return
		}
		next.ServeHTTP(w, r)
	})
}
