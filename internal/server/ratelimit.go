package server

import (
	"cmp"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobcoach/internal/config"
	"jobcoach/internal/errors"
	"jobcoach/internal/observability"

	"golang.org/x/time/rate"
)

// defaultIdleTTL is how long an unused per-client bucket is kept when the
// config sets no window.
const defaultIdleTTL = 10 * time.Minute

// aiPatterns are the routes that call the AI provider. They take
// AICost tokens instead of one.
var aiPatterns = map[string]bool{
	"POST /interviews/{id}/cheatsheet": true,
	"POST /interviews/{id}/outline":    true,
	"POST /interviews/{id}/answers":    true,
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key (IP or API key).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rate    rate.Limit
	burst   int
	aiCost  int
	idleTTL time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
	logger  *errors.Logger
}

// NewRateLimiter creates a limiter refilling RequestsPerMin tokens a
// minute into buckets of BurstCapacity. Idle buckets are dropped after
// Window.
func NewRateLimiter(cfg config.RateLimitConfig, logger *errors.Logger) *RateLimiter {
	if logger == nil {
		logger = errors.Discard()
	}
	m := &RateLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   max(cfg.BurstCapacity, 1),
		aiCost:  max(cfg.AICost, 1),
		idleTTL: cmp.Or(cfg.Window, defaultIdleTTL),
		now:     time.Now,
		done:    make(chan struct{}),
		logger:  logger,
	}

	go m.cleanupRoutine()
	return m
}

// costOf returns the tokens a request takes. The cost is capped at the
// burst so an AI request can always succeed on a full bucket.
func (m *RateLimiter) costOf(r *http.Request) int {
	if aiPatterns[r.Pattern] {
		return min(m.aiCost, m.burst)
	}
	return 1
}

// Take removes n tokens from key's bucket. When the bucket is short it
// takes nothing and returns how long until n tokens are available.
func (m *RateLimiter) Take(key string, n int) (bool, time.Duration) {
	m.mu.Lock()
	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	m.mu.Unlock()

	res := b.limiter.ReserveN(now, n)
	if !res.OK() {
		return false, m.idleTTL
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// GetStats returns current rate limiter statistics
func (m *RateLimiter) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_limiters": len(m.buckets),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
		"ai_cost":         m.aiCost,
		"idle_ttl":        m.idleTTL.String(),
	}
}

func (m *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(m.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

// cleanup drops buckets idle for longer than the idle TTL.
func (m *RateLimiter) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.idleTTL {
			delete(m.buckets, key)
		}
	}
	m.logger.Debug("Rate limiter cleanup completed", "remaining_limiters", len(m.buckets))
}

// Close stops the cleanup goroutine.
func (m *RateLimiter) Close() {
	m.once.Do(func() { close(m.done) })
}

// retryAfter formats a wait as whole seconds, at least one.
func retryAfter(wait time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(wait.Seconds())), 1))
}

// rateLimitMiddleware rejects requests over the per-client budget with 429
// and a Retry-After matching the bucket's refill time.
func (s *Server) rateLimitMiddleware(metrics *observability.Metrics) func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimiter == nil || s.RateLimit == nil || !s.RateLimit.Enabled {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if key == "" {
				next(w, r)
				return
			}

			cost := s.RateLimiter.costOf(r)
			if ok, wait := s.RateLimiter.Take(key, cost); !ok {
				kind, _, _ := strings.Cut(key, ":")
				metrics.RecordRateLimitHit(r.Context(), kind)
				s.Logger.Info("Rate limit exceeded",
					"limiter", kind,
					"endpoint", r.URL.Path,
					"cost", cost,
					"client_ip", getClientIP(r),
					"request_id", requestID(r.Context()))
				w.Header().Set("Retry-After", retryAfter(wait))
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// getRateLimitKey picks the bucket key: the API key when keyed by API
// key and one is present, else the client IP when keyed by IP.
func getRateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey
		}
	}

	if byIP {
		return "ip:" + getClientIP(r)
	}

	return ""
}

// requestAPIKey reads X-API-Key, falling back to a Bearer token.
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if parsed := net.ParseIP(ip); parsed != nil {
			return ip
		}
	}
	return ""
}
