package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// adminRateLimitRequests and adminRateLimitWindow bound how often a single
// caller may hit the admin API; node-to-node traffic doesn't go through
// this server, so these only throttle external callers of the cluster's
// management surface.
const (
	adminRateLimitRequests = 100
	adminRateLimitWindow   = time.Minute
)

// rateLimiter is a token-bucket limiter keyed by caller IP.
type rateLimiter struct {
	mu      sync.RWMutex
	callers map[string]*callerBucket

	requests int           // requests per window
	window   time.Duration // refill window
}

// callerBucket tracks one caller's remaining tokens.
type callerBucket struct {
	tokens   int
	lastSeen time.Time
}

// newRateLimiter builds a limiter granting requests tokens per window,
// refilled continuously based on elapsed time since the caller's last hit.
func newRateLimiter(requests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		callers:  make(map[string]*callerBucket),
		requests: requests,
		window:   window,
	}
}

// allow reports whether callerIP may proceed, consuming a token if so.
func (rl *rateLimiter) allow(callerIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	bucket, exists := rl.callers[callerIP]
	if !exists {
		rl.callers[callerIP] = &callerBucket{tokens: rl.requests - 1, lastSeen: now}
		return true
	}

	elapsed := now.Sub(bucket.lastSeen)
	refill := int(elapsed.Nanoseconds() * int64(rl.requests) / int64(rl.window.Nanoseconds()))
	bucket.tokens += refill
	if bucket.tokens > rl.requests {
		bucket.tokens = rl.requests
	}
	bucket.lastSeen = now

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// cleanup drops callers that haven't been seen in two windows.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window * 2)
	for ip, bucket := range rl.callers {
		if bucket.lastSeen.Before(cutoff) {
			delete(rl.callers, ip)
		}
	}
}

// cleanupLoop periodically sweeps stale caller entries until ctx is done,
// so the limiter's memory doesn't grow with every distinct client that
// ever hit the admin API.
func (rl *rateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// loggingMiddleware logs each admin API request at Info, including the
// node-facing fields an operator needs to correlate a request with the
// cluster activity it triggered.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    wrapped.statusCode,
			"duration":  time.Since(start).String(),
			"remoteIp":  s.getRealIP(r),
			"userAgent": r.UserAgent(),
		}).Info("admin API request")
	})
}

// metricsMiddleware records request counts and latency against the
// cluster's Prometheus registry, grouped by route pattern rather than raw
// path so templated routes like /health/nodes/{id} don't fragment into one
// series per node id.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := s.getRoutePattern(r)
		s.metricsRegistry.RecordHTTPRequest(
			r.Method,
			route,
			fmt.Sprintf("%d", wrapped.statusCode),
			time.Since(start),
		)
	})
}

// recoveryMiddleware turns a panicking handler into a 500 response instead
// of taking down the whole admin server; a panic in one request's handler
// must never interrupt another in-flight request against the cluster.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithFields(map[string]interface{}{
					"method":   r.Method,
					"path":     r.URL.Path,
					"remoteIp": s.getRealIP(r),
					"stack":    string(debug.Stack()),
				}).Error("admin handler panic", fmt.Errorf("panic: %v", rec))

				s.metricsRegistry.RecordPanic("admin_handler")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware applies the configured AllowedOrigins policy to every
// admin API response and answers CORS preflight requests directly.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.isOriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(s.cfg.Server.AllowedOrigins) == 0 || s.cfg.Server.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// unauthenticatedPrefixes lists admin routes reachable without an API key:
// liveness/readiness probes and the Prometheus scrape endpoint need to
// work before an operator has wired credentials into a monitoring system.
var unauthenticatedPrefixes = []string{"/health", "/metrics"}

func isUnauthenticatedPath(path string) bool {
	for _, prefix := range unauthenticatedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authMiddleware enforces the configured API key on every admin route
// except the unauthenticated ones, accepting the key via X-API-Key or a
// Bearer Authorization header.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUnauthenticatedPath(r.URL.Path) || !s.cfg.Server.APIKeyAuth {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		if apiKey == "" || apiKey != s.cfg.Server.APIKey {
			s.logger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remoteIp": s.getRealIP(r),
			}).Warn("rejected admin request with invalid API key")

			s.metricsRegistry.RecordAuthFailure("api_key")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			if _, err := w.Write([]byte(`{"error":"Unauthorized","message":"Valid API key required"}`)); err != nil {
				s.logger.WithField("error", err.Error()).Error("failed to write unauthorized response", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles callers of the admin API using the
// server's shared limiter; health probes are exempt so an external
// monitoring system polling /health/ping can't get itself rate-limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		callerIP := s.getRealIP(r)

		if !s.limiter.allow(callerIP) {
			s.logger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remoteIp": callerIP,
			}).Warn("admin API rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", s.limiter.requests))
			w.Header().Set("X-RateLimit-Window", s.limiter.window.String())
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte(`{"error":"Rate limit exceeded","message":"Too many requests. Please try again later."}`)); err != nil {
				s.logger.Error("failed to write rate limit response", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code a
// handler ultimately writes, for logging and metrics middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getRealIP resolves the caller's address, preferring proxy-supplied
// headers over the raw connection address since the admin API is commonly
// fronted by a load balancer.
func (s *Server) getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if cfip := r.Header.Get("CF-Connecting-IP"); cfip != "" {
		return cfip
	}

	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// getRoutePattern returns the mux route template matched for r (e.g.
// "/health/nodes/{id}"), falling back to the raw path when mux has no
// match, so metrics group by route shape rather than by literal path.
func (s *Server) getRoutePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return r.URL.Path
}

// isOriginAllowed reports whether origin is permitted by the configured
// CORS policy, supporting an exact match, "*", or a "*.domain" wildcard.
func (s *Server) isOriginAllowed(origin string) bool {
	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			domain := allowed[2:]
			if strings.HasSuffix(origin, "."+domain) || origin == domain {
				return true
			}
		}
	}
	return false
}
