package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
)

// CORS creates the CORS middleware for the dashboard origin. Origins are
// left open by default; production deployments restrict them via config.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

const (
	// Idle clients are dropped from the limiter map so long-running
	// servers do not accumulate an entry per IP ever seen.
	limiterIdleTTL       = 3 * time.Minute
	limiterSweepInterval = time.Minute
)

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	mu        sync.Mutex
	clients   map[string]*ipClient
	lastSweep time.Time
	rps       float64
	burst     int
}

func newIPLimiters(cfg config.RateLimitConfig) *ipLimiters {
	return &ipLimiters{
		clients:   make(map[string]*ipClient),
		lastSweep: time.Now(),
		rps:       float64(cfg.RequestsPerSecond),
		burst:     cfg.Burst,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		l.sweepLocked(now)
	}
	entry, exists := l.clients[ip]
	if !exists {
		entry = &ipClient{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *ipLimiters) sweepLocked(now time.Time) {
	for ip, entry := range l.clients {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// RateLimit creates a per-IP rate limiting middleware. The dashboard polls
// on a fixed interval; anything hammering the observability surface harder
// than the configured rate is shed early. Entries for idle IPs are swept
// periodically.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := newIPLimiters(cfg)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
