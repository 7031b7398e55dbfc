package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/clientip"
	"github.com/punktual/server/internal/config"
	"github.com/punktual/server/internal/metrics"
)

type RateLimitTier string

const (
	TierPublic    RateLimitTier = "public"
	TierAPI       RateLimitTier = "api"
	TierTracking  RateLimitTier = "tracking"
	TierSensitive RateLimitTier = "sensitive"
	TierAuth      RateLimitTier = "auth"
)

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimiter keeps one token bucket per (tier, client IP). Buckets hold a
// minute's worth of burst and refill evenly across the minute. State is
// process-local; the click path is also limited in the database.
type RateLimiter struct {
	env   string
	store *limiterStore
	once  sync.Once
}

func NewRateLimiter(cfg config.RateLimitConfig, env string) *RateLimiter {
	return &RateLimiter{
		env: env,
		store: newLimiterStore(map[RateLimitTier]int{
			TierPublic:    cfg.PublicPerMinute,
			TierAPI:       cfg.APIPerMinute,
			TierTracking:  cfg.TrackingPerMinute,
			TierSensitive: cfg.SensitivePerMinute,
			TierAuth:      cfg.AuthPerMinute,
		}),
	}
}

// Limit returns middleware enforcing tier. A tier with a zero limit passes
// everything through.
func (l *RateLimiter) Limit(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := l.store.limiter(tier, clientip.FromRequest(r))
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			reservation := limiter.Reserve()
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				metrics.RateLimited.WithLabelValues(string(tier)).Inc()

				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests",
					fmt.Errorf("rate limit exceeded for tier %s", tier), l.env,
					problem.WithDetail("Rate limit exceeded. Retry later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Stop ends the background eviction loop. Safe to call more than once.
func (l *RateLimiter) Stop() {
	l.once.Do(l.store.stop)
}

func retryAfterSeconds(delay time.Duration) int {
	return int(math.Max(1, math.Ceil(delay.Seconds())))
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	perMinute   map[RateLimitTier]int
	stopCleanup chan struct{}
	now         func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(perMinute map[RateLimitTier]int) *limiterStore {
	store := &limiterStore{
		limiters:    make(map[string]*limiterEntry),
		perMinute:   perMinute,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	go store.cleanupLoop()
	return store
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = s.now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: s.now()}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets idle for longer than limiterTTL. An idle bucket is
// full again by then, so forgetting it changes nothing for the client.
func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterStore) stop() {
	close(s.stopCleanup)
}
