// Package ratelimit implements a token bucket rate limiter for per-host politeness.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/freelance-crawler/internal/metrics"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	hostRates    map[string]rate.Limit
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// HostRPS overrides DefaultRPS for specific hostnames.
	HostRPS map[string]float64
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	hosts := make(map[string]rate.Limit, len(cfg.HostRPS))
	for host, rps := range cfg.HostRPS {
		hosts[strings.ToLower(host)] = toLimit(rps)
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		hostRates:    hosts,
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: burst,
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		r, override := l.hostRates[host]
		if !override {
			r = l.defaultRate
		}
		limiter = rate.NewLimiter(r, l.defaultBurst)
		l.limiters[host] = limiter
	}
	return limiter
}
