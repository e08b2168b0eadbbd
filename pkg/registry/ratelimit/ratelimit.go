// Package ratelimit throttles registry requests per host.
//
// Each host gets a token bucket. A 429 response halves the bucket's rate, with
// further 429s inside the cooldown window ignored so a burst of concurrent
// rejections counts once. Recover raises the rate again towards the configured
// ceiling after a request went through cleanly.
package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// DefaultCooldown is the window in which repeated 429s from a host back off once.
const DefaultCooldown = time.Second

// errRateLimited indicates a request could not be admitted before its context ended.
var errRateLimited = errors.New("rate limited")

// Limiters tracks rate limits for an arbitrary set of hosts.
type Limiters struct {
	RPS       float64       // Ceiling in requests per second.
	Burst     int           // Bucket size.
	Cooldown  time.Duration // Window in which repeated 429s back off once.
	perHost   map[string]*rate.Limiter
	backedOff map[string]time.Time
	mu        sync.Mutex
}

// New returns Limiters admitting rps requests per second per host.
func New(rps float64, burst int) *Limiters {
	if burst < 1 {
		burst = 1
	}

	return &Limiters{RPS: rps, Burst: burst, Cooldown: DefaultCooldown}
}

func (l *Limiters) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}

	if limit > l.RPS {
		return l.RPS
	}

	return limit
}

// limiter returns the bucket for host, creating it on first use.
// Callers must hold mu.
func (l *Limiters) limiter(host string) *rate.Limiter {
	if l.perHost == nil {
		l.perHost = map[string]*rate.Limiter{}
	}

	limiter, ok := l.perHost[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
		l.perHost[host] = limiter
	}

	return limiter
}

// Limit returns the current rate for host.
func (l *Limiters) Limit(host string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return float64(l.limiter(host).Limit())
}

// BackOff reduces the limit for host.
func (l *Limiters) BackOff(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter := l.limiter(host)
	oldLimit := float64(limiter.Limit())

	newLimit := l.clip(oldLimit / backOffBy)
	if oldLimit != newLimit {
		logrus.WithFields(logrus.Fields{
			"host":  host,
			"limit": fmt.Sprintf("%.2f", newLimit),
		}).Info("Reducing registry rate limit")
	}

	limiter.SetLimit(rate.Limit(newLimit))
}

// BackOffOnce reduces the limit for host unless it was already reduced within
// the cooldown window.
func (l *Limiters) BackOffOnce(host string) {
	l.mu.Lock()

	if l.backedOff == nil {
		l.backedOff = map[string]time.Time{}
	}

	now := time.Now()
	if last, ok := l.backedOff[host]; ok && now.Sub(last) < l.Cooldown {
		l.mu.Unlock()
		logrus.WithField("host", host).Debug("Registry rate limit already reduced")

		return
	}

	l.backedOff[host] = now
	l.mu.Unlock()

	l.BackOff(host)
}

// Recover bumps the limit for host back towards RPS.
func (l *Limiters) Recover(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.perHost[host]
	if !ok {
		return
	}

	oldLimit := float64(limiter.Limit())

	newLimit := l.clip(oldLimit * recoverBy)
	if newLimit != oldLimit {
		logrus.WithFields(logrus.Fields{
			"host":  host,
			"limit": fmt.Sprintf("%.2f", newLimit),
		}).Debug("Increasing registry rate limit")
	}

	limiter.SetLimit(rate.Limit(newLimit))
}

// RoundTripper wraps rt so every request waits for its host's bucket.
// A nil rt uses http.DefaultTransport.
func (l *Limiters) RoundTripper(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}

	return &roundTripper{limiters: l, next: rt}
}

type roundTripper struct {
	limiters *Limiters
	next     http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host

	t.limiters.mu.Lock()
	limiter := t.limiters.limiter(host)
	t.limiters.mu.Unlock()

	if err := limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %w", errRateLimited, err)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		t.limiters.BackOffOnce(host)
	} else if resp.StatusCode < http.StatusBadRequest {
		t.limiters.Recover(host)
	}

	return resp, nil
}
