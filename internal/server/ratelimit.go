package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docintake/constants"
)

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	ips       map[string]*ipLimiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstRate int
	idle      time.Duration
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if b <= 0 {
		b = 1
	}
	return &IPRateLimiter{ips: make(map[string]*ipLimiter), rateLimit: r, burstRate: b, idle: 10 * time.Minute}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	l, exists := i.ips[ip]
	if !exists {
		if len(i.ips) > 4096 {
			i.evict(now)
		}
		l = &ipLimiter{limiter: rate.NewLimiter(i.rateLimit, i.burstRate)}
		i.ips[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (i *IPRateLimiter) evict(now time.Time) {
	for ip, l := range i.ips {
		if now.Sub(l.lastSeen) > i.idle {
			delete(i.ips, ip)
		}
	}
}

// Middleware rejects callers over their budget with 429.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.GetLimiter(clientIP(r)).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Code: constants.ErrCodeRateLimited, Message: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
