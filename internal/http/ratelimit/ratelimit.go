package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
)

// KeyFunc picks the bucket a request is charged to. Returning "" falls back
// to the client IP.
type KeyFunc func(r *http.Request) string

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu             sync.Mutex
	limiters       map[string]*limiterEntry
	rate           rate.Limit
	burst          int
	idle           time.Duration
	maxEntries     int
	trustedProxies []*net.IPNet
	key            KeyFunc
	now            func() time.Time
	stop           chan struct{}
	done           chan struct{}
	stopOnce       sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New creates a limiter allowing r requests per second with burst b. Buckets
// idle for longer than idle are dropped. trustedProxies lists CIDRs or IPs
// whose forwarding headers are honoured; empty trusts none.
func New(r rate.Limit, b int, idle time.Duration, trustedProxies []string, key KeyFunc) *Limiter {
	l := &Limiter{
		limiters:       make(map[string]*limiterEntry),
		rate:           r,
		burst:          b,
		idle:           idle,
		maxEntries:     10000,
		trustedProxies: parseProxies(trustedProxies),
		key:            key,
		now:            time.Now,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if idle > 0 {
		go l.sweep()
	} else {
		close(l.done)
	}
	return l
}

func parseProxies(entries []string) []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range entries {
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			out = append(out, ipnet)
			continue
		}
		ip := net.ParseIP(cidr)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out
}

// Stop ends the background sweeper and waits for it to exit. It is safe to
// call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Allow charges one request to key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxEntries {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

func (l *Limiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range l.limiters {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey, oldest = k, e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(l.limiters, oldestKey)
	}
}

func (l *Limiter) sweep() {
	defer close(l.done)
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	for k, e := range l.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(l.limiters, k)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if l.key != nil {
				key = l.key(r)
			}
			if key == "" {
				key = "ip:" + l.ClientIP(r)
			}

			if !l.Allow(key) {
				w.Header().Set("Retry-After", "1")
				httperrors.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller's address, honouring X-Forwarded-For and
// X-Real-IP only when the direct peer is a trusted proxy.
func (l *Limiter) ClientIP(r *http.Request) string {
	remote := parseIP(r.RemoteAddr)
	if remote == nil || !l.trusted(remote) {
		if remote == nil {
			return r.RemoteAddr
		}
		return remote.String()
	}

	// Leftmost entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return remote.String()
}

func (l *Limiter) trusted(ip net.IP) bool {
	for _, n := range l.trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
