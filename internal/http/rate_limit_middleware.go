package httpx

import (
	"net/http"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// rateRule is one route's budget: at most limit requests per caller per window.
type rateRule struct {
	route  string
	limit  int
	window time.Duration
}

func (rule rateRule) normalized() rateRule {
	if rule.window <= 0 {
		rule.window = time.Minute
	}
	return rule
}

// RateLimiter decides whether a caller still fits in a route's current window.
type RateLimiter interface {
	Allow(rule rateRule, caller string) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type callerWindow struct {
	count int
	ends  time.Time
}

// routeWindows holds the open windows of every caller for a single route.
type routeWindows map[string]callerWindow

type memoryRateLimiter struct {
	mu     sync.Mutex
	routes map[string]routeWindows
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryRateLimiter returns a process-local fixed-window limiter.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		routes: make(map[string]routeWindows),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(rule rateRule, caller string) rateDecision {
	if rule.limit <= 0 {
		return rateDecision{allowed: true}
	}
	rule = rule.normalized()
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	windows, ok := rl.routes[rule.route]
	if !ok {
		windows = make(routeWindows)
		rl.routes[rule.route] = windows
	}
	w, open := windows[caller]
	if !open || now.After(w.ends) {
		w = callerWindow{ends: now.Add(rule.window)}
	}
	if w.count >= rule.limit {
		return rateDecision{count: w.count, windowEnd: w.ends}
	}
	w.count++
	windows[caller] = w
	return rateDecision{allowed: true, count: w.count, windowEnd: w.ends}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops closed windows and routes left with none.
func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for route, windows := range rl.routes {
		for caller, w := range windows {
			if now.After(w.ends) {
				delete(windows, caller)
			}
		}
		if len(windows) == 0 {
			delete(rl.routes, route)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	rule := rateRule{route: route, limit: limit, window: window}
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.admitRate(w, req, rule, keyFn) {
			return
		}
		next(w, req)
	}
}

// allow applies one limit to req and writes the 429 response when the
// caller is over it.
func (r *Router) allow(w http.ResponseWriter, req *http.Request, route string, limit int, window time.Duration, keyFn func(*http.Request) string) bool {
	return r.admitRate(w, req, rateRule{route: route, limit: limit, window: window}, keyFn)
}

func (r *Router) admitRate(w http.ResponseWriter, req *http.Request, rule rateRule, keyFn func(*http.Request) string) bool {
	if rule.limit <= 0 || r.limiter == nil {
		return true
	}
	caller := keyFn(req)
	if caller == "" {
		caller = rateLimitKeyIP(req)
	}
	decision := r.limiter.Allow(rule, caller)
	r.applyRateHeaders(w, rule.limit, decision)
	if decision.allowed {
		return true
	}
	label := rule.route
	if label == "" {
		label = req.URL.Path
	}
	r.metrics.RateLimitHit(label)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, rateLimitKeyUser, next))
}

func rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host := clientIP(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
