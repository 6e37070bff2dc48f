package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/athlink/internal/gate"
	"github.com/splax/athlink/internal/metrics"
	"github.com/splax/athlink/internal/presence"
	"github.com/splax/athlink/internal/service/auth"
	"github.com/splax/athlink/internal/service/health"
	"github.com/splax/athlink/internal/service/post"
	"github.com/splax/athlink/internal/service/profile"
	"github.com/splax/athlink/internal/ws"
)

// Deps collects everything the router serves.
type Deps struct {
	Logger         *slog.Logger
	Auth           auth.Service
	Profiles       profile.Service
	Health         health.Service
	Posts          post.Service
	Gate           *gate.Gate
	Registry       presence.Registry
	Hub            *ws.Hub
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Limiter        RateLimiter
	FrontendOrigin string
	DBHealth       func(context.Context) error
	CacheHealth    func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	auth        auth.Service
	profiles    profile.Service
	health      health.Service
	posts       post.Service
	gate        *gate.Gate
	registry    presence.Registry
	hub         *ws.Hub
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	origin      string
	dbHealth    func(context.Context) error
	cacheHealth func(context.Context) error
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitPost      = 5
	rateLimitLike      = 20
	rateLimitComment   = 10
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		auth:        deps.Auth,
		profiles:    deps.Profiles,
		health:      deps.Health,
		posts:       deps.Posts,
		gate:        deps.Gate,
		registry:    deps.Registry,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		limiter:     deps.Limiter,
		origin:      strings.TrimRight(strings.TrimSpace(deps.FrontendOrigin), "/"),
		dbHealth:    deps.DBHealth,
		cacheHealth: deps.CacheHealth,
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     r.allowOrigin,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.register()
	return r
}

// ServeHTTP applies CORS and delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if origin := req.Header.Get("Origin"); origin != "" && r.origin != "" && r.allowOrigin(req) {
		headers := w.Header()
		headers.Set("Access-Control-Allow-Origin", origin)
		headers.Set("Access-Control-Allow-Credentials", "true")
		headers.Set("Vary", "Origin")
		if req.Method == http.MethodOptions {
			headers.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			headers.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/profile", r.audit("/profile", r.handlerAuthRate("/profile", rateLimitUserWrite, rateWindowDefault, r.handleOwnProfile)))
	r.mux.HandleFunc("/profiles/", r.audit("/profiles/{id}", r.handlerAuthRate("/profiles", rateLimitUserRead, rateWindowDefault, r.handleProfiles)))
	r.mux.HandleFunc("/health", r.audit("/health", r.handlerAuthRate("/health", rateLimitUserWrite, rateWindowDefault, r.handleHealthIngest)))
	r.mux.HandleFunc("/health/", r.audit("/health/{view}", r.handlerAuthRate("/health/", rateLimitUserRead, rateWindowDefault, r.handleHealthViews)))
	r.mux.HandleFunc("/posts", r.audit("/posts", r.requireAuth(r.handlePosts)))
	r.mux.HandleFunc("/posts/", r.audit("/posts/{id}", r.requireAuth(r.handlePostSubroutes)))
	r.mux.HandleFunc("/presence", r.audit("/presence", r.handlerAuthRate("/presence", rateLimitUserRead, rateWindowDefault, r.handlePresence)))
	r.mux.HandleFunc("/ws", r.audit("/ws", r.withRateLimit("/ws", rateLimitRealtime, rateWindowRealtime, rateLimitKeyIP, r.handleWebsocket)))
	r.mux.HandleFunc("/events", r.audit("/events", r.withRateLimit("/events", rateLimitRealtime, rateWindowRealtime, rateLimitKeyIP, r.handleEventStream)))
}

func (r *Router) allowOrigin(req *http.Request) bool {
	if r.origin == "" {
		return true
	}
	origin := strings.TrimRight(req.Header.Get("Origin"), "/")
	return origin == "" || strings.EqualFold(origin, r.origin)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	check := func(name string, probe func(context.Context) error) {
		if probe == nil {
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := probe(ctx); err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			return
		}
		components[name] = map[string]any{"status": "up"}
	}
	check("database", r.dbHealth)
	check("cache", r.cacheHealth)
	if r.registry != nil {
		components["presence"] = map[string]any{"status": "up", "connected": r.registry.Len()}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		if recorder.hijacked {
			status = http.StatusSwitchingProtocols
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.Request(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int
	hijacked bool
	ctx      context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.hijacked = true
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
