package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"famfinance/internal/log"
	"famfinance/internal/metrics"
	"famfinance/internal/models"
	"famfinance/internal/security"
	"famfinance/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	SessionContextKey ContextKey = "session"
	AccessContextKey  ContextKey = "access"
)

// Session is the authenticated caller attached to a request
type Session struct {
	Identity service.Identity
	Claims   *security.Claims
	// FromCookie is set when the token came from the session cookie, which makes
	// mutating requests subject to CSRF checks
	FromCookie bool
}

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService   *service.AuthService
	accessService *service.AccessService
	csrf          *security.CSRFGenerator
	limiter       *security.RateLimiter
	cronSecret    string
	trustProxy    bool
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService, accessService *service.AccessService,
	csrf *security.CSRFGenerator, limiter *security.RateLimiter, cronSecret string, trustProxy bool) *Middleware {
	return &Middleware{
		authService:   authService,
		accessService: accessService,
		csrf:          csrf,
		limiter:       limiter,
		cronSecret:    cronSecret,
		trustProxy:    trustProxy,
	}
}

// RequireAuth is middleware that requires a valid session token, taken from the
// Authorization header or the session cookie
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: ErrUnauthorized})
			return
		}

		identity, claims, err := m.authService.Authenticate(token)
		if err != nil {
			if fromCookie {
				http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
			}
			respondServiceError(w, r, err)
			return
		}

		if fromCookie && isMutating(r.Method) && !m.csrf.ValidateToken(claims.ID, r.Header.Get(CSRFHeaderName)) {
			respondWithError(w, r, http.StatusForbidden, ErrInvalidCSRFToken, "", nil)
			return
		}

		logger := log.FromContext(r.Context()).With(log.FieldUserID, identity.UserID)
		ctx := context.WithValue(r.Context(), SessionContextKey, &Session{Identity: identity, Claims: claims, FromCookie: fromCookie})
		ctx = log.WithContext(ctx, logger)
		next(w, r.WithContext(ctx))
	}
}

// RequirePermission authenticates the caller and resolves their family and role.
// The acting family is the caller's primary family unless the X-Family-ID header
// names another one they belong to.
func (m *Middleware) RequirePermission(perm models.Permission, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		session := GetSessionFromContext(r.Context())

		var (
			ac  *models.AccessContext
			err error
		)
		if header := strings.TrimSpace(r.Header.Get(FamilyHeaderName)); header != "" {
			familyID, parseErr := strconv.ParseInt(header, 10, 64)
			if parseErr != nil || familyID <= 0 {
				respondJSON(w, http.StatusForbidden, errorResponse{Error: ErrUnauthorized})
				return
			}
			ac, err = m.accessService.RequireFamily(r.Context(), session.Identity, familyID, perm)
		} else {
			ac, err = m.accessService.Require(r.Context(), session.Identity, perm)
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		logger := log.FromContext(r.Context()).With(log.FieldFamilyID, ac.Family.ID)
		ctx := context.WithValue(r.Context(), AccessContextKey, ac)
		ctx = log.WithContext(ctx, logger)
		next(w, r.WithContext(ctx))
	})
}

// RateLimit rejects clients that exceed the configured request rate
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := security.GetClientIP(r, m.trustProxy)
		allowed, retryAfter := m.limiter.Allow(ip)
		if !allowed {
			metrics.RateLimited.Inc()
			log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
				"rate limit exceeded", log.FieldClientIP, ip, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: ErrTooManyRequests})
			return
		}
		next(w, r)
	}
}

// RequireCron accepts only requests bearing the cron secret
func (m *Middleware) RequireCron(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !security.ValidateBearer(r.Header.Get("Authorization"), m.cronSecret) {
			log.FromContext(r.Context()).WithComponent(log.ComponentCron).WarnContext(r.Context(),
				"rejected cron request", log.FieldClientIP, security.GetClientIP(r, m.trustProxy), log.FieldPath, r.URL.Path)
			respondJSON(w, http.StatusUnauthorized, errorResponse{Error: ErrUnauthorized})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging middleware logs each request and records its metrics. It must wrap the
// mux directly so the matched route pattern is visible after dispatch.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, r.Method, rec.status, elapsed)
		log.FromContext(r.Context()).LogHTTPEnd(r.Context(), r, rec.status, elapsed.Milliseconds(), security.GetClientIP(r, m.trustProxy))
	})
}

// RequestID returns the inbound X-Request-ID or a fresh one
func RequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" && len(id) <= 64 {
		return id
	}
	return security.GenerateID()
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(SessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetAccessFromContext retrieves the resolved access context from the request context
func GetAccessFromContext(ctx context.Context) *models.AccessContext {
	ac, ok := ctx.Value(AccessContextKey).(*models.AccessContext)
	if !ok {
		return nil
	}
	return ac
}

func sessionToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token), false
		}
		return "", false
	}
	if cookie, err := r.Cookie(security.SessionCookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
