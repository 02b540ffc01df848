// Package httpapi is the HTTP surface of the auth engine: session endpoints,
// credential lifecycle, federation, role administration, and the operational
// probes. Handlers stay thin; every decision lives in internal/auth.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"himmel.app/internal/auth"
	"himmel.app/internal/obs"
)

// ReadyProbe — readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the surface-level knobs; everything semantic belongs to
// auth.Config.
type Config struct {
	Version       string
	SecureCookies bool

	// Global per-IP limiter.
	RateBurst  int
	RatePerSec int

	// Per-identifier sign-in throttle.
	SignInBurst  int
	SignInPerMin float64
}

// API — HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	cfg        Config

	auth     *auth.Service
	verifier auth.GoogleVerifier
	throttle *signInThrottle
}

func New(svc *auth.Service, verifier auth.GoogleVerifier, rp ReadyProbe, cfg Config) *API {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.SignInBurst <= 0 {
		cfg.SignInBurst = 5
	}
	if cfg.SignInPerMin <= 0 {
		cfg.SignInPerMin = 10
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		cfg:        cfg,
		auth:       svc,
		verifier:   verifier,
		throttle:   newSignInThrottle(cfg.SignInBurst, cfg.SignInPerMin),
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session + credential lifecycle
	a.mux.HandleFunc("/v1/auth/sign-up", a.handleSignUp)
	a.mux.HandleFunc("/v1/auth/sign-in", a.handleSignIn)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/sign-out", a.handleSignOut)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password/", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/google", a.handleGoogleSignIn)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	// role administration
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleByID)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found", "NOT_FOUND")
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = obs.Instrument(h)
	if a.cfg.RateBurst > 0 && a.cfg.RatePerSec > 0 {
		h = RateLimit(h, a.cfg.RateBurst, a.cfg.RatePerSec)
	}
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "himmel-api",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "himmel-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.cfg.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData is the success envelope: {"message": ..., "data": ...}.
func writeData(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, map[string]any{
		"message": message,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg, machineCode string) {
	payload := map[string]any{
		"error": msg,
		"code":  machineCode,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError maps engine sentinels onto HTTP statuses with their
// machine-readable codes.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	code := auth.Code(err)
	switch {
	case errors.Is(err, auth.ErrNoTokenProvided):
		writeError(w, r, http.StatusUnauthorized, "authentication required", code)
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired", code)
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token", code)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials", code)
	case errors.Is(err, auth.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, "access denied", code)
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusUnauthorized, "user not found", code)
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found", code)
	case errors.Is(err, auth.ErrDuplicateEntry):
		writeError(w, r, http.StatusConflict, "duplicate entry", code)
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		writeError(w, r, http.StatusBadRequest, "invalid or expired token", code)
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrEmptyPassword),
		errors.Is(err, auth.ErrInvalidPermission):
		writeError(w, r, http.StatusBadRequest, err.Error(), code)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error", code)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
}
