package httpapi

import (
	"net/http"
	"strings"

	"himmel.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Routes below never require a session. Refresh and reset-password carry
// their own token semantics; everything else is anonymous by nature.
var publicPaths = []string{
	"/v1/auth/sign-up",
	"/v1/auth/sign-in",
	"/v1/auth/refresh",
	"/v1/auth/forgot-password",
	"/v1/auth/google",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/v1/auth/reset-password/",
}

// withAuth is the identity gate: it verifies the session token (cookie
// first, then bearer header) and attaches the principal id to the request
// context. It never touches storage.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		userID, err := a.auth.VerifyAccessToken(token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken pulls the access token from the session cookie, falling back
// to the Authorization header for non-browser clients.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r.Header.Get(authHeader))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// mustPrincipal resolves the authenticated principal or writes a 401.
func mustPrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required", "NO_TOKEN_PROVIDED")
		return "", false
	}
	return id, true
}
