package httpapi

import (
	"net/http"
	"strings"
	"time"

	"himmel.app/internal/audit"
	"himmel.app/internal/auth"
	"himmel.app/internal/obs"
)

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type googleSignInRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
	User             any       `json:"user,omitempty"`
}

// userResponse is the public projection of a principal; credential and token
// material never leaves the service.
type userResponse struct {
	ID               string     `json:"id"`
	Username         string     `json:"username,omitempty"`
	Email            string     `json:"email,omitempty"`
	FullName         string     `json:"fullName,omitempty"`
	RoleID           string     `json:"roleId,omitempty"`
	IsPremium        bool       `json:"isPremium"`
	PremiumExpiresAt *time.Time `json:"premiumExpiresAt,omitempty"`
	Bio              string     `json:"bio,omitempty"`
	FavoriteTags     []string   `json:"favoriteTags"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toUserResponse(u *auth.User) userResponse {
	tags := u.FavoriteTags
	if tags == nil {
		tags = []string{}
	}
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FullName:         u.FullName,
		RoleID:           u.RoleID,
		IsPremium:        u.IsPremium,
		PremiumExpiresAt: u.PremiumExpiresAt,
		Bio:              u.Bio,
		FavoriteTags:     tags,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	user, err := a.auth.SignUp(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.sign_up", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	writeData(w, http.StatusCreated, "account created", nil)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "identifier and password are required", "VALIDATION_ERROR")
		return
	}
	if !a.throttle.allow(req.Identifier) {
		obs.CountSignIn("throttled")
		writeError(w, r, http.StatusTooManyRequests, "too many sign-in attempts", "RATE_LIMITED")
		return
	}

	pair, user, err := a.auth.SignIn(r.Context(), req.Identifier, req.Password, req.RememberMe)
	if err != nil {
		obs.CountSignIn("failure")
		handleAuthError(w, r, err)
		return
	}
	obs.CountSignIn("success")
	_ = audit.LogEvent(r.Context(), "auth.sign_in", map[string]any{
		"user_id": user.ID,
		"method":  "password",
	})

	a.setSessionCookies(w, pair)
	writeData(w, http.StatusOK, "signed in", sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             toUserResponse(user),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := refreshTokenFromRequest(w, r)
	pair, err := a.auth.Rotate(r.Context(), token)
	if err != nil {
		obs.CountRotation("failure")
		handleAuthError(w, r, err)
		return
	}
	obs.CountRotation("success")
	_ = audit.LogEvent(r.Context(), "auth.token_rotated", nil)

	a.setSessionCookies(w, pair)
	writeData(w, http.StatusOK, "session refreshed", sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := a.auth.Revoke(r.Context(), userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.sign_out", nil)
	a.clearSessionCookies(w)
	writeData(w, http.StatusOK, "signed out", nil)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	// The response is uniform whether or not the account exists; an attacker
	// learns nothing from this endpoint.
	if err := a.auth.CreateResetToken(r.Context(), req.Email); err != nil {
		obs.LogRequest(map[string]any{
			"level": "info",
			"msg":   "forgot_password_not_dispatched",
			"err":   err.Error(),
		})
	} else {
		_ = audit.LogEvent(r.Context(), "auth.reset_requested", nil)
	}
	writeData(w, http.StatusOK, "if the account exists, a reset link has been sent", nil)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/reset-password/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found", "NOT_FOUND")
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if err := a.auth.ConsumeResetToken(r.Context(), token, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeData(w, http.StatusOK, "password updated", nil)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if err := a.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	writeData(w, http.StatusOK, "password updated", nil)
}

func (a *API) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.verifier == nil {
		writeError(w, r, http.StatusServiceUnavailable, "federation unavailable", "STORAGE_ERROR")
		return
	}
	var req googleSignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	identity, err := a.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		obs.CountSignIn("failure")
		handleAuthError(w, r, err)
		return
	}
	pair, user, isNew, err := a.auth.SignInFederated(r.Context(), identity.Subject, identity.Email, identity.Name)
	if err != nil {
		obs.CountSignIn("failure")
		handleAuthError(w, r, err)
		return
	}
	obs.CountSignIn("success")
	_ = audit.LogEvent(r.Context(), "auth.sign_in", map[string]any{
		"user_id": user.ID,
		"method":  "google",
		"is_new":  isNew,
	})

	a.setSessionCookies(w, pair)
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeData(w, status, "signed in", sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             toUserResponse(user),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	user, err := a.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "ok", toUserResponse(user))
}

// refreshTokenFromRequest prefers the refresh cookie, then the JSON body,
// then a bearer header. Returning "" lets the service reply with its
// uniform ErrNoTokenProvided.
func refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return bearerToken(r.Header.Get(authHeader))
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	if pair.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookie,
			Value:    pair.RefreshToken,
			Path:     "/",
			Expires:  pair.RefreshExpiresAt,
			HttpOnly: true,
			Secure:   a.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
