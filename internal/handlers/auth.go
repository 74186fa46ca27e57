package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/store"
)

// SignupRequest represents the registration request body.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// AuthResponse represents a successful signup or login.
type AuthResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"accessToken"`
}

// Signup handles account registration.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	if !isValidMobile(req.Mobile) {
		h.Error(w, http.StatusBadRequest, "invalid mobile number")
		return
	}

	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user, err := h.store.CreateUser(r.Context(), name, email, req.Mobile, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			h.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create user")
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.issueSession(w, r, user, http.StatusCreated)
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and issues token cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to look up user")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	// Same response for unknown email and wrong password.
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		h.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if user.Blocked {
		h.Error(w, http.StatusForbidden, "account is blocked")
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

// Refresh exchanges a valid refresh token for a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			token = body.RefreshToken
		}
	}
	if token == "" {
		h.Error(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	ident, err := h.tokens.VerifyRefresh(token)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), ident.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || user.Blocked {
		h.Error(w, http.StatusUnauthorized, "account unavailable")
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

// Logout clears the session cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, "Token")
	h.clearCookie(w, "refreshToken")
	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// issueSession mints both tokens, sets them as cookies, and writes the
// auth response. The access token is also returned in the body for
// non-browser clients.
func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	access, err := h.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue access token")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	refresh, err := h.tokens.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue refresh token")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.setCookie(w, "Token", access, h.cfg.AccessTokenTTL)
	h.setCookie(w, "refreshToken", refresh, h.cfg.RefreshTokenTTL)

	h.JSON(w, status, AuthResponse{User: user, AccessToken: access})
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   !h.cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
}
