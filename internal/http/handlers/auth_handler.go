package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/internal/repository"
	"github.com/AFixt/meetabl-api/pkg/auth"
	"github.com/AFixt/meetabl-api/pkg/config"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

type AuthHandler struct {
	users repository.UserRepository
	cfg   config.AuthConfig
}

func NewAuthHandler(users repository.UserRepository, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	return r
}

// ProtectedRoutes are the host-account routes behind JWT auth.
func (h *AuthHandler) ProtectedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.me)
	r.Put("/settings", h.updateSettings)
	return r
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone"`
}

type tokenPair struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *domain.User `json:"user"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in registerReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" {
		response.BadRequest(w, "name and email are required")
		return
	}
	if len(in.Password) < 8 {
		response.BadRequest(w, "password must be at least 8 characters")
		return
	}
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			response.BadRequest(w, "invalid timezone")
			return
		}
	}

	if existing, err := h.users.FindByEmail(r.Context(), in.Email); err != nil {
		response.DomainError(w, err)
		return
	} else if existing != nil {
		response.WriteError(w, http.StatusConflict, "email already registered", response.CodeEmailExists)
		return
	}

	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to hash password", "error", err)
		response.InternalError(w, "internal error")
		return
	}

	user := &domain.User{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   hash,
		Timezone:       in.Timezone,
		ReminderOffset: domain.OffsetNone,
	}
	created, err := h.users.Create(r.Context(), user)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	h.issueTokens(w, r, created, http.StatusCreated)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in loginReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if user == nil {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	match, err := argon2id.ComparePasswordAndHash(in.Password, user.PasswordHash)
	if err != nil || !match {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	h.issueTokens(w, r, user, http.StatusOK)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	claims, err := auth.Parse(in.RefreshToken, h.cfg.JWTSecret)
	if err != nil || claims.Scope != "refresh" {
		response.Unauthorized(w, "invalid refresh token")
		return
	}

	user, err := h.users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if user == nil {
		response.Unauthorized(w, "account no longer exists")
		return
	}

	h.issueTokens(w, r, user, http.StatusOK)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	user, err := h.users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if user == nil {
		response.NotFound(w, "account not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, user)
}

type settingsReq struct {
	Timezone         *string `json:"timezone"`
	ReminderOffset   *string `json:"reminder_offset"`
	MinAdvanceNotice *int    `json:"min_advance_notice_minutes"`
	MaxAdvanceDays   *int    `json:"max_advance_days"`
	RequiresPayment  *bool   `json:"requires_payment"`
	PriceCents       *int64  `json:"price_cents"`
	Currency         *string `json:"currency"`
}

func (h *AuthHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var in settingsReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	claims := middleware.Claims(r)
	user, err := h.users.FindByID(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if user == nil {
		response.NotFound(w, "account not found")
		return
	}

	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil {
			response.BadRequest(w, "invalid timezone")
			return
		}
		user.Timezone = *in.Timezone
	}
	if in.ReminderOffset != nil {
		offset, ok := domain.ParseReminderOffset(*in.ReminderOffset)
		if !ok {
			response.BadRequest(w, "invalid reminder_offset")
			return
		}
		user.ReminderOffset = offset
	}
	if in.MinAdvanceNotice != nil {
		if *in.MinAdvanceNotice < 0 {
			response.BadRequest(w, "min_advance_notice_minutes must be >= 0")
			return
		}
		user.MinAdvanceNotice = time.Duration(*in.MinAdvanceNotice) * time.Minute
	}
	if in.MaxAdvanceDays != nil {
		if *in.MaxAdvanceDays <= 0 {
			response.BadRequest(w, "max_advance_days must be > 0")
			return
		}
		user.MaxAdvanceDays = *in.MaxAdvanceDays
	}
	if in.RequiresPayment != nil {
		user.RequiresPayment = *in.RequiresPayment
	}
	if in.PriceCents != nil {
		user.PriceCents = *in.PriceCents
	}
	if in.Currency != nil {
		user.Currency = strings.ToLower(*in.Currency)
	}

	updated, err := h.users.UpdateSettings(r.Context(), user)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, user *domain.User, status int) {
	access, err := auth.NewAccessToken(user.ID, user.Email, "host", h.cfg.JWTSecret, h.cfg.AccessTokenTTL)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to sign access token", "error", err)
		response.InternalError(w, "internal error")
		return
	}
	refresh, err := auth.NewRefreshToken(user.ID, user.Email, h.cfg.JWTSecret, h.cfg.RefreshTokenTTL)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to sign refresh token", "error", err)
		response.InternalError(w, "internal error")
		return
	}
	response.WriteJSON(w, status, tokenPair{AccessToken: access, RefreshToken: refresh, User: user})
}
