package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/internal/repository"
)

// SlotInvalidator drops cached slot answers after a rule change.
type SlotInvalidator interface {
	Invalidate(ctx context.Context, hostID int64)
}

type RulesHandler struct {
	rules repository.RuleRepository
	slots SlotInvalidator
}

func NewRulesHandler(rules repository.RuleRepository, slots SlotInvalidator) *RulesHandler {
	return &RulesHandler{rules: rules, slots: slots}
}

func (h *RulesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	return r
}

type ruleReq struct {
	DayOfWeek         int    `json:"day_of_week"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	BufferMinutes     int    `json:"buffer_minutes"`
	MaxBookingsPerDay int    `json:"max_bookings_per_day"`
}

func (h *RulesHandler) create(w http.ResponseWriter, r *http.Request) {
	var in ruleReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	claims := middleware.Claims(r)
	rule := &domain.AvailabilityRule{
		UserID:            claims.Sub,
		DayOfWeek:         time.Weekday(in.DayOfWeek),
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		BufferMinutes:     in.BufferMinutes,
		MaxBookingsPerDay: in.MaxBookingsPerDay,
	}
	if err := rule.Validate(); err != nil {
		response.DomainError(w, err)
		return
	}

	created, err := h.rules.Create(r.Context(), rule)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	h.slots.Invalidate(r.Context(), claims.Sub)
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *RulesHandler) list(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	rules, err := h.rules.ListByUser(r.Context(), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rules)
}

func (h *RulesHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in ruleReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	claims := middleware.Claims(r)
	existing, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if existing == nil || existing.UserID != claims.Sub {
		response.NotFound(w, "rule not found")
		return
	}

	existing.DayOfWeek = time.Weekday(in.DayOfWeek)
	existing.StartTime = in.StartTime
	existing.EndTime = in.EndTime
	existing.BufferMinutes = in.BufferMinutes
	existing.MaxBookingsPerDay = in.MaxBookingsPerDay
	if err := existing.Validate(); err != nil {
		response.DomainError(w, err)
		return
	}

	updated, err := h.rules.Update(r.Context(), existing)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	h.slots.Invalidate(r.Context(), claims.Sub)
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *RulesHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	claims := middleware.Claims(r)
	deleted, err := h.rules.Delete(r.Context(), id, claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !deleted {
		response.NotFound(w, "rule not found")
		return
	}

	h.slots.Invalidate(r.Context(), claims.Sub)
	w.WriteHeader(http.StatusNoContent)
}
