package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/booking"
	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/http/response"
)

type BookingsHandler struct {
	svc *booking.Service
}

func NewBookingsHandler(svc *booking.Service) *BookingsHandler {
	return &BookingsHandler{svc: svc}
}

// Routes are the public customer-facing booking endpoints. Access to an
// existing booking requires its manage token.
func (h *BookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/{id}", h.getByID)
	r.Delete("/{id}", h.cancel)
	return r
}

// HostRoutes are the authenticated host-side booking endpoints.
func (h *BookingsHandler) HostRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listForHost)
	return r
}

type bookingRes struct {
	ID          int64  `json:"id"`
	ManageToken string `json:"manage_token,omitempty"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`

	PaymentClientSecret string `json:"payment_client_secret,omitempty"`
}

func (h *BookingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	result, err := h.svc.Book(r.Context(), &in)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	out := bookingRes{
		ID:          result.Booking.ID,
		ManageToken: result.Booking.ManageToken,
		Status:      string(result.Booking.Status),
		StartTime:   result.Booking.StartTime.Format(timeLayout),
		EndTime:     result.Booking.EndTime.Format(timeLayout),
	}
	if result.Intent != nil {
		out.PaymentClientSecret = result.Intent.ClientSecret
	}
	response.WriteJSON(w, http.StatusCreated, out)
}

func (h *BookingsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, token, ok := manageParams(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Get(r.Context(), id, token)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if b == nil {
		response.NotFound(w, "booking not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, token, ok := manageParams(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Cancel(r.Context(), id, token)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingsHandler) listForHost(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	var status *domain.BookingStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := domain.ParseBookingStatus(raw)
		if !ok {
			response.BadRequest(w, "invalid status")
			return
		}
		status = &parsed
	}

	bookings, err := h.svc.ListByHost(r.Context(), claims.Sub, limit, offset, status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, bookings)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func manageParams(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return 0, "", false
	}
	token := r.URL.Query().Get("manage_token")
	if token == "" {
		response.Unauthorized(w, "manage_token is required")
		return 0, "", false
	}
	return id, token, true
}
