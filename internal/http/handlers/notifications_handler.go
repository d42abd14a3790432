package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/http/middleware"
	"github.com/AFixt/meetabl-api/internal/http/response"
	"github.com/AFixt/meetabl-api/internal/notifier"
	"github.com/AFixt/meetabl-api/internal/repository"
)

// NotificationsHandler exposes host-side notification inspection and the
// manual resend of a terminally failed delivery.
type NotificationsHandler struct {
	notifications repository.NotificationRepository
	bookings      repository.BookingRepository
	processor     *notifier.Processor
}

func NewNotificationsHandler(
	notifications repository.NotificationRepository,
	bookings repository.BookingRepository,
	processor *notifier.Processor,
) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, bookings: bookings, processor: processor}
}

func (h *NotificationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/booking/{bookingID}", h.listByBooking)
	r.Post("/{id}/resend", h.resend)
	return r
}

func (h *NotificationsHandler) listByBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid booking id")
		return
	}
	if !h.ownsBooking(w, r, bookingID) {
		return
	}

	notifications, err := h.notifications.ListByBooking(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, notifications)
}

func (h *NotificationsHandler) resend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	n, err := h.notifications.GetByID(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if n == nil {
		response.NotFound(w, "notification not found")
		return
	}
	if !h.ownsBooking(w, r, n.BookingID) {
		return
	}

	sent, err := h.processor.Resend(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sent)
}

func (h *NotificationsHandler) ownsBooking(w http.ResponseWriter, r *http.Request, bookingID int64) bool {
	booking, err := h.bookings.GetByID(r.Context(), bookingID)
	if err != nil {
		response.DomainError(w, err)
		return false
	}
	claims := middleware.Claims(r)
	if booking == nil || booking.HostID != claims.Sub {
		response.NotFound(w, "booking not found")
		return false
	}
	return true
}
