package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AFixt/meetabl-api/internal/availability"
	"github.com/AFixt/meetabl-api/internal/http/response"
)

const (
	defaultSlotDuration = 30 * time.Minute
	maxSlotQueryRange   = 62 * 24 * time.Hour
)

// SlotsHandler serves the public slot listing used by booking pages.
type SlotsHandler struct {
	engine *availability.Engine
}

func NewSlotsHandler(engine *availability.Engine) *SlotsHandler {
	return &SlotsHandler{engine: engine}
}

func (h *SlotsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	return r
}

type slotsRes struct {
	HostID       int64     `json:"host_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	SlotDuration string    `json:"slot_duration"`
	Slots        []slotRes `json:"slots"`
}

type slotRes struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *SlotsHandler) list(w http.ResponseWriter, r *http.Request) {
	hostID, err := strconv.ParseInt(chi.URLParam(r, "hostID"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid host id")
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		response.BadRequest(w, "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		response.BadRequest(w, "to must be RFC3339")
		return
	}
	if !to.After(from) {
		response.BadRequest(w, "to must be after from")
		return
	}
	if to.Sub(from) > maxSlotQueryRange {
		response.BadRequest(w, "requested range is too large")
		return
	}

	slotDuration := defaultSlotDuration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			response.BadRequest(w, "duration must be a positive number of minutes")
			return
		}
		slotDuration = time.Duration(minutes) * time.Minute
	}

	slots, err := h.engine.BookableSlots(r.Context(), hostID, from, to, slotDuration)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	out := slotsRes{
		HostID:       hostID,
		From:         from,
		To:           to,
		SlotDuration: slotDuration.String(),
		Slots:        make([]slotRes, 0, len(slots)),
	}
	for _, s := range slots {
		out.Slots = append(out.Slots, slotRes{Start: s.Start, End: s.End})
	}
	response.WriteJSON(w, http.StatusOK, out)
}
