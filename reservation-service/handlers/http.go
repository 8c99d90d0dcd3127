package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/reservation-service/application"
	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/server"
)

// ReservationHandlers exposes the participant's records for support queries
type ReservationHandlers struct {
	getReservation *application.GetReservation
}

func NewReservationHandlers(getReservation *application.GetReservation) *ReservationHandlers {
	return &ReservationHandlers{getReservation: getReservation}
}

// GetReservation returns the record kept for a booking
func (h *ReservationHandlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	response, err := h.getReservation.Execute(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		switch errors.Cause(err) {
		case domain.ErrReservationNotFound:
			server.WriteError(w, http.StatusNotFound, err.Error())
		case application.ErrInvalidCommand:
			server.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			server.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers reservation routes
func (h *ReservationHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/reservations/{bookingId}", h.GetReservation)
}
