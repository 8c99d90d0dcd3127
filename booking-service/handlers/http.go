package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/booking-service/application"
	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/server"
)

// UserIDHeader carries the caller id set by the gateway
const UserIDHeader = "X-USER-ID"

// BookingHandlers contains booking HTTP handlers
type BookingHandlers struct {
	createBooking    *application.CreateBooking
	getBooking       *application.GetBooking
	listBookings     *application.ListBookings
	cancelBooking    *application.CancelBooking
	getBookingEvents *application.GetBookingEvents
}

// NewBookingHandlers creates new booking handlers
func NewBookingHandlers(
	createBooking *application.CreateBooking,
	getBooking *application.GetBooking,
	listBookings *application.ListBookings,
	cancelBooking *application.CancelBooking,
	getBookingEvents *application.GetBookingEvents,
) *BookingHandlers {
	return &BookingHandlers{
		createBooking:    createBooking,
		getBooking:       getBooking,
		listBookings:     listBookings,
		cancelBooking:    cancelBooking,
		getBookingEvents: getBookingEvents,
	}
}

// CreateBooking handles booking intake. It answers 202 with the PENDING booking id.
func (h *BookingHandlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		server.WriteError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}

	var request events.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		server.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	response, err := h.createBooking.Execute(r.Context(), &application.CreateBookingCommand{
		UserID:  userID,
		Request: request,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusAccepted, response)
}

// GetBooking returns one booking of the caller
func (h *BookingHandlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	response, err := h.getBooking.Execute(r.Context(), &application.GetBookingQuery{
		BookingID: chi.URLParam(r, "id"),
		UserID:    r.Header.Get(UserIDHeader),
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// ListMyBookings returns the caller's bookings, newest first
func (h *BookingHandlers) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		server.WriteError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}

	response, err := h.listBookings.Execute(r.Context(), &application.ListBookingsQuery{UserID: userID})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// CancelBooking cancels a non-terminal booking of the caller
func (h *BookingHandlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		server.WriteError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}

	response, err := h.cancelBooking.Execute(r.Context(), &application.CancelBookingCommand{
		BookingID: chi.URLParam(r, "id"),
		UserID:    userID,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// GetBookingEvents returns the saga audit trail of a booking
func (h *BookingHandlers) GetBookingEvents(w http.ResponseWriter, r *http.Request) {
	response, err := h.getBookingEvents.Execute(r.Context(), &application.GetBookingEventsQuery{
		BookingID: chi.URLParam(r, "id"),
		UserID:    r.Header.Get(UserIDHeader),
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers booking routes
func (h *BookingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/me", h.ListMyBookings)
		r.Get("/{id}", h.GetBooking)
		r.Post("/{id}/cancel", h.CancelBooking)
		r.Get("/{id}/events", h.GetBookingEvents)
	})
}

func writeUseCaseError(w http.ResponseWriter, err error) {
	switch cause := errors.Cause(err); cause {
	case domain.ErrBookingNotFound:
		server.WriteError(w, http.StatusNotFound, err.Error())
	case application.ErrInvalidCommand:
		server.WriteError(w, http.StatusBadRequest, err.Error())
	case domain.ErrInvalidTransition, domain.ErrBookingTerminal:
		server.WriteError(w, http.StatusConflict, err.Error())
	default:
		server.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
