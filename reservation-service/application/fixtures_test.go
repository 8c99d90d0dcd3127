package application

import (
	"time"

	"github.com/draftea/travel-booking/reservation-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

const (
	validBookingID = "3b1f6f5e-8f2a-4d8e-9a0b-1c2d3e4f5a6b"
	validUserID    = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func testRequest(hotel, car bool) events.BookingRequest {
	req := events.BookingRequest{
		Flight: &events.FlightRequest{FlightID: "AR1234", Departure: "EZE", Arrival: "MAD", Date: "2026-12-01"},
		Payment: events.PaymentRequest{
			PaymentMethod: "CREDIT_CARD",
			Amount:        models.NewMoney(150000, "USD"),
		},
	}
	if hotel {
		req.Hotel = &events.HotelRequest{HotelID: "H-1", CheckInDate: "2026-12-01", CheckOutDate: "2026-12-05", Guests: 2}
	}
	if car {
		req.Car = &events.CarRequest{CarID: "C-1", PickupDate: "2026-12-01", DropoffDate: "2026-12-05", PickupLocation: "MAD"}
	}
	return req
}

// persistedRecord returns a stored record for step, decided with outcome when given
func persistedRecord(step events.Step, request events.BookingRequest, outcome *saga.Outcome) *domain.ReservationRecord {
	record, err := domain.NewReservationRecord(step, models.ID(validBookingID), models.ID(validUserID), request, events.References{})
	if err != nil {
		panic(err)
	}
	if outcome != nil {
		if err := record.Decide(*outcome); err != nil {
			panic(err)
		}
	}
	record.ClearEvents()
	record.MarkPersisted()
	return record
}

func staleRecord(step events.Step, request events.BookingRequest) *domain.ReservationRecord {
	record := persistedRecord(step, request, nil)
	record.Timestamps.UpdatedAt = time.Now().Add(-time.Hour)
	return record
}

func eventOfType(eventType string) func(*events.Event) bool {
	return func(e *events.Event) bool {
		return e != nil && e.EventType == eventType
	}
}

func outcomePtr(o saga.Outcome) *saga.Outcome {
	return &o
}
