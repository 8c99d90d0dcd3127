package application

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/booking-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
)

const (
	validUserID  = "550e8400-e29b-41d4-a716-446655440010"
	otherUserID  = "550e8400-e29b-41d4-a716-446655440099"
	missingID    = "550e8400-e29b-41d4-a716-446655440404"
	testCurrency = "USD"
)

func testRequest(hotel, car bool) events.BookingRequest {
	req := events.BookingRequest{
		Flight: &events.FlightRequest{
			FlightID:   "AR1140",
			Departure:  "EZE",
			Arrival:    "MAD",
			Date:       "2026-03-01",
			Passengers: []events.Passenger{{FirstName: "Ana", LastName: "Diaz", Seat: "12A"}},
		},
		Payment: events.PaymentRequest{
			PaymentMethod: "credit_card",
			Amount:        models.NewMoney(125000, testCurrency),
		},
	}
	if hotel {
		req.Hotel = &events.HotelRequest{HotelID: "H-22", CheckInDate: "2026-03-01", CheckOutDate: "2026-03-05", Guests: 1, RoomType: "single"}
	}
	if car {
		req.Car = &events.CarRequest{CarID: "C-7", PickupDate: "2026-03-01", DropoffDate: "2026-03-05", PickupLocation: "MAD"}
	}
	return req
}

// persistedBooking builds a booking as a repository would return it
func persistedBooking(t *testing.T, request events.BookingRequest, mutate func(*domain.Booking)) *domain.Booking {
	t.Helper()

	booking, err := domain.CreateBooking(models.ID(validUserID), request)
	require.NoError(t, err)
	if mutate != nil {
		mutate(booking)
	}
	booking.ClearEvents()
	booking.MarkPersisted()
	return booking
}

func eventOfType(eventType string) func(*events.Event) bool {
	return func(e *events.Event) bool {
		return e.EventType == eventType
	}
}
