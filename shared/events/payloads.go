package events

import (
	"strings"

	"github.com/draftea/travel-booking/shared/models"
)

// Step identifies one participant in the booking saga
type Step string

const (
	StepFlight  Step = "FLIGHT"
	StepHotel   Step = "HOTEL"
	StepCar     Step = "CAR"
	StepPayment Step = "PAYMENT"
)

// ReservationSteps lists the reservable steps in acquisition order
var ReservationSteps = []Step{StepFlight, StepHotel, StepCar}

func (s Step) String() string {
	return string(s)
}

// IsReservation reports whether the step is one of flight, hotel or car
func (s Step) IsReservation() bool {
	return s == StepFlight || s == StepHotel || s == StepCar
}

// topicPrefix is the lowercase topic namespace of the step ("flight", "hotel"...)
func (s Step) topicPrefix() string {
	return strings.ToLower(string(s))
}

// ReservationRequestedTopic returns the event that asks the step to reserve.
// Flight is requested by BookingCreated itself.
func ReservationRequestedTopic(step Step) string {
	switch step {
	case StepFlight:
		return BookingCreatedEvent
	case StepHotel:
		return HotelReservationRequestedEvent
	case StepCar:
		return CarReservationRequestedEvent
	case StepPayment:
		return PaymentRequestedEvent
	}
	return ""
}

// ReservedTopic returns the success event of a reservation step
func ReservedTopic(step Step) string {
	return step.topicPrefix() + ".reserved"
}

// ReservationFailedTopic returns the failure event of a reservation step
func ReservationFailedTopic(step Step) string {
	return step.topicPrefix() + ".reservation.failed"
}

// CancelledTopic returns the compensation command of a reservation step
func CancelledTopic(step Step) string {
	return step.topicPrefix() + ".cancelled"
}

// StepFromTopic extracts the step a topic belongs to
func StepFromTopic(topic Topic) (Step, bool) {
	prefix, _, _ := strings.Cut(topic.String(), ".")
	switch prefix {
	case "flight":
		return StepFlight, true
	case "hotel":
		return StepHotel, true
	case "car":
		return StepCar, true
	case "payment":
		return StepPayment, true
	}
	return "", false
}

// Passenger travelling on a flight reservation
type Passenger struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Seat      string `json:"seat"`
}

// FlightRequest is the flight section of a booking request
type FlightRequest struct {
	FlightID   string      `json:"flight_id"`
	Departure  string      `json:"departure"`
	Arrival    string      `json:"arrival"`
	Date       string      `json:"date"`
	Passengers []Passenger `json:"passengers"`
}

// HotelRequest is the optional hotel section of a booking request
type HotelRequest struct {
	HotelID      string `json:"hotel_id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
	Guests       int    `json:"guests"`
	RoomType     string `json:"room_type"`
}

// CarRequest is the optional car section of a booking request
type CarRequest struct {
	CarID          string `json:"car_id"`
	PickupDate     string `json:"pickup_date"`
	DropoffDate    string `json:"dropoff_date"`
	PickupLocation string `json:"pickup_location"`
}

// PaymentRequest is the payment section of a booking request
type PaymentRequest struct {
	PaymentMethod string       `json:"payment_method"`
	Amount        models.Money `json:"amount"`
}

// BookingRequest is the full original request, carried unchanged through the saga
type BookingRequest struct {
	Flight  *FlightRequest `json:"flight"`
	Hotel   *HotelRequest  `json:"hotel,omitempty"`
	Car     *CarRequest    `json:"car,omitempty"`
	Payment PaymentRequest `json:"payment"`
}

// Requests reports whether the original request asked for the step
func (r BookingRequest) Requests(step Step) bool {
	switch step {
	case StepFlight:
		return r.Flight != nil
	case StepHotel:
		return r.Hotel != nil
	case StepCar:
		return r.Car != nil
	case StepPayment:
		return true
	}
	return false
}

// ResourceRequest returns the section of the request owned by a reservation step
func (r BookingRequest) ResourceRequest(step Step) interface{} {
	switch step {
	case StepFlight:
		return r.Flight
	case StepHotel:
		return r.Hotel
	case StepCar:
		return r.Car
	}
	return nil
}

// References are the reservation ids acquired so far for a booking
type References struct {
	Flight models.ID `json:"flight,omitempty"`
	Hotel  models.ID `json:"hotel,omitempty"`
	Car    models.ID `json:"car,omitempty"`
}

// Get returns the reservation id of a step
func (r References) Get(step Step) models.ID {
	switch step {
	case StepFlight:
		return r.Flight
	case StepHotel:
		return r.Hotel
	case StepCar:
		return r.Car
	}
	return ""
}

// With returns a copy with the step's reservation id set
func (r References) With(step Step, id models.ID) References {
	switch step {
	case StepFlight:
		r.Flight = id
	case StepHotel:
		r.Hotel = id
	case StepCar:
		r.Car = id
	}
	return r
}

// BookingCreatedData starts the saga and asks the flight participant to reserve
type BookingCreatedData struct {
	BookingID models.ID      `json:"booking_id"`
	UserID    models.ID      `json:"user_id"`
	Request   BookingRequest `json:"request"`
}

// ReservationRequestedData asks the hotel or car participant to reserve
type ReservationRequestedData struct {
	BookingID  models.ID      `json:"booking_id"`
	UserID     models.ID      `json:"user_id"`
	Step       Step           `json:"step"`
	Request    BookingRequest `json:"request"`
	References References     `json:"references"`
}

// ReservedData is emitted by a participant after a successful reservation
type ReservedData struct {
	BookingID     models.ID      `json:"booking_id"`
	UserID        models.ID      `json:"user_id"`
	Step          Step           `json:"step"`
	ReservationID models.ID      `json:"reservation_id"`
	Request       BookingRequest `json:"request"`
	References    References     `json:"references"`
}

// ReservationFailedData is emitted by a participant when the local decision fails
type ReservationFailedData struct {
	BookingID    models.ID `json:"booking_id"`
	UserID       models.ID `json:"user_id"`
	Step         Step      `json:"step"`
	ErrorMessage string    `json:"error_message"`
}

// CancellationRequestedData is the compensation command sent to a participant
type CancellationRequestedData struct {
	BookingID     models.ID `json:"booking_id"`
	UserID        models.ID `json:"user_id"`
	Step          Step      `json:"step"`
	ReservationID models.ID `json:"reservation_id"`
	Reason        string    `json:"reason"`
}

// CancellationOutcome is the participant's answer to a cancellation command
type CancellationOutcome string

const (
	CancellationOutcomeCancelled        CancellationOutcome = "CANCELLED"
	CancellationOutcomeAlreadyCancelled CancellationOutcome = "ALREADY_CANCELLED"
	CancellationOutcomeAlreadyFailed    CancellationOutcome = "ALREADY_FAILED"
	CancellationOutcomeNotFound         CancellationOutcome = "NOT_FOUND"
)

// CancellationAcknowledgedData confirms a processed cancellation command
type CancellationAcknowledgedData struct {
	BookingID     models.ID           `json:"booking_id"`
	UserID        models.ID           `json:"user_id"`
	Step          Step                `json:"step"`
	ReservationID models.ID           `json:"reservation_id"`
	Outcome       CancellationOutcome `json:"outcome"`
}

// PaymentRequestedData asks the payment participant to charge the booking
type PaymentRequestedData struct {
	BookingID  models.ID      `json:"booking_id"`
	UserID     models.ID      `json:"user_id"`
	Request    BookingRequest `json:"request"`
	References References     `json:"references"`
}

// PaymentProcessedData is emitted after a successful charge. It repeats the
// references the payment was requested with.
type PaymentProcessedData struct {
	BookingID     models.ID    `json:"booking_id"`
	UserID        models.ID    `json:"user_id"`
	TransactionID models.ID    `json:"transaction_id"`
	Amount        models.Money `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	References    References   `json:"references"`
}

// PaymentFailedData is emitted when the charge is declined
type PaymentFailedData struct {
	BookingID    models.ID `json:"booking_id"`
	UserID       models.ID `json:"user_id"`
	ErrorMessage string    `json:"error_message"`
}

// PaymentRefundRequestedData asks the payment participant to return a charge
type PaymentRefundRequestedData struct {
	BookingID     models.ID `json:"booking_id"`
	UserID        models.ID `json:"user_id"`
	TransactionID models.ID `json:"transaction_id"`
	Reason        string    `json:"reason"`
}

// PaymentRefundedData confirms a refund
type PaymentRefundedData struct {
	BookingID     models.ID    `json:"booking_id"`
	UserID        models.ID    `json:"user_id"`
	TransactionID models.ID    `json:"transaction_id"`
	Amount        models.Money `json:"amount"`
}

// BookingCompletedData closes the saga with every acquired id
type BookingCompletedData struct {
	BookingID            models.ID  `json:"booking_id"`
	UserID               models.ID  `json:"user_id"`
	References           References `json:"references"`
	PaymentTransactionID models.ID  `json:"payment_transaction_id"`
}

// BookingCancelledData records a user initiated cancellation
type BookingCancelledData struct {
	BookingID models.ID `json:"booking_id"`
	UserID    models.ID `json:"user_id"`
	Reason    string    `json:"reason"`
}

// BookingStatusChangedData is the audit record of a projector transition
type BookingStatusChangedData struct {
	BookingID models.ID `json:"booking_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Cause     string    `json:"cause"`
}
