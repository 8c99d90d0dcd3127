package saga

import (
	"github.com/draftea/travel-booking/shared/events"
)

// RoutingTableVersion identifies the decision table below. Every participant
// stamps it on the events it routes so divergent deployments show up in logs.
const RoutingTableVersion = "1"

// routingRule asks for a step when the original request wants it and the
// step has not been acquired yet.
type routingRule struct {
	step      events.Step
	requested func(events.BookingRequest) bool
}

// routingTable is evaluated top to bottom after the flight step. Payment is
// always the last rule and always applies.
var routingTable = []routingRule{
	{step: events.StepHotel, requested: func(r events.BookingRequest) bool { return r.Hotel != nil }},
	{step: events.StepCar, requested: func(r events.BookingRequest) bool { return r.Car != nil }},
	{step: events.StepPayment, requested: func(events.BookingRequest) bool { return true }},
}

// NextStep returns the step that must run after the already acquired references.
// It is a pure function of its inputs.
func NextStep(request events.BookingRequest, acquired events.References) events.Step {
	for _, rule := range routingTable {
		if !rule.requested(request) {
			continue
		}
		if rule.step.IsReservation() && !acquired.Get(rule.step).IsZero() {
			continue
		}
		return rule.step
	}
	return events.StepPayment
}

// CompensationPlan lists the reservations to cancel, newest first (car, hotel, flight).
// Steps already marked cancelled are left out.
func CompensationPlan(acquired events.References, cancelled map[events.Step]bool) []events.Step {
	plan := make([]events.Step, 0, len(events.ReservationSteps))
	for i := len(events.ReservationSteps) - 1; i >= 0; i-- {
		step := events.ReservationSteps[i]
		if acquired.Get(step).IsZero() || cancelled[step] {
			continue
		}
		plan = append(plan, step)
	}
	return plan
}
