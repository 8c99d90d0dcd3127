package domain

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

// DefaultSuccessRate is the simulated approval rate of the card processor
const DefaultSuccessRate = 0.95

// PaymentFailedReason is the processor message for a declined charge
const PaymentFailedReason = "Payment failed"

// ChargeRequest is what a payment provider needs to decide on a charge
type ChargeRequest struct {
	PaymentID models.ID
	BookingID models.ID
	UserID    models.ID
	Amount    models.Money
	Method    PaymentMethodType
}

// Charger decides a charge. A declined charge is an Outcome; an error means the
// decision could not be made and should be retried.
type Charger interface {
	Charge(ctx context.Context, request ChargeRequest) (saga.Outcome, error)
}

// Refunder returns a processed charge to the payer
type Refunder interface {
	Refund(ctx context.Context, payment *Payment) error
}

// ChargerFunc adapts a function to Charger
type ChargerFunc func(ctx context.Context, request ChargeRequest) (saga.Outcome, error)

func (f ChargerFunc) Charge(ctx context.Context, request ChargeRequest) (saga.Outcome, error) {
	return f(ctx, request)
}

// ProbabilisticCharger approves charges with a fixed probability
type ProbabilisticCharger struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
}

func NewProbabilisticCharger(successRate float64) *ProbabilisticCharger {
	return &ProbabilisticCharger{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
	}
}

func (c *ProbabilisticCharger) Charge(_ context.Context, _ ChargeRequest) (saga.Outcome, error) {
	c.mu.Lock()
	approved := c.rng.Float64() < c.successRate
	c.mu.Unlock()

	if !approved {
		return saga.Failure(PaymentFailedReason), nil
	}
	return saga.Success(models.GenerateUUID()), nil
}

// StaticCharger always answers the same way
type StaticCharger struct {
	Fail   bool
	Reason string
}

func (s StaticCharger) Charge(_ context.Context, _ ChargeRequest) (saga.Outcome, error) {
	if s.Fail {
		reason := s.Reason
		if reason == "" {
			reason = PaymentFailedReason
		}
		return saga.Failure(reason), nil
	}
	return saga.Success(models.GenerateUUID()), nil
}

// MethodRouter dispatches charges and refunds by payment method
type MethodRouter struct {
	routes   map[PaymentMethodType]Charger
	fallback Charger
}

// NewMethodRouter creates a router answering with fallback for unrouted methods
func NewMethodRouter(fallback Charger) *MethodRouter {
	return &MethodRouter{
		routes:   make(map[PaymentMethodType]Charger),
		fallback: fallback,
	}
}

// Route registers the charger of a payment method
func (m *MethodRouter) Route(method PaymentMethodType, charger Charger) *MethodRouter {
	m.routes[method] = charger
	return m
}

func (m *MethodRouter) Charge(ctx context.Context, request ChargeRequest) (saga.Outcome, error) {
	return m.chargerFor(request.Method).Charge(ctx, request)
}

// Refund delegates to the method's charger when it can refund. Chargers that
// cannot are simulated processors with nothing to give back.
func (m *MethodRouter) Refund(ctx context.Context, payment *Payment) error {
	if refunder, ok := m.chargerFor(payment.Method).(Refunder); ok {
		return refunder.Refund(ctx, payment)
	}
	return nil
}

func (m *MethodRouter) chargerFor(method PaymentMethodType) Charger {
	if charger, ok := m.routes[method]; ok {
		return charger
	}
	return m.fallback
}
