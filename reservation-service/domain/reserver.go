package domain

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

// ReserveRequest is what a provider needs to decide on a reservation
type ReserveRequest struct {
	Step      events.Step
	BookingID models.ID
	UserID    models.ID
	Resource  interface{}
}

// AttemptReserver is the capability check against the resource provider
type AttemptReserver interface {
	AttemptReserve(ctx context.Context, request ReserveRequest) saga.Outcome
}

// ReserverFunc adapts a function to AttemptReserver
type ReserverFunc func(ctx context.Context, request ReserveRequest) saga.Outcome

func (f ReserverFunc) AttemptReserve(ctx context.Context, request ReserveRequest) saga.Outcome {
	return f(ctx, request)
}

// DefaultSuccessRate is the simulated availability of every resource provider
const DefaultSuccessRate = 0.9

// ProbabilisticReserver simulates a provider that has availability with a fixed probability
type ProbabilisticReserver struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
}

func NewProbabilisticReserver(successRate float64) *ProbabilisticReserver {
	return &ProbabilisticReserver{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
	}
}

func (p *ProbabilisticReserver) AttemptReserve(_ context.Context, request ReserveRequest) saga.Outcome {
	p.mu.Lock()
	available := p.rng.Float64() < p.successRate
	p.mu.Unlock()

	if !available {
		return saga.Failure(NotAvailableReason(request.Step))
	}
	return saga.Success(models.GenerateUUID())
}

// StaticReserver always answers the same way
type StaticReserver struct {
	Fail   bool
	Reason string
}

func (s StaticReserver) AttemptReserve(_ context.Context, request ReserveRequest) saga.Outcome {
	if s.Fail {
		reason := s.Reason
		if reason == "" {
			reason = NotAvailableReason(request.Step)
		}
		return saga.Failure(reason)
	}
	return saga.Success(models.GenerateUUID())
}

// NotAvailableReason is the provider message for a refused reservation, e.g. "Flight not available"
func NotAvailableReason(step events.Step) string {
	name := strings.ToLower(string(step))
	if name == "" {
		return "Resource not available"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " not available"
}
