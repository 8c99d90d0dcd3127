package application

import (
	"time"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

const (
	validBookingID = "3b1f6f5e-8f2a-4d8e-9a0b-1c2d3e4f5a6b"
	validUserID    = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func paymentRequest(method string) events.PaymentRequest {
	return events.PaymentRequest{PaymentMethod: method, Amount: models.NewMoney(150000, "USD")}
}

// persistedPayment returns a stored payment, decided with outcome when given
func persistedPayment(method string, outcome *saga.Outcome) *domain.Payment {
	payment, err := domain.CreatePayment(models.ID(validBookingID), models.ID(validUserID), paymentRequest(method), events.References{
		Flight: models.DeterministicID("flight"),
	})
	if err != nil {
		panic(err)
	}
	if outcome != nil {
		if err := payment.Decide(*outcome); err != nil {
			panic(err)
		}
	}
	payment.ClearEvents()
	payment.MarkPersisted()
	return payment
}

func stalePayment(method string) *domain.Payment {
	payment := persistedPayment(method, nil)
	payment.Timestamps.UpdatedAt = time.Now().Add(-time.Hour)
	return payment
}

func activeWallet(balance int64) *domain.Wallet {
	wallet, err := domain.OpenWallet(models.ID(validUserID), "USD")
	if err != nil {
		panic(err)
	}
	wallet.Balance = models.NewMoney(balance, "USD")
	wallet.MarkPersisted()
	return wallet
}

func eventOfType(eventType string) func(*events.Event) bool {
	return func(e *events.Event) bool {
		return e != nil && e.EventType == eventType
	}
}

func outcomePtr(o saga.Outcome) *saga.Outcome {
	return &o
}
