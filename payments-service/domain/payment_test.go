package domain

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/models"
	"github.com/draftea/travel-booking/shared/saga"
)

const (
	testBookingID = models.ID("3b1f6f5e-8f2a-4d8e-9a0b-1c2d3e4f5a6b")
	testUserID    = models.ID("7c9e6679-7425-40de-944b-e07fc1f90ae7")
)

func newTestPayment(t *testing.T, method string) *Payment {
	t.Helper()
	payment, err := CreatePayment(testBookingID, testUserID, events.PaymentRequest{
		PaymentMethod: method,
		Amount:        models.NewMoney(150000, "USD"),
	}, events.References{Flight: models.GenerateUUID()})
	require.NoError(t, err)
	return payment
}

func TestCreatePayment(t *testing.T) {
	tests := []struct {
		name           string
		bookingID      models.ID
		request        events.PaymentRequest
		expectedMethod PaymentMethodType
		expectedError  bool
	}{
		{
			name:           "credit card",
			bookingID:      testBookingID,
			request:        events.PaymentRequest{PaymentMethod: "CREDIT_CARD", Amount: models.NewMoney(100, "USD")},
			expectedMethod: PaymentMethodTypeCreditCard,
		},
		{
			name:           "legacy debit alias",
			bookingID:      testBookingID,
			request:        events.PaymentRequest{PaymentMethod: "debit", Amount: models.NewMoney(100, "USD")},
			expectedMethod: PaymentMethodTypeDebitCard,
		},
		{
			name:          "zero amount",
			bookingID:     testBookingID,
			request:       events.PaymentRequest{PaymentMethod: "wallet", Amount: models.NewMoney(0, "USD")},
			expectedError: true,
		},
		{
			name:          "unknown method",
			bookingID:     testBookingID,
			request:       events.PaymentRequest{PaymentMethod: "cash", Amount: models.NewMoney(100, "USD")},
			expectedError: true,
		},
		{
			name:          "missing booking",
			request:       events.PaymentRequest{PaymentMethod: "wallet", Amount: models.NewMoney(100, "USD")},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment, err := CreatePayment(tt.bookingID, testUserID, tt.request, events.References{})
			if tt.expectedError {
				assert.True(t, errors.Is(err, ErrInvalidPaymentInput))
				assert.Nil(t, payment)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedMethod, payment.Method)
			assert.Equal(t, PaymentStatusPending, payment.Status)
			assert.True(t, payment.IsNew())
		})
	}
}

func TestPayment_Decide(t *testing.T) {
	t.Run("processed announces completion", func(t *testing.T) {
		payment := newTestPayment(t, "credit_card")
		transactionID := models.GenerateUUID()

		require.NoError(t, payment.Decide(saga.Success(transactionID)))
		assert.Equal(t, PaymentStatusProcessed, payment.Status)
		assert.Equal(t, transactionID, payment.TransactionID)

		emitted := payment.Events()
		require.Len(t, emitted, 2)
		assert.Equal(t, events.PaymentProcessedEvent, emitted[0].EventType)
		assert.Equal(t, events.BookingCompletedEvent, emitted[1].EventType)

		var completed events.BookingCompletedData
		require.NoError(t, emitted[1].UnmarshalPayload(&completed))
		assert.Equal(t, transactionID, completed.PaymentTransactionID)
		assert.Equal(t, payment.References, completed.References)
	})

	t.Run("failed keeps the reason", func(t *testing.T) {
		payment := newTestPayment(t, "credit_card")

		require.NoError(t, payment.Decide(saga.Failure(PaymentFailedReason)))
		assert.Equal(t, PaymentStatusFailed, payment.Status)
		require.Len(t, payment.Events(), 1)
		assert.Equal(t, events.PaymentFailedEvent, payment.Events()[0].EventType)
	})

	t.Run("decided once", func(t *testing.T) {
		payment := newTestPayment(t, "credit_card")
		require.NoError(t, payment.Decide(saga.Failure(PaymentFailedReason)))

		err := payment.Decide(saga.Success(models.GenerateUUID()))
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, PaymentStatusFailed, payment.Status)
	})
}

func TestPayment_OutcomeEventsAreStable(t *testing.T) {
	payment := newTestPayment(t, "credit_card")
	require.NoError(t, payment.Decide(saga.Success(models.GenerateUUID())))

	first := payment.OutcomeEvents()
	second := payment.OutcomeEvents()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, testBookingID, first[i].AggregateID)
		assert.Equal(t, ServiceName, first[i].Metadata[events.MetadataSource])
	}
}

func TestPayment_Refund(t *testing.T) {
	tests := []struct {
		name          string
		outcome       *saga.Outcome
		refundTwice   bool
		expectedError error
	}{
		{name: "processed", outcome: &saga.Outcome{ID: models.GenerateUUID()}},
		{name: "refunded twice", outcome: &saga.Outcome{ID: models.GenerateUUID()}, refundTwice: true},
		{name: "failed", outcome: &saga.Outcome{Reason: PaymentFailedReason}, expectedError: ErrNothingToRefund},
		{name: "pending", expectedError: ErrNothingToRefund},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := newTestPayment(t, "wallet")
			if tt.outcome != nil {
				require.NoError(t, payment.Decide(*tt.outcome))
			}
			payment.ClearEvents()

			at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			err := payment.Refund("Car not available", at)
			if tt.refundTwice {
				require.NoError(t, err)
				err = payment.Refund("again", at.Add(time.Hour))
			}

			if tt.expectedError != nil {
				assert.True(t, errors.Is(err, tt.expectedError))
				assert.Empty(t, payment.Events())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, PaymentStatusRefunded, payment.Status)
			assert.Equal(t, "Car not available", payment.RefundReason)
			require.NotNil(t, payment.RefundedAt)
			assert.Equal(t, at, *payment.RefundedAt)
			assert.Empty(t, payment.OutcomeEvents())

			last := payment.Events()[len(payment.Events())-1]
			assert.Equal(t, events.PaymentRefundedEvent, last.EventType)
			assert.Equal(t, payment.RefundedEvent().ID, last.ID)
		})
	}
}

func TestPayment_IsStale(t *testing.T) {
	payment := newTestPayment(t, "credit_card")
	now := payment.Timestamps.UpdatedAt

	assert.False(t, payment.IsStale(now.Add(30*time.Second), time.Minute))
	assert.True(t, payment.IsStale(now.Add(2*time.Minute), time.Minute))

	require.NoError(t, payment.Decide(saga.Success(models.GenerateUUID())))
	assert.False(t, payment.IsStale(now.Add(time.Hour), time.Minute))
}

type refundingCharger struct {
	StaticCharger
	refunded []models.ID
}

func (c *refundingCharger) Refund(_ context.Context, payment *Payment) error {
	c.refunded = append(c.refunded, payment.ID)
	return nil
}

func TestMethodRouter(t *testing.T) {
	ctx := context.Background()
	wallet := &refundingCharger{StaticCharger: StaticCharger{Fail: true, Reason: "Insufficient funds"}}
	router := NewMethodRouter(StaticCharger{}).Route(PaymentMethodTypeWallet, wallet)

	outcome, err := router.Charge(ctx, ChargeRequest{Method: PaymentMethodTypeCreditCard})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())

	outcome, err = router.Charge(ctx, ChargeRequest{Method: PaymentMethodTypeWallet})
	require.NoError(t, err)
	assert.Equal(t, "Insufficient funds", outcome.Reason)

	card := newTestPayment(t, "credit_card")
	require.NoError(t, router.Refund(ctx, card))
	assert.Empty(t, wallet.refunded)

	walletPayment := newTestPayment(t, "wallet")
	require.NoError(t, router.Refund(ctx, walletPayment))
	assert.Equal(t, []models.ID{walletPayment.ID}, wallet.refunded)
}

func TestProbabilisticCharger(t *testing.T) {
	ctx := context.Background()

	always := NewProbabilisticCharger(1)
	never := NewProbabilisticCharger(0)
	for i := 0; i < 20; i++ {
		outcome, err := always.Charge(ctx, ChargeRequest{})
		require.NoError(t, err)
		assert.True(t, outcome.Succeeded())

		outcome, err = never.Charge(ctx, ChargeRequest{})
		require.NoError(t, err)
		assert.Equal(t, PaymentFailedReason, outcome.Reason)
	}
}

func TestWallet_Movements(t *testing.T) {
	wallet, err := OpenWallet(testUserID, "USD")
	require.NoError(t, err)

	deposit, err := wallet.Credit(models.NewMoney(5000, "USD"), "deposit", nil)
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeCredit, deposit.Type)
	assert.Equal(t, int64(5000), wallet.Balance.Amount)

	paymentID := models.GenerateUUID()
	debit, err := wallet.Debit(models.NewMoney(2000, "USD"), paymentID, "booking")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), debit.BalanceBefore.Amount)
	assert.Equal(t, int64(3000), debit.BalanceAfter.Amount)
	assert.Equal(t, paymentID, *debit.PaymentID)

	_, err = wallet.Debit(models.NewMoney(9000, "USD"), paymentID, "booking")
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	_, err = wallet.Debit(models.NewMoney(100, "EUR"), paymentID, "booking")
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))

	refund, err := wallet.Credit(models.NewMoney(2000, "USD"), "refund", &paymentID)
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeRefund, refund.Type)
	assert.Equal(t, int64(5000), wallet.Balance.Amount)

	require.NoError(t, wallet.Freeze())
	assert.False(t, wallet.CanDebit(models.NewMoney(1, "USD")))
	_, err = wallet.Debit(models.NewMoney(1, "USD"), paymentID, "booking")
	assert.True(t, errors.Is(err, ErrWalletNotActive))
}
