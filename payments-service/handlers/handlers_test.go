package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftea/travel-booking/payments-service/application"
	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/payments-service/infrastructure"
	"github.com/draftea/travel-booking/shared/events"
	sharedinfra "github.com/draftea/travel-booking/shared/infrastructure"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/models"
)

const (
	bookingID = models.ID("550e8400-e29b-41d4-a716-446655440020")
	userID    = models.ID("550e8400-e29b-41d4-a716-446655440010")
)

type participant struct {
	bus    *sharedinfra.MemoryBus
	router http.Handler
}

func newParticipant(t *testing.T, cardCharger domain.Charger) *participant {
	t.Helper()
	ctx := context.Background()

	payments := infrastructure.NewMemoryPaymentRepository()
	wallets := infrastructure.NewMemoryWalletRepository()
	bus := sharedinfra.NewMemoryBus(logger.NewNop())

	charger := domain.NewMethodRouter(cardCharger).
		Route(domain.PaymentMethodTypeWallet, application.NewWalletCharger(wallets))

	dispatcher := NewPaymentEventDispatcher(
		application.NewProcessPayment(payments, charger, bus),
		application.NewRefundPayment(payments, charger, bus),
		nil, logger.NewNop(),
	)
	sub := bus.Subscriber(dispatcher.HandlerID())
	require.NoError(t, sub.Subscribe(ctx, dispatcher))
	require.NoError(t, sub.Start(ctx))

	r := chi.NewRouter()
	NewPaymentHandlers(
		application.NewGetPayment(payments),
		application.NewGetWallet(wallets),
		application.NewDepositFunds(wallets),
	).RegisterRoutes(r)

	return &participant{bus: bus, router: r}
}

func (p *participant) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func (p *participant) balance(t *testing.T) int64 {
	t.Helper()
	rec := p.do(t, http.MethodGet, "/api/v1/wallets/"+userID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var wallet application.WalletResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wallet))
	return wallet.Balance.Amount
}

func publishedTypes(bus *sharedinfra.MemoryBus) []string {
	var types []string
	for _, e := range bus.Published() {
		types = append(types, e.EventType)
	}
	return types
}

func paymentRequested(method string, amount int64) *events.Event {
	return events.NewDeterministicEvent(bookingID, events.PaymentRequestedEvent, events.PaymentRequestedData{
		BookingID: bookingID,
		UserID:    userID,
		Request: events.BookingRequest{
			Flight:  &events.FlightRequest{FlightID: "AR1140"},
			Payment: events.PaymentRequest{PaymentMethod: method, Amount: models.NewMoney(amount, "USD")},
		},
		References: events.References{Flight: models.DeterministicID("flight", bookingID.String())},
	}).WithUserID(userID)
}

func TestPaymentParticipant_WalletChargeAndRefund(t *testing.T) {
	p := newParticipant(t, domain.StaticCharger{})
	ctx := context.Background()

	rec := p.do(t, http.MethodPost, "/api/v1/wallets/"+userID.String()+"/deposits", `{"amount": 100000, "currency": "USD"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, p.bus.Publish(ctx, paymentRequested("WALLET", 60000)))
	require.NoError(t, p.bus.Publish(ctx, paymentRequested("WALLET", 60000)))
	assert.Equal(t, int64(40000), p.balance(t), "redelivered request charges once")

	assert.Equal(t, []string{
		events.PaymentRequestedEvent,
		events.PaymentProcessedEvent,
		events.BookingCompletedEvent,
		events.PaymentRequestedEvent,
		events.PaymentProcessedEvent,
		events.BookingCompletedEvent,
	}, publishedTypes(p.bus))

	var processed events.PaymentProcessedData
	require.NoError(t, p.bus.Published()[1].UnmarshalPayload(&processed))

	refund := events.NewDeterministicEvent(bookingID, events.PaymentRefundRequestedEvent, events.PaymentRefundRequestedData{
		BookingID:     bookingID,
		UserID:        userID,
		TransactionID: processed.TransactionID,
		Reason:        "Booking cancelled",
	})
	require.NoError(t, p.bus.Publish(ctx, refund))
	require.NoError(t, p.bus.Publish(ctx, refund.Clone()))
	assert.Equal(t, int64(100000), p.balance(t), "refund credits once")

	rec = p.do(t, http.MethodGet, "/api/v1/payments/"+bookingID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payment application.PaymentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payment))
	assert.Equal(t, "REFUNDED", payment.Status)
	assert.Equal(t, "Booking cancelled", payment.RefundReason)
	assert.Empty(t, p.bus.DeadLetters())
}

func TestPaymentParticipant_InsufficientFunds(t *testing.T) {
	p := newParticipant(t, domain.StaticCharger{})

	rec := p.do(t, http.MethodPost, "/api/v1/wallets/"+userID.String()+"/deposits", `{"amount": 100, "currency": "USD"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, p.bus.Publish(context.Background(), paymentRequested("wallet", 60000)))

	published := p.bus.Published()
	require.Len(t, published, 2)
	assert.Equal(t, events.PaymentFailedEvent, published[1].EventType)

	var failed events.PaymentFailedData
	require.NoError(t, published[1].UnmarshalPayload(&failed))
	assert.Equal(t, "Insufficient funds", failed.ErrorMessage)
	assert.Equal(t, int64(100), p.balance(t))
}

func TestPaymentParticipant_CardDeclined(t *testing.T) {
	p := newParticipant(t, domain.StaticCharger{Fail: true})

	require.NoError(t, p.bus.Publish(context.Background(), paymentRequested("CREDIT_CARD", 60000)))

	assert.Equal(t, []string{events.PaymentRequestedEvent, events.PaymentFailedEvent}, publishedTypes(p.bus))
}

func TestPaymentHandlers_Errors(t *testing.T) {
	p := newParticipant(t, domain.StaticCharger{})

	assert.Equal(t, http.StatusNotFound, p.do(t, http.MethodGet, "/api/v1/payments/"+bookingID.String(), "").Code)
	assert.Equal(t, http.StatusBadRequest, p.do(t, http.MethodGet, "/api/v1/payments/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, p.do(t, http.MethodGet, "/api/v1/wallets/"+userID.String(), "").Code)
	assert.Equal(t, http.StatusBadRequest, p.do(t, http.MethodPost, "/api/v1/wallets/"+userID.String()+"/deposits", "{").Code)
	assert.Equal(t, http.StatusBadRequest,
		p.do(t, http.MethodPost, "/api/v1/wallets/"+userID.String()+"/deposits", `{"amount": -5, "currency": "USD"}`).Code)
}
