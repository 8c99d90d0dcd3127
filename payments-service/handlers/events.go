package handlers

import (
	"github.com/draftea/travel-booking/payments-service/application"
	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/events"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

// NewPaymentEventDispatcher subscribes the payment participant to charge and
// refund requests
func NewPaymentEventDispatcher(
	processPayment *application.ProcessPayment,
	refundPayment *application.RefundPayment,
	tel *telemetry.Telemetry,
	log logger.Logger,
) *saga.EventDispatcher {
	dispatcher := saga.NewEventDispatcher(domain.ServiceName, log)
	dispatcher.RegisterHandler(events.PaymentRequestedEvent, telemetry.EventMiddleware(tel, processPayment))
	dispatcher.RegisterHandler(events.PaymentRefundRequestedEvent, telemetry.EventMiddleware(tel, refundPayment))
	return dispatcher
}
