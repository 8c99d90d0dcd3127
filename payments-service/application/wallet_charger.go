package application

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/logger"
	"github.com/draftea/travel-booking/shared/saga"
	"github.com/draftea/travel-booking/shared/telemetry"
)

var (
	_ domain.Charger  = (*WalletCharger)(nil)
	_ domain.Refunder = (*WalletCharger)(nil)
)

// WalletCharger pays bookings from the user's wallet. Movements are keyed by
// payment id, so a repeated charge or refund finds the earlier movement.
type WalletCharger struct {
	wallets domain.WalletRepository
}

func NewWalletCharger(wallets domain.WalletRepository) *WalletCharger {
	return &WalletCharger{wallets: wallets}
}

// Charge debits the booking amount
func (c *WalletCharger) Charge(ctx context.Context, request domain.ChargeRequest) (saga.Outcome, error) {
	existing, err := c.wallets.FindTransaction(ctx, request.PaymentID, domain.TransactionTypeDebit)
	if err != nil {
		return saga.Outcome{}, errors.Wrap(err, "failed to look up wallet debit")
	}
	if existing != nil {
		return saga.Success(existing.ID), nil
	}

	wallet, err := c.wallets.FindByUserID(ctx, request.UserID)
	if err != nil {
		return saga.Outcome{}, errors.Wrap(err, "failed to find wallet")
	}
	if wallet == nil {
		return saga.Failure("Wallet not found"), nil
	}

	transaction, err := wallet.Debit(request.Amount, request.PaymentID, bookingReference(request.BookingID.String()))
	switch errors.Cause(err) {
	case nil:
	case domain.ErrInsufficientFunds:
		telemetry.RecordCounter(ctx, "wallet_insufficient_funds_total", "Wallet charges declined for lack of funds", 1,
			attribute.String("currency", request.Amount.Currency),
		)
		return saga.Failure("Insufficient funds"), nil
	case domain.ErrWalletNotActive:
		return saga.Failure("Wallet is not active"), nil
	case domain.ErrCurrencyMismatch:
		return saga.Failure("Wallet currency mismatch"), nil
	default:
		return saga.Failure(err.Error()), nil
	}

	if err := c.wallets.Save(ctx, wallet, transaction); err != nil {
		return saga.Outcome{}, errors.Wrap(err, "failed to debit wallet")
	}

	logger.FromContext(ctx).Info("wallet debited",
		"wallet_id", wallet.ID,
		"booking_id", request.BookingID,
		"balance_after", transaction.BalanceAfter.Amount,
	)
	return saga.Success(transaction.ID), nil
}

// Refund credits the payment amount back
func (c *WalletCharger) Refund(ctx context.Context, payment *domain.Payment) error {
	existing, err := c.wallets.FindTransaction(ctx, payment.ID, domain.TransactionTypeRefund)
	if err != nil {
		return errors.Wrap(err, "failed to look up wallet refund")
	}
	if existing != nil {
		return nil
	}

	wallet, err := c.wallets.FindByUserID(ctx, payment.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to find wallet")
	}
	if wallet == nil {
		return errors.Wrapf(domain.ErrWalletNotFound, "user %s", payment.UserID)
	}

	paymentID := payment.ID
	transaction, err := wallet.Credit(payment.Amount, "refund "+bookingReference(payment.BookingID.String()), &paymentID)
	if err != nil {
		return errors.Wrap(err, "failed to credit wallet")
	}

	if err := c.wallets.Save(ctx, wallet, transaction); err != nil {
		return errors.Wrap(err, "failed to credit wallet")
	}
	return nil
}

func bookingReference(bookingID string) string {
	return fmt.Sprintf("booking %s", bookingID)
}
