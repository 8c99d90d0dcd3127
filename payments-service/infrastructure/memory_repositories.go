package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

var (
	_ domain.PaymentRepository = (*MemoryPaymentRepository)(nil)
	_ domain.WalletRepository  = (*MemoryWalletRepository)(nil)
)

// MemoryPaymentRepository keeps payments in process, for tests and the sandbox
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[models.ID]domain.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[models.ID]domain.Payment)}
}

func (r *MemoryPaymentRepository) Save(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.payments[payment.BookingID]
	if payment.IsNew() {
		if exists {
			return errors.Wrapf(domain.ErrDuplicatePayment, "booking %s", payment.BookingID)
		}
		payment.MarkPersisted()
		r.payments[payment.BookingID] = snapshotPayment(payment)
		return nil
	}

	if !exists || stored.Version.Value != payment.Version.Value {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "payment %s at version %d", payment.ID, payment.Version.Value)
	}

	payment.Version = payment.Version.Update()
	r.payments[payment.BookingID] = snapshotPayment(payment)
	return nil
}

func (r *MemoryPaymentRepository) FindByBookingID(_ context.Context, bookingID models.ID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[bookingID]
	if !ok {
		return nil, nil
	}
	payment := stored
	return &payment, nil
}

func snapshotPayment(payment *domain.Payment) domain.Payment {
	stored := *payment
	stored.ClearEvents()
	return stored
}

// MemoryWalletRepository keeps wallets and their movements in process
type MemoryWalletRepository struct {
	mu           sync.Mutex
	wallets      map[models.ID]domain.Wallet
	transactions []domain.Transaction
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{wallets: make(map[models.ID]domain.Wallet)}
}

func (r *MemoryWalletRepository) Save(_ context.Context, wallet *domain.Wallet, transaction *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.wallets[wallet.UserID]
	switch {
	case wallet.IsNew() && exists:
		return errors.Errorf("user %s already has a wallet", wallet.UserID)
	case !wallet.IsNew() && (!exists || stored.Version.Value != wallet.Version.Value):
		return errors.Errorf("wallet %s was modified concurrently", wallet.ID)
	}

	if !wallet.IsNew() {
		wallet.Version = wallet.Version.Update()
	}
	wallet.MarkPersisted()
	r.wallets[wallet.UserID] = *wallet
	if transaction != nil {
		r.transactions = append(r.transactions, *transaction)
	}
	return nil
}

func (r *MemoryWalletRepository) FindByUserID(_ context.Context, userID models.ID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	wallet := stored
	return &wallet, nil
}

func (r *MemoryWalletRepository) FindTransaction(_ context.Context, paymentID models.ID, txType domain.TransactionType) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stored := range r.transactions {
		if stored.Type == txType && stored.PaymentID != nil && *stored.PaymentID == paymentID {
			transaction := stored
			return &transaction, nil
		}
	}
	return nil, nil
}
