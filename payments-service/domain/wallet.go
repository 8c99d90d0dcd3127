package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/shared/models"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletNotActive   = errors.New("wallet is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
)

// WalletStatus represents the status of a wallet
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "active"
	WalletStatusFrozen WalletStatus = "frozen"
	WalletStatusClosed WalletStatus = "closed"
)

// TransactionType represents the type of wallet movement
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeRefund TransactionType = "refund"
)

// Wallet is a user's prepaid balance, one of the payment methods of a booking
type Wallet struct {
	ID         models.ID    `json:"id"`
	UserID     models.ID    `json:"user_id"`
	Balance    models.Money `json:"balance"`
	Status     WalletStatus `json:"status"`
	Timestamps models.Timestamps
	Version    models.Version

	isNew bool
}

// Transaction is one balance movement. PaymentID links charges and refunds to
// the payment they belong to.
type Transaction struct {
	ID            models.ID       `json:"id"`
	WalletID      models.ID       `json:"wallet_id"`
	Type          TransactionType `json:"type"`
	Amount        models.Money    `json:"amount"`
	BalanceBefore models.Money    `json:"balance_before"`
	BalanceAfter  models.Money    `json:"balance_after"`
	Reference     string          `json:"reference"`
	PaymentID     *models.ID      `json:"payment_id,omitempty"`
	Timestamps    models.Timestamps
}

// OpenWallet creates an empty active wallet
func OpenWallet(userID models.ID, currency string) (*Wallet, error) {
	if userID.IsZero() {
		return nil, errors.New("user id is required")
	}
	if currency == "" {
		return nil, errors.New("currency is required")
	}

	return &Wallet{
		ID:         models.GenerateUUID(),
		UserID:     userID,
		Balance:    models.NewMoney(0, currency),
		Status:     WalletStatusActive,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
		isNew:      true,
	}, nil
}

// Debit takes amount from the wallet
func (w *Wallet) Debit(amount models.Money, paymentID models.ID, reference string) (*Transaction, error) {
	if w.Status != WalletStatusActive {
		return nil, ErrWalletNotActive
	}
	if amount.Currency != w.Balance.Currency {
		return nil, ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return nil, errors.New("debit amount must be positive")
	}
	if w.Balance.Amount < amount.Amount {
		return nil, errors.Wrapf(ErrInsufficientFunds, "balance %d, requested %d", w.Balance.Amount, amount.Amount)
	}

	newBalance, _ := w.Balance.Subtract(amount)
	return w.move(TransactionTypeDebit, amount, newBalance, reference, &paymentID), nil
}

// Credit adds amount to the wallet. Refunds link back to the refunded payment.
func (w *Wallet) Credit(amount models.Money, reference string, paymentID *models.ID) (*Transaction, error) {
	if w.Status == WalletStatusClosed {
		return nil, errors.New("wallet is closed")
	}
	if amount.Currency != w.Balance.Currency {
		return nil, ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return nil, errors.New("credit amount must be positive")
	}

	txType := TransactionTypeCredit
	if paymentID != nil {
		txType = TransactionTypeRefund
	}

	newBalance, _ := w.Balance.Add(amount)
	return w.move(txType, amount, newBalance, reference, paymentID), nil
}

func (w *Wallet) move(txType TransactionType, amount, newBalance models.Money, reference string, paymentID *models.ID) *Transaction {
	transaction := &Transaction{
		ID:            models.GenerateUUID(),
		WalletID:      w.ID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
		Reference:     reference,
		PaymentID:     paymentID,
		Timestamps:    models.NewTimestamps(),
	}

	w.Balance = newBalance
	w.Timestamps = w.Timestamps.Update()
	return transaction
}

// Freeze blocks debits
func (w *Wallet) Freeze() error {
	if w.Status == WalletStatusClosed {
		return errors.New("cannot freeze a closed wallet")
	}
	w.Status = WalletStatusFrozen
	w.Timestamps = w.Timestamps.Update()
	return nil
}

// CanDebit checks if wallet can debit the specified amount
func (w *Wallet) CanDebit(amount models.Money) bool {
	return w.Status == WalletStatusActive &&
		w.Balance.Currency == amount.Currency &&
		w.Balance.Amount >= amount.Amount
}

// IsNew reports whether the wallet has never been persisted
func (w *Wallet) IsNew() bool {
	return w.isNew
}

// MarkPersisted is called by repositories after a successful save
func (w *Wallet) MarkPersisted() {
	w.isNew = false
}

// WalletRepository stores wallets together with their movements
type WalletRepository interface {
	// Save persists the wallet and, atomically, the movement that changed it.
	// transaction is nil when only the wallet changed.
	Save(ctx context.Context, wallet *Wallet, transaction *Transaction) error
	FindByUserID(ctx context.Context, userID models.ID) (*Wallet, error)
	FindTransaction(ctx context.Context, paymentID models.ID, txType TransactionType) (*Transaction, error)
}
