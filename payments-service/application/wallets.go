package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

// WalletResponse represents a wallet balance
type WalletResponse struct {
	WalletID  string       `json:"wallet_id"`
	UserID    string       `json:"user_id"`
	Balance   models.Money `json:"balance"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// GetWallet use case
type GetWallet struct {
	walletRepository domain.WalletRepository
}

// NewGetWallet creates a new GetWallet use case
func NewGetWallet(walletRepository domain.WalletRepository) *GetWallet {
	return &GetWallet{walletRepository: walletRepository}
}

// Execute returns the wallet of a user
func (uc *GetWallet) Execute(ctx context.Context, userID string) (*WalletResponse, error) {
	id, err := models.NewID(userID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid user ID")
	}

	wallet, err := uc.walletRepository.FindByUserID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallet")
	}
	if wallet == nil {
		return nil, errors.Wrapf(domain.ErrWalletNotFound, "user %s", id)
	}

	return toWalletResponse(wallet), nil
}

// DepositFundsCommand adds money to a user's wallet
type DepositFundsCommand struct {
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

// DepositFunds credits a wallet, opening it on the first deposit
type DepositFunds struct {
	walletRepository domain.WalletRepository
}

// NewDepositFunds creates a new DepositFunds use case
func NewDepositFunds(walletRepository domain.WalletRepository) *DepositFunds {
	return &DepositFunds{walletRepository: walletRepository}
}

// Execute credits the wallet and returns the new balance
func (uc *DepositFunds) Execute(ctx context.Context, cmd *DepositFundsCommand) (resp *WalletResponse, err error) {
	ctx, done := track(ctx, "deposit_funds",
		attribute.String("user_id", cmd.UserID),
		attribute.Int64("amount", cmd.Amount),
	)
	defer func() { done(err) }()

	userID, err := models.NewID(cmd.UserID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid user ID")
	}
	if cmd.Amount <= 0 {
		return nil, errors.Wrap(ErrInvalidCommand, "amount must be positive")
	}
	if cmd.Currency == "" {
		return nil, errors.Wrap(ErrInvalidCommand, "currency is required")
	}

	wallet, err := uc.walletRepository.FindByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallet")
	}
	if wallet == nil {
		if wallet, err = domain.OpenWallet(userID, cmd.Currency); err != nil {
			return nil, errors.Wrap(ErrInvalidCommand, err.Error())
		}
	}

	reference := cmd.Reference
	if reference == "" {
		reference = "deposit"
	}

	transaction, err := wallet.Credit(models.NewMoney(cmd.Amount, cmd.Currency), reference, nil)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, err.Error())
	}

	if err := uc.walletRepository.Save(ctx, wallet, transaction); err != nil {
		return nil, errors.Wrap(err, "failed to save wallet")
	}

	return toWalletResponse(wallet), nil
}

func toWalletResponse(wallet *domain.Wallet) *WalletResponse {
	return &WalletResponse{
		WalletID:  wallet.ID.String(),
		UserID:    wallet.UserID.String(),
		Balance:   wallet.Balance,
		Status:    string(wallet.Status),
		CreatedAt: wallet.Timestamps.CreatedAt,
		UpdatedAt: wallet.Timestamps.UpdatedAt,
	}
}
