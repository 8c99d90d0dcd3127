package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/models"
)

var _ domain.WalletRepository = (*PostgresWalletRepository)(nil)

// PostgresWalletRepository implements WalletRepository over the wallets and
// wallet_transactions tables
type PostgresWalletRepository struct {
	db *sqlx.DB
}

// NewPostgresWalletRepository creates a new PostgresWalletRepository
func NewPostgresWalletRepository(db *sqlx.DB) *PostgresWalletRepository {
	return &PostgresWalletRepository{db: db}
}

// postgresWallet represents wallet in database
type postgresWallet struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Balance    int64     `db:"balance"`
	Currency   string    `db:"currency"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
	OldVersion int       `db:"old_version"`
}

// postgresTransaction represents a wallet movement in database
type postgresTransaction struct {
	ID            string    `db:"id"`
	WalletID      string    `db:"wallet_id"`
	Type          string    `db:"type"`
	Amount        int64     `db:"amount"`
	Currency      string    `db:"currency"`
	BalanceBefore int64     `db:"balance_before"`
	BalanceAfter  int64     `db:"balance_after"`
	Reference     string    `db:"reference"`
	PaymentID     *string   `db:"payment_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Save writes the wallet and its movement in one database transaction
func (r *PostgresWalletRepository) Save(ctx context.Context, wallet *domain.Wallet, transaction *domain.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	next := wallet.Version
	if wallet.IsNew() {
		err = r.insertWallet(ctx, tx, wallet)
	} else {
		next = wallet.Version.Update()
		err = r.updateWallet(ctx, tx, wallet, next)
	}
	if err != nil {
		return err
	}

	if transaction != nil {
		if err := r.insertTransaction(ctx, tx, transaction); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit wallet")
	}

	wallet.MarkPersisted()
	wallet.Version = next
	return nil
}

func (r *PostgresWalletRepository) insertWallet(ctx context.Context, tx *sqlx.Tx, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (
			id, user_id, balance, currency, status,
			created_at, updated_at, version
		) VALUES (
			:id, :user_id, :balance, :currency, :status,
			:created_at, :updated_at, :version
		)`

	if _, err := tx.NamedExecContext(ctx, query, r.toPostgres(wallet)); err != nil {
		return errors.Wrap(err, "failed to insert wallet")
	}
	return nil
}

func (r *PostgresWalletRepository) updateWallet(ctx context.Context, tx *sqlx.Tx, wallet *domain.Wallet, next models.Version) error {
	query := `
		UPDATE wallets
		SET balance = :balance, status = :status, updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	row := r.toPostgres(wallet)
	row.OldVersion = wallet.Version.Value
	row.Version = next.Value

	result, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrap(err, "failed to update wallet")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.Errorf("wallet %s was modified concurrently", wallet.ID)
	}
	return nil
}

func (r *PostgresWalletRepository) insertTransaction(ctx context.Context, tx *sqlx.Tx, transaction *domain.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, amount, currency, balance_before,
			balance_after, reference, payment_id, created_at, updated_at
		) VALUES (
			:id, :wallet_id, :type, :amount, :currency, :balance_before,
			:balance_after, :reference, :payment_id, :created_at, :updated_at
		)`

	if _, err := tx.NamedExecContext(ctx, query, transactionToPostgres(transaction)); err != nil {
		return errors.Wrap(err, "failed to insert wallet transaction")
	}
	return nil
}

// FindByUserID finds a wallet by user ID
func (r *PostgresWalletRepository) FindByUserID(ctx context.Context, userID models.ID) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, status,
			   created_at, updated_at, version
		FROM wallets
		WHERE user_id = $1
		LIMIT 1`

	var row postgresWallet
	if err := r.db.GetContext(ctx, &row, query, userID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find wallet by user ID")
	}

	return &domain.Wallet{
		ID:      models.ID(row.ID),
		UserID:  models.ID(row.UserID),
		Balance: models.NewMoney(row.Balance, row.Currency),
		Status:  domain.WalletStatus(row.Status),
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version{Value: row.Version},
	}, nil
}

// FindTransaction finds the movement of a given type made for a payment
func (r *PostgresWalletRepository) FindTransaction(ctx context.Context, paymentID models.ID, txType domain.TransactionType) (*domain.Transaction, error) {
	query := `
		SELECT id, wallet_id, type, amount, currency, balance_before,
			   balance_after, reference, payment_id, created_at, updated_at
		FROM wallet_transactions
		WHERE payment_id = $1 AND type = $2
		ORDER BY created_at
		LIMIT 1`

	var row postgresTransaction
	if err := r.db.GetContext(ctx, &row, query, paymentID.String(), string(txType)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find wallet transaction")
	}

	return transactionToDomain(&row), nil
}

func (r *PostgresWalletRepository) toPostgres(wallet *domain.Wallet) *postgresWallet {
	return &postgresWallet{
		ID:        wallet.ID.String(),
		UserID:    wallet.UserID.String(),
		Balance:   wallet.Balance.Amount,
		Currency:  wallet.Balance.Currency,
		Status:    string(wallet.Status),
		CreatedAt: wallet.Timestamps.CreatedAt,
		UpdatedAt: wallet.Timestamps.UpdatedAt,
		Version:   wallet.Version.Value,
	}
}

func transactionToPostgres(transaction *domain.Transaction) *postgresTransaction {
	var paymentID *string
	if transaction.PaymentID != nil {
		paymentID = optionalString(transaction.PaymentID.String())
	}

	return &postgresTransaction{
		ID:            transaction.ID.String(),
		WalletID:      transaction.WalletID.String(),
		Type:          string(transaction.Type),
		Amount:        transaction.Amount.Amount,
		Currency:      transaction.Amount.Currency,
		BalanceBefore: transaction.BalanceBefore.Amount,
		BalanceAfter:  transaction.BalanceAfter.Amount,
		Reference:     transaction.Reference,
		PaymentID:     paymentID,
		CreatedAt:     transaction.Timestamps.CreatedAt,
		UpdatedAt:     transaction.Timestamps.UpdatedAt,
	}
}

func transactionToDomain(row *postgresTransaction) *domain.Transaction {
	var paymentID *models.ID
	if row.PaymentID != nil {
		id := models.ID(*row.PaymentID)
		paymentID = &id
	}

	return &domain.Transaction{
		ID:            models.ID(row.ID),
		WalletID:      models.ID(row.WalletID),
		Type:          domain.TransactionType(row.Type),
		Amount:        models.NewMoney(row.Amount, row.Currency),
		BalanceBefore: models.NewMoney(row.BalanceBefore, row.Currency),
		BalanceAfter:  models.NewMoney(row.BalanceAfter, row.Currency),
		Reference:     row.Reference,
		PaymentID:     paymentID,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}
}
