// Package ledger moves money between wallets. Every movement updates balances with
// conditional SQL and writes its Transaction row inside one database transaction.
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bell24h/internal/domain"
)

// Ledger failures
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be positive with at most two decimal places")
	ErrSameWallet          = errors.New("cannot move funds to the same wallet")
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowNotHeld       = errors.New("escrow is no longer held")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ValidAmount reports whether amount is positive and fits the paise precision of the wallet columns
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// NewReference returns a unique transaction reference
func NewReference(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// WalletByUser loads the wallet owned by userID
func WalletByUser(ctx context.Context, db *gorm.DB, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func credit(tx *gorm.DB, walletID uint, column string, amount decimal.Decimal) error {
	res := tx.Model(&domain.Wallet{}).Where("id = ?", walletID).
		Update(column, gorm.Expr(column+" + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// debit only succeeds when the column holds at least amount, which keeps balances non-negative.
func debit(tx *gorm.DB, walletID uint, column string, amount decimal.Decimal) error {
	res := tx.Model(&domain.Wallet{}).Where("id = ? AND "+column+" >= ?", walletID, amount).
		Update(column, gorm.Expr(column+" - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&domain.Wallet{}).Where("id = ?", walletID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrWalletNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func record(tx *gorm.DB, t *domain.Transaction) error {
	if t.Reference == "" {
		t.Reference = NewReference(t.Type)
	}
	if t.Status == "" {
		t.Status = domain.TxCompleted
	}
	return tx.Create(t).Error
}

// Deposit credits amount to the wallet and records a completed deposit
func Deposit(ctx context.Context, db *gorm.DB, walletID uint, amount decimal.Decimal, reference, description string) (*domain.Transaction, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	t := &domain.Transaction{
		ToWalletID:  &walletID,
		Amount:      amount,
		Type:        domain.TxDeposit,
		Reference:   reference,
		Description: description,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := credit(tx, walletID, "balance", amount); err != nil {
			return err
		}
		return record(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Transfer moves amount from one wallet's balance to another's
func Transfer(ctx context.Context, db *gorm.DB, fromWalletID, toWalletID uint, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if fromWalletID == toWalletID {
		return nil, ErrSameWallet
	}
	t := &domain.Transaction{
		FromWalletID: &fromWalletID,
		ToWalletID:   &toWalletID,
		Amount:       amount,
		Type:         domain.TxTransfer,
		Description:  description,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, fromWalletID, "balance", amount); err != nil {
			return err
		}
		if err := credit(tx, toWalletID, "balance", amount); err != nil {
			return err
		}
		return record(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// BeginWithdrawal debits the wallet and records a pending withdrawal awaiting the payout result
func BeginWithdrawal(ctx context.Context, db *gorm.DB, walletID uint, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	t := &domain.Transaction{
		FromWalletID: &walletID,
		Amount:       amount,
		Type:         domain.TxWithdraw,
		Status:       domain.TxPending,
		Description:  description,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debit(tx, walletID, "balance", amount); err != nil {
			return err
		}
		return record(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteWithdrawal marks a pending withdrawal as paid out
func CompleteWithdrawal(ctx context.Context, db *gorm.DB, t *domain.Transaction, gatewayRef string) error {
	res := db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", t.ID, domain.TxPending).
		Updates(map[string]any{"status": domain.TxCompleted, "gateway_ref": gatewayRef})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	t.Status = domain.TxCompleted
	t.GatewayRef = gatewayRef
	return nil
}

// FailWithdrawal returns the debited amount to the wallet and marks the withdrawal failed
func FailWithdrawal(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if t.FromWalletID == nil {
		return ErrWalletNotFound
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Transaction{}).
			Where("id = ? AND status = ?", t.ID, domain.TxPending).
			Update("status", domain.TxFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTransactionNotFound
		}
		return credit(tx, *t.FromWalletID, "balance", t.Amount)
	})
	if err != nil {
		return err
	}
	t.Status = domain.TxFailed
	return nil
}
