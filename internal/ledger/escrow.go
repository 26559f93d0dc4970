package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bell24h/internal/domain"
)

// HoldEscrow moves amount from the payer's balance into its escrow balance
func HoldEscrow(ctx context.Context, db *gorm.DB, payerWalletID, payeeWalletID uint, amount decimal.Decimal, rfqID *uint, description string) (*domain.Escrow, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if payerWalletID == payeeWalletID {
		return nil, ErrSameWallet
	}
	escrow := &domain.Escrow{
		PayerWalletID: payerWalletID,
		PayeeWalletID: payeeWalletID,
		Amount:        amount,
		RFQID:         rfqID,
		Status:        domain.EscrowHeld,
		Description:   description,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Wallet{}).Where("id = ?", payeeWalletID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrWalletNotFound
		}
		if err := debit(tx, payerWalletID, "balance", amount); err != nil {
			return err
		}
		if err := credit(tx, payerWalletID, "escrow_balance", amount); err != nil {
			return err
		}
		if err := tx.Create(escrow).Error; err != nil {
			return err
		}
		return record(tx, &domain.Transaction{
			FromWalletID: &payerWalletID,
			ToWalletID:   &payerWalletID,
			Amount:       amount,
			Type:         domain.TxEscrowHold,
			Description:  description,
		})
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// ReleaseEscrow pays a held escrow out to the payee's balance
func ReleaseEscrow(ctx context.Context, db *gorm.DB, escrowID uint) (*domain.Escrow, error) {
	return settleEscrow(ctx, db, escrowID, domain.EscrowReleased)
}

// RefundEscrow returns a held escrow to the payer's balance
func RefundEscrow(ctx context.Context, db *gorm.DB, escrowID uint) (*domain.Escrow, error) {
	return settleEscrow(ctx, db, escrowID, domain.EscrowRefunded)
}

func settleEscrow(ctx context.Context, db *gorm.DB, escrowID uint, outcome string) (*domain.Escrow, error) {
	var escrow domain.Escrow
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&escrow, escrowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEscrowNotFound
			}
			return err
		}
		// The status guard makes a concurrent second settlement a no-op.
		res := tx.Model(&domain.Escrow{}).
			Where("id = ? AND status = ?", escrow.ID, domain.EscrowHeld).
			Update("status", outcome)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrEscrowNotHeld
		}
		if err := debit(tx, escrow.PayerWalletID, "escrow_balance", escrow.Amount); err != nil {
			return err
		}
		target, txType := escrow.PayeeWalletID, domain.TxEscrowRelease
		if outcome == domain.EscrowRefunded {
			target, txType = escrow.PayerWalletID, domain.TxEscrowRefund
		}
		if err := credit(tx, target, "balance", escrow.Amount); err != nil {
			return err
		}
		escrow.Status = outcome
		return record(tx, &domain.Transaction{
			FromWalletID: &escrow.PayerWalletID,
			ToWalletID:   &target,
			Amount:       escrow.Amount,
			Type:         txType,
			Description:  escrow.Description,
		})
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}
