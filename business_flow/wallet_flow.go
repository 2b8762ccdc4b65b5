package businessflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/amirphl/Uwabami/app/dto"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
)

// WalletFlow owns every balance mutation. Reserve encumbers funds without a
// ledger entry, Commit converts a reservation into a debit entry, Rollback
// releases an unused reservation, Refund credits a failed order back. Every
// method that touches the balance takes the wallet row lock inside a
// transaction; a caller that already opened one is joined, not nested.
type WalletFlow interface {
	GetBalance(ctx context.Context, customerID uint) (*dto.WalletBalanceDTO, error)
	Deposit(ctx context.Context, customerID uint, amount decimal.Decimal, description string) (*dto.WalletTransactionDTO, error)
	Reserve(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID) error
	Commit(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID, description string) (uuid.UUID, error)
	Rollback(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID) error
	Refund(ctx context.Context, activationID uint) (uuid.UUID, error)
	ListTransactions(ctx context.Context, customerID uint, page, pageSize int) ([]dto.WalletTransactionDTO, error)
	VerifyLedger(ctx context.Context, walletID uint) error
}

// WalletFlowImpl implements WalletFlow
type WalletFlowImpl struct {
	db             *gorm.DB
	walletRepo     repository.WalletRepository
	txRepo         repository.WalletTransactionRepository
	activationRepo repository.ActivationRepository
	smsRepo        repository.SmsMessageRepository
}

// NewWalletFlow creates a new wallet flow
func NewWalletFlow(
	db *gorm.DB,
	walletRepo repository.WalletRepository,
	txRepo repository.WalletTransactionRepository,
	activationRepo repository.ActivationRepository,
	smsRepo repository.SmsMessageRepository,
) WalletFlow {
	return &WalletFlowImpl{
		db:             db,
		walletRepo:     walletRepo,
		txRepo:         txRepo,
		activationRepo: activationRepo,
		smsRepo:        smsRepo,
	}
}

// GetBalance returns the customer's current wallet view
func (f *WalletFlowImpl) GetBalance(ctx context.Context, customerID uint) (*dto.WalletBalanceDTO, error) {
	wallet, err := f.walletRepo.ByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}

	return &dto.WalletBalanceDTO{
		Balance:   wallet.Balance,
		Reserved:  wallet.Reserved,
		Available: wallet.Available(),
		Currency:  wallet.Currency,
	}, nil
}

// Deposit credits the wallet and writes the matching ledger entry
func (f *WalletFlowImpl) Deposit(ctx context.Context, customerID uint, amount decimal.Decimal, description string) (*dto.WalletTransactionDTO, error) {
	if !amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	var entry *models.WalletTransaction
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		wallet, err := f.walletRepo.ByCustomerIDForUpdate(txCtx, customerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		before := wallet.Balance
		wallet.Balance = wallet.Balance.Add(amount)
		if err := f.walletRepo.Update(txCtx, wallet); err != nil {
			return err
		}

		entry = &models.WalletTransaction{
			Type:          models.WalletTransactionTypeDeposit,
			Amount:        amount,
			WalletID:      wallet.ID,
			CustomerID:    customerID,
			BalanceBefore: before,
			BalanceAfter:  wallet.Balance,
			ReferenceID:   uuid.New(),
			Description:   description,
		}
		return f.txRepo.Save(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	out := toTransactionDTO(entry)
	return &out, nil
}

// Reserve encumbers funds for an in-flight purchase. No ledger entry is
// written; the balance has not changed yet.
func (f *WalletFlowImpl) Reserve(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		wallet, err := f.walletRepo.ByCustomerIDForUpdate(txCtx, customerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}
		if !wallet.CanReserve(amount) {
			return ErrInsufficientFunds
		}

		wallet.Reserved = wallet.Reserved.Add(amount)
		return f.walletRepo.Update(txCtx, wallet)
	})
}

// Commit converts a reservation into a captured purchase: the reservation is
// released, the balance drops, and the debit ledger entry is written in the
// same transaction. Returns the ledger entry UUID for capture bookkeeping.
func (f *WalletFlowImpl) Commit(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID, description string) (uuid.UUID, error) {
	if !amount.IsPositive() {
		return uuid.Nil, ErrAmountNotPositive
	}

	var entryUUID uuid.UUID
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		wallet, err := f.walletRepo.ByCustomerIDForUpdate(txCtx, customerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		before := wallet.Balance
		wallet.Reserved = wallet.Reserved.Sub(amount)
		if wallet.Reserved.IsNegative() {
			wallet.Reserved = decimal.Zero
		}
		wallet.Balance = wallet.Balance.Sub(amount)
		if wallet.Balance.IsNegative() {
			return fmt.Errorf("commit would drive wallet %d negative", wallet.ID)
		}
		if err := f.walletRepo.Update(txCtx, wallet); err != nil {
			return err
		}

		entry := &models.WalletTransaction{
			Type:          models.WalletTransactionTypePurchase,
			Amount:        amount.Neg(),
			WalletID:      wallet.ID,
			CustomerID:    customerID,
			BalanceBefore: before,
			BalanceAfter:  wallet.Balance,
			ReferenceID:   ref,
			Description:   description,
		}
		if err := f.txRepo.Save(txCtx, entry); err != nil {
			return err
		}
		entryUUID = entry.UUID
		return nil
	})
	return entryUUID, err
}

// Rollback releases an encumbrance that never became a purchase
func (f *WalletFlowImpl) Rollback(ctx context.Context, customerID uint, amount decimal.Decimal, ref uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		wallet, err := f.walletRepo.ByCustomerIDForUpdate(txCtx, customerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		wallet.Reserved = wallet.Reserved.Sub(amount)
		if wallet.Reserved.IsNegative() {
			wallet.Reserved = decimal.Zero
		}
		return f.walletRepo.Update(txCtx, wallet)
	})
}

// Refund returns the captured price of a failed order to the customer. The
// operation is idempotent: a second call for the same activation returns the
// stored refund id without touching the balance. Activations that received an
// SMS before terminating do not get money back; the entitlement was delivered,
// so the order is reclassified as completed instead.
func (f *WalletFlowImpl) Refund(ctx context.Context, activationID uint) (uuid.UUID, error) {
	var refundID uuid.UUID

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		activation, err := f.activationRepo.ByID(txCtx, activationID)
		if err != nil {
			return err
		}
		if activation == nil {
			return ErrActivationNotFound
		}

		if activation.RefundTxID != nil {
			refundID = *activation.RefundTxID
			return nil
		}
		if !activation.Status.IsRefundable() || activation.CaptureTxID == nil {
			return ErrRefundNotOwed
		}

		// Existing refund entry without the stamp means a previous attempt
		// crashed between ledger write and activation update; finish the stamp.
		if existing, err := f.txRepo.ByReference(txCtx, activation.UUID, models.WalletTransactionTypeRefund); err != nil {
			return err
		} else if existing != nil {
			refundID = existing.UUID
			return f.stampRefund(txCtx, activation, refundID)
		}
		// Same recovery for a crashed withheld refund: the adjustment entry
		// exists, the reclassification does not.
		if existing, err := f.txRepo.ByReference(txCtx, activation.UUID, models.WalletTransactionTypeAdjustment); err != nil {
			return err
		} else if existing != nil {
			refundID = existing.UUID
			return f.reclassifyDelivered(txCtx, activation, refundID)
		}

		smsCount, err := f.smsRepo.CountByActivation(txCtx, activation.ID)
		if err != nil {
			return err
		}

		wallet, err := f.walletRepo.ByCustomerIDForUpdate(txCtx, activation.CustomerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}

		entry := &models.WalletTransaction{
			WalletID:      wallet.ID,
			CustomerID:    activation.CustomerID,
			CorrelationID: activation.CorrelationID,
			ReferenceID:   activation.UUID,
			BalanceBefore: wallet.Balance,
		}

		if smsCount > 0 {
			// Withheld refund: the order becomes completed and a zero-amount
			// adjustment documents the decision in the ledger
			entry.Type = models.WalletTransactionTypeAdjustment
			entry.Amount = decimal.Zero
			entry.BalanceAfter = wallet.Balance
			entry.Description = "refund withheld: sms delivered before termination"
			if err := f.txRepo.Save(txCtx, entry); err != nil {
				return err
			}
			refundID = entry.UUID
			return f.reclassifyDelivered(txCtx, activation, refundID)
		}

		wallet.Balance = wallet.Balance.Add(activation.Price)
		if err := f.walletRepo.Update(txCtx, wallet); err != nil {
			return err
		}
		entry.Type = models.WalletTransactionTypeRefund
		entry.Amount = activation.Price
		entry.BalanceAfter = wallet.Balance
		entry.Description = fmt.Sprintf("refund for %s order %s", activation.Service, activation.UUID)

		if err := f.txRepo.Save(txCtx, entry); err != nil {
			return err
		}

		refundID = entry.UUID
		return f.stampRefund(txCtx, activation, refundID)
	})

	return refundID, err
}

// reclassifyDelivered closes a failure-terminal order as completed because its
// SMS was delivered before termination. The adjustment id is pinned as the
// refund transaction so repeated calls stay idempotent.
func (f *WalletFlowImpl) reclassifyDelivered(ctx context.Context, activation *models.Activation, adjustmentID uuid.UUID) error {
	applied, err := f.activationRepo.UpdateStatusCAS(ctx, activation.ID, activation.Status, models.ActivationStatusCompleted, map[string]any{
		"refund_tx_id": adjustmentID,
	})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: %s -> completed lost the race", ErrInvalidStateTransition, activation.Status)
	}
	return nil
}

// stampRefund moves the activation into refunded and pins the ledger entry id
func (f *WalletFlowImpl) stampRefund(ctx context.Context, activation *models.Activation, refundID uuid.UUID) error {
	applied, err := f.activationRepo.UpdateStatusCAS(ctx, activation.ID, activation.Status, models.ActivationStatusRefunded, map[string]any{
		"refund_tx_id": refundID,
	})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: %s -> refunded lost the race", ErrInvalidStateTransition, activation.Status)
	}
	return nil
}

// ListTransactions returns the customer's ledger page, newest first
func (f *WalletFlowImpl) ListTransactions(ctx context.Context, customerID uint, page, pageSize int) ([]dto.WalletTransactionDTO, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, ErrInvalidPageSize
	}

	entries, err := f.txRepo.ListByCustomer(ctx, customerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := make([]dto.WalletTransactionDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toTransactionDTO(entry))
	}
	return out, nil
}

// VerifyLedger checks that the signed sum of a wallet's ledger entries equals
// its current balance
func (f *WalletFlowImpl) VerifyLedger(ctx context.Context, walletID uint) error {
	wallet, err := f.walletRepo.ByID(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return ErrWalletNotFound
	}

	sum, err := f.txRepo.SumByWallet(ctx, walletID)
	if err != nil {
		return err
	}

	if !sum.Equal(wallet.Balance) {
		return fmt.Errorf("%w: wallet %d balance %s ledger sum %s", ErrLedgerIntegrity, walletID, wallet.Balance, sum)
	}
	return nil
}

func toTransactionDTO(entry *models.WalletTransaction) dto.WalletTransactionDTO {
	return dto.WalletTransactionDTO{
		UUID:          entry.UUID.String(),
		Type:          string(entry.Type),
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		ReferenceID:   entry.ReferenceID.String(),
		Description:   entry.Description,
		CreatedAt:     entry.CreatedAt,
	}
}
