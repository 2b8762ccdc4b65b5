// Package tests contains integration tests for the wallet ledger
package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	businessflow "github.com/amirphl/Uwabami/business_flow"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
	testingutil "github.com/amirphl/Uwabami/testing"
)

func newWalletFlow(testDB *testingutil.TestDB) businessflow.WalletFlow {
	return businessflow.NewWalletFlow(
		testDB.DB,
		repository.NewWalletRepository(testDB.DB),
		repository.NewWalletTransactionRepository(testDB.DB),
		repository.NewActivationRepository(testDB.DB),
		repository.NewSmsMessageRepository(testDB.DB),
	)
}

// capturedActivation walks an activation through the real money path so the
// ledger invariant holds: reserve, commit against the activation UUID, stamp
// the capture id, then park it in the requested terminal status.
func capturedActivation(
	t *testing.T,
	testDB *testingutil.TestDB,
	fixtures *testingutil.TestFixtures,
	walletFlow businessflow.WalletFlow,
	customerID, providerID uint,
	status models.ActivationStatus,
) *models.Activation {
	t.Helper()
	ctx := context.Background()

	activation, err := fixtures.CreateTestActivation(customerID, providerID, models.ActivationStatusPending)
	require.NoError(t, err)

	require.NoError(t, walletFlow.Reserve(ctx, customerID, activation.Price, activation.ReservationRef))
	captureID, err := walletFlow.Commit(ctx, customerID, activation.Price, activation.UUID, "number purchase")
	require.NoError(t, err)

	err = testDB.DB.Model(&models.Activation{}).
		Where("id = ?", activation.ID).
		Updates(map[string]any{"status": status, "capture_tx_id": captureID}).Error
	require.NoError(t, err)

	activation.Status = status
	activation.CaptureTxID = &captureID
	return activation
}

func TestWalletFlow(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("postgres not available")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		walletFlow := newWalletFlow(testDB)
		ctx := context.Background()

		t.Run("DepositCreditsBalanceAndLedger", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(101, decimal.NewFromInt(10))
			require.NoError(t, err)

			entry, err := walletFlow.Deposit(ctx, 101, decimal.NewFromFloat(2.5), "top up")
			require.NoError(t, err)
			assert.Equal(t, string(models.WalletTransactionTypeDeposit), entry.Type)
			assert.True(t, entry.Amount.Equal(decimal.NewFromFloat(2.5)))
			assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromFloat(12.5)))

			balance, err := walletFlow.GetBalance(ctx, 101)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromFloat(12.5)))

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("DepositRejectsNonPositiveAmount", func(t *testing.T) {
			_, err := fixtures.CreateTestWallet(102, decimal.NewFromInt(10))
			require.NoError(t, err)

			_, err = walletFlow.Deposit(ctx, 102, decimal.Zero, "nothing")
			assert.ErrorIs(t, err, businessflow.ErrAmountNotPositive)

			_, err = walletFlow.Deposit(ctx, 102, decimal.NewFromInt(-1), "negative")
			assert.ErrorIs(t, err, businessflow.ErrAmountNotPositive)
		})

		t.Run("ReserveEncumbersWithoutLedgerEntry", func(t *testing.T) {
			_, err := fixtures.CreateTestWallet(103, decimal.NewFromInt(10))
			require.NoError(t, err)

			require.NoError(t, walletFlow.Reserve(ctx, 103, decimal.NewFromInt(3), uuid.New()))

			balance, err := walletFlow.GetBalance(ctx, 103)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)), "reserve must not move the balance")
			assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(3)))
			assert.True(t, balance.Available.Equal(decimal.NewFromInt(7)))

			entries, err := walletFlow.ListTransactions(ctx, 103, 1, 10)
			require.NoError(t, err)
			require.Len(t, entries, 1, "only the opening deposit should be in the ledger")
		})

		t.Run("ReserveFailsOnInsufficientAvailable", func(t *testing.T) {
			_, err := fixtures.CreateTestWallet(104, decimal.NewFromInt(5))
			require.NoError(t, err)

			require.NoError(t, walletFlow.Reserve(ctx, 104, decimal.NewFromInt(4), uuid.New()))

			// Balance is 5 but only 1 is unencumbered
			err = walletFlow.Reserve(ctx, 104, decimal.NewFromInt(2), uuid.New())
			assert.ErrorIs(t, err, businessflow.ErrInsufficientFunds)
		})

		t.Run("CommitConvertsReservationIntoDebit", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(105, decimal.NewFromInt(10))
			require.NoError(t, err)

			ref := uuid.New()
			price := decimal.NewFromFloat(0.65)
			require.NoError(t, walletFlow.Reserve(ctx, 105, price, ref))

			captureID, err := walletFlow.Commit(ctx, 105, price, ref, "number purchase tg via alpha")
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, captureID)

			balance, err := walletFlow.GetBalance(ctx, 105)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromFloat(9.35)))
			assert.True(t, balance.Reserved.IsZero())

			entries, err := walletFlow.ListTransactions(ctx, 105, 1, 10)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, string(models.WalletTransactionTypePurchase), entries[0].Type)
			assert.True(t, entries[0].Amount.Equal(price.Neg()), "purchase entries are negative")
			assert.Equal(t, ref.String(), entries[0].ReferenceID)

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("RollbackReleasesReservation", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(106, decimal.NewFromInt(10))
			require.NoError(t, err)

			ref := uuid.New()
			require.NoError(t, walletFlow.Reserve(ctx, 106, decimal.NewFromInt(3), ref))
			require.NoError(t, walletFlow.Rollback(ctx, 106, decimal.NewFromInt(3), ref))

			balance, err := walletFlow.GetBalance(ctx, 106)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)))
			assert.True(t, balance.Reserved.IsZero())

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("RefundReturnsCapturedPrice", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(107, decimal.NewFromInt(10))
			require.NoError(t, err)
			provider, err := fixtures.CreateTestProvider("refund-alpha", "http://127.0.0.1:1")
			require.NoError(t, err)

			activation := capturedActivation(t, testDB, fixtures, walletFlow, 107, provider.ID, models.ActivationStatusCancelled)

			refundID, err := walletFlow.Refund(ctx, activation.ID)
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, refundID)

			balance, err := walletFlow.GetBalance(ctx, 107)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)), "refund restores the captured price")

			var reloaded models.Activation
			require.NoError(t, testDB.DB.First(&reloaded, activation.ID).Error)
			assert.Equal(t, models.ActivationStatusRefunded, reloaded.Status)
			require.NotNil(t, reloaded.RefundTxID)
			assert.Equal(t, refundID, *reloaded.RefundTxID)

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("RefundIsIdempotent", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(108, decimal.NewFromInt(10))
			require.NoError(t, err)
			provider, err := fixtures.CreateTestProvider("refund-bravo", "http://127.0.0.1:1")
			require.NoError(t, err)

			activation := capturedActivation(t, testDB, fixtures, walletFlow, 108, provider.ID, models.ActivationStatusExpired)

			first, err := walletFlow.Refund(ctx, activation.ID)
			require.NoError(t, err)
			second, err := walletFlow.Refund(ctx, activation.ID)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			balance, err := walletFlow.GetBalance(ctx, 108)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)), "second refund must not credit again")

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("RefundWithheldReclassifiesDeliveredOrder", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(109, decimal.NewFromInt(10))
			require.NoError(t, err)
			provider, err := fixtures.CreateTestProvider("refund-charlie", "http://127.0.0.1:1")
			require.NoError(t, err)

			activation := capturedActivation(t, testDB, fixtures, walletFlow, 109, provider.ID, models.ActivationStatusExpired)
			require.NoError(t, testDB.DB.Create(&models.SmsMessage{
				ActivationID: activation.ID,
				Sender:       "Telegram",
				Body:         "Your code is 4921",
				Code:         "4921",
			}).Error)

			refundID, err := walletFlow.Refund(ctx, activation.ID)
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, refundID)

			balance, err := walletFlow.GetBalance(ctx, 109)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromFloat(9.35)), "delivered entitlements are not refunded")

			// The order closes as completed, not refunded: the SMS was consumed
			var reloaded models.Activation
			require.NoError(t, testDB.DB.First(&reloaded, activation.ID).Error)
			assert.Equal(t, models.ActivationStatusCompleted, reloaded.Status)
			require.NotNil(t, reloaded.RefundTxID)
			assert.Equal(t, refundID, *reloaded.RefundTxID)

			// The decision is documented as a zero-amount adjustment
			var adjustment models.WalletTransaction
			require.NoError(t, testDB.DB.
				Where("reference_id = ? AND type = ?", activation.UUID, models.WalletTransactionTypeAdjustment).
				First(&adjustment).Error)
			assert.True(t, adjustment.Amount.IsZero())

			// Repeating the call neither credits nor duplicates the adjustment
			again, err := walletFlow.Refund(ctx, activation.ID)
			require.NoError(t, err)
			assert.Equal(t, refundID, again)
			var adjustments int64
			require.NoError(t, testDB.DB.Model(&models.WalletTransaction{}).
				Where("reference_id = ? AND type = ?", activation.UUID, models.WalletTransactionTypeAdjustment).
				Count(&adjustments).Error)
			assert.Equal(t, int64(1), adjustments)

			require.NoError(t, walletFlow.VerifyLedger(ctx, wallet.ID))
		})

		t.Run("RefundNotOwedForLiveOrUncapturedOrders", func(t *testing.T) {
			_, err := fixtures.CreateTestWallet(110, decimal.NewFromInt(10))
			require.NoError(t, err)
			provider, err := fixtures.CreateTestProvider("refund-delta", "http://127.0.0.1:1")
			require.NoError(t, err)

			live, err := fixtures.CreateTestActivation(110, provider.ID, models.ActivationStatusActive)
			require.NoError(t, err)
			_, err = walletFlow.Refund(ctx, live.ID)
			assert.ErrorIs(t, err, businessflow.ErrRefundNotOwed)

			// Cancelled but never captured: the reservation was rolled back, no money moved
			uncaptured, err := fixtures.CreateTestActivation(110, provider.ID, models.ActivationStatusCancelled)
			require.NoError(t, err)
			_, err = walletFlow.Refund(ctx, uncaptured.ID)
			assert.ErrorIs(t, err, businessflow.ErrRefundNotOwed)
		})

		t.Run("LedgerIntegrityViolationDetected", func(t *testing.T) {
			wallet, err := fixtures.CreateTestWallet(111, decimal.NewFromInt(10))
			require.NoError(t, err)

			// Corrupt the balance behind the ledger's back
			require.NoError(t, testDB.DB.Model(&models.Wallet{}).
				Where("id = ?", wallet.ID).
				Update("balance", decimal.NewFromInt(99)).Error)

			err = walletFlow.VerifyLedger(ctx, wallet.ID)
			assert.ErrorIs(t, err, businessflow.ErrLedgerIntegrity)
		})

		t.Run("LedgerWritesJoinCallerTransaction", func(t *testing.T) {
			_, err := fixtures.CreateTestWallet(112, decimal.NewFromInt(10))
			require.NoError(t, err)

			// Settlement runs reserve, persist and capture inside a single
			// transaction; an error at any step must unwind all of them together
			boom := errors.New("settlement interrupted")
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				if err := walletFlow.Reserve(txCtx, 112, decimal.NewFromInt(3), uuid.New()); err != nil {
					return err
				}
				if _, err := walletFlow.Commit(txCtx, 112, decimal.NewFromInt(3), uuid.New(), "number purchase"); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			balance, err := walletFlow.GetBalance(ctx, 112)
			require.NoError(t, err)
			assert.True(t, balance.Balance.Equal(decimal.NewFromInt(10)), "aborted settlement must leave no debit")
			assert.True(t, balance.Reserved.IsZero(), "aborted settlement must leave no encumbrance")

			entries, err := walletFlow.ListTransactions(ctx, 112, 1, 10)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "only the opening deposit survives")
		})

		t.Run("WalletNotFound", func(t *testing.T) {
			_, err := walletFlow.GetBalance(ctx, 99999)
			assert.ErrorIs(t, err, businessflow.ErrWalletNotFound)
		})

		return nil
	})
	require.NoError(t, err)
}
