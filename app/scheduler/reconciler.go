package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amirphl/Uwabami/app/services"
	businessflow "github.com/amirphl/Uwabami/business_flow"
	"github.com/amirphl/Uwabami/config"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
	"github.com/amirphl/Uwabami/utils"
)

// Reconciler is the safety net for money that crashed mid-flight. It fails
// stuck pending activations and releases their reservations, pays out owed
// refunds, and refreshes provider balances. Only one instance runs a sweep at
// a time thanks to a redis lock.
type Reconciler struct {
	activationRepo repository.ActivationRepository
	providerRepo   repository.ProviderRepository
	walletFlow     businessflow.WalletFlow
	adapter        services.ProviderAdapter
	lock           *DistributedLock

	interval       time.Duration
	stuckThreshold time.Duration
	sweepLimit     int

	logger *log.Logger
}

// NewReconciler creates a reconciler from the runtime configuration
func NewReconciler(
	activationRepo repository.ActivationRepository,
	providerRepo repository.ProviderRepository,
	walletFlow businessflow.WalletFlow,
	adapter services.ProviderAdapter,
	redisClient *redis.Client,
	cfg config.ReconcilerConfig,
) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	stuckThreshold := cfg.StuckThreshold
	if stuckThreshold <= 0 {
		stuckThreshold = utils.StuckReservationThreshold
	}
	sweepLimit := cfg.SweepLimit
	if sweepLimit <= 0 {
		sweepLimit = 200
	}

	return &Reconciler{
		activationRepo: activationRepo,
		providerRepo:   providerRepo,
		walletFlow:     walletFlow,
		adapter:        adapter,
		lock:           NewDistributedLock(redisClient, utils.ReconcilerLockKey, lockTTL),
		interval:       interval,
		stuckThreshold: stuckThreshold,
		sweepLimit:     sweepLimit,
		logger:         newSchedulerLogger("reconciler"),
	}
}

// Start launches the reconciler loop in a background goroutine and returns a stop function
func (r *Reconciler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce takes the cluster lock and runs all sweeps
func (r *Reconciler) runOnce(ctx context.Context) {
	acquired, err := r.lock.TryAcquire(ctx)
	if err != nil {
		r.logger.Printf("reconciler: acquire lock: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Printf("reconciler: release lock: %v", err)
		}
	}()

	r.sweepStuckPending(ctx)
	r.sweepRefunds(ctx)
	r.refreshProviderBalances(ctx)
}

// sweepStuckPending fails pending activations whose purchase never finished
// and releases the funds they still encumber
func (r *Reconciler) sweepStuckPending(ctx context.Context) {
	cutoff := utils.UTCNow().Add(-r.stuckThreshold)

	stuck, err := r.activationRepo.ListStuckPending(ctx, cutoff, r.sweepLimit)
	if err != nil {
		r.logger.Printf("reconciler: list stuck pending: %v", err)
		return
	}

	for _, activation := range stuck {
		applied, err := r.activationRepo.UpdateStatusCAS(ctx, activation.ID,
			models.ActivationStatusPending, models.ActivationStatusFailed, nil)
		if err != nil {
			r.logger.Printf("reconciler: fail stuck activation %s: %v", activation.UUID, err)
			continue
		}
		if !applied {
			continue
		}

		// Without a capture the money is merely encumbered; release it. With a
		// capture the refund sweep pays it back through the ledger.
		if activation.CaptureTxID == nil {
			if err := r.walletFlow.Rollback(ctx, activation.CustomerID, activation.Price, activation.ReservationRef); err != nil {
				r.logger.Printf("reconciler: rollback reservation %s: %v", activation.ReservationRef, err)
				continue
			}
		}
		r.logger.Printf("reconciler: failed stuck activation %s (age > %s)", activation.UUID, r.stuckThreshold)
	}
}

// sweepRefunds pays back captured money on failure-terminal activations
func (r *Reconciler) sweepRefunds(ctx context.Context) {
	owed, err := r.activationRepo.ListRefundOwed(ctx, r.sweepLimit)
	if err != nil {
		r.logger.Printf("reconciler: list refunds owed: %v", err)
		return
	}

	for _, activation := range owed {
		if _, err := r.walletFlow.Refund(ctx, activation.ID); err != nil {
			if errors.Is(err, businessflow.ErrRefundNotOwed) {
				continue
			}
			r.logger.Printf("reconciler: refund activation %s: %v", activation.UUID, err)
		}
	}
}

// refreshProviderBalances pulls the broker's remaining balance at each active
// provider so operators can see funding problems before purchases fail
func (r *Reconciler) refreshProviderBalances(ctx context.Context) {
	providers, err := r.providerRepo.ListActive(ctx)
	if err != nil {
		r.logger.Printf("reconciler: list providers: %v", err)
		return
	}

	for _, provider := range providers {
		balance, err := r.adapter.GetBalance(ctx, provider)
		if err != nil {
			if !errors.Is(err, services.ErrOperationNotConfigured) && !errors.Is(err, services.ErrProviderUnavailable) {
				r.logger.Printf("reconciler: balance check %s: %v", provider.Name, err)
			}
			continue
		}
		if err := r.providerRepo.UpdateBalance(ctx, provider.ID, balance); err != nil {
			r.logger.Printf("reconciler: store balance for %s: %v", provider.Name, err)
		}
	}
}
