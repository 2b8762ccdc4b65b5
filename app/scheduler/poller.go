package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amirphl/Uwabami/app/services"
	"github.com/amirphl/Uwabami/config"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
	"github.com/amirphl/Uwabami/utils"
)

// StatusPoller periodically checks pollable activations against their
// providers, persists relayed SMS messages and finalizes orders the provider
// or the TTL has ended. Each activation carries its own next-poll timestamp;
// the poller only wakes the ones that are due.
type StatusPoller struct {
	activationRepo repository.ActivationRepository
	smsRepo        repository.SmsMessageRepository
	providerRepo   repository.ProviderRepository
	adapter        services.ProviderAdapter
	notifier       services.NotificationDispatcher

	interval       time.Duration
	batchSize      int
	maxConcurrency int

	logger *log.Logger
}

// NewStatusPoller creates a poller from the runtime configuration
func NewStatusPoller(
	activationRepo repository.ActivationRepository,
	smsRepo repository.SmsMessageRepository,
	providerRepo repository.ProviderRepository,
	adapter services.ProviderAdapter,
	notifier services.NotificationDispatcher,
	cfg config.PollerConfig,
) *StatusPoller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 50
	}

	return &StatusPoller{
		activationRepo: activationRepo,
		smsRepo:        smsRepo,
		providerRepo:   providerRepo,
		adapter:        adapter,
		notifier:       notifier,
		interval:       interval,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
		logger:         newSchedulerLogger("poller"),
	}
}

// Start launches the poller loop in a background goroutine and returns a stop function
func (p *StatusPoller) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce drains one batch of due activations through a bounded worker pool
func (p *StatusPoller) runOnce(ctx context.Context) {
	now := utils.UTCNow()

	due, err := p.activationRepo.ListDueForPoll(ctx, now, p.batchSize)
	if err != nil {
		p.logger.Printf("poller: list due activations: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup
	for _, activation := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(a *models.Activation) {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollOne(ctx, a)
		}(activation)
	}
	wg.Wait()
}

// pollOne processes a single activation: expiry first, then one provider
// status call, then state bookkeeping.
func (p *StatusPoller) pollOne(ctx context.Context, activation *models.Activation) {
	now := utils.UTCNow()

	if !now.Before(activation.ExpiresAt) {
		p.finalize(ctx, activation, models.ActivationStatusExpired)
		p.releaseUpstream(ctx, activation)
		return
	}

	provider, err := p.providerRepo.ByID(ctx, activation.ProviderID)
	if err != nil || provider == nil {
		p.logger.Printf("poller: load provider %d: %v", activation.ProviderID, err)
		p.reschedule(ctx, activation, utils.TransientPollCooldown)
		return
	}

	result, err := p.adapter.GetStatus(ctx, provider, activation.ExternalID)
	if err != nil {
		if services.IsLifecycleTerminal(err) {
			// The provider no longer knows the activation; it is over upstream
			p.finalizeTerminal(ctx, activation)
			return
		}
		// Open breaker, network trouble, unexpected payload: cool down and retry
		p.reschedule(ctx, activation, utils.TransientPollCooldown)
		return
	}

	p.persistMessages(ctx, activation, provider, result)

	switch result.Status {
	case services.ProviderStatusCancelled:
		p.finalize(ctx, activation, models.ActivationStatusCancelled)
	case services.ProviderStatusExpired:
		p.finalize(ctx, activation, models.ActivationStatusExpired)
	case services.ProviderStatusCompleted:
		if applied, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
			models.ActivationStatusReceived, models.ActivationStatusCompleted, nil); err != nil {
			p.logger.Printf("poller: complete activation %s: %v", activation.UUID, err)
		} else if !applied {
			// Completed upstream before any SMS reached us; keep polling so a
			// late relay still lands, the TTL bounds the tail
			p.reschedule(ctx, activation, p.nextDelay(activation, now))
		}
	default:
		if !result.Mapped {
			p.logger.Printf("poller: provider %s returned unmapped status for %s, treating as pending",
				provider.Name, activation.UUID)
		}
		p.reschedule(ctx, activation, p.nextDelay(activation, now))
	}
}

// persistMessages appends newly relayed SMS rows, flips the activation to
// received on the first one and notifies the customer
func (p *StatusPoller) persistMessages(ctx context.Context, activation *models.Activation, provider *models.Provider, result *services.StatusResult) {
	for _, msg := range result.Messages {
		inserted, err := p.smsRepo.SaveIgnoreDuplicate(ctx, &models.SmsMessage{
			ActivationID: activation.ID,
			Sender:       msg.Sender,
			Body:         msg.Body,
			Code:         msg.Code,
			ReceivedAt:   utils.UTCNow(),
		})
		if err != nil {
			p.logger.Printf("poller: persist sms for %s: %v", activation.UUID, err)
			continue
		}
		if !inserted {
			continue
		}

		applied, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
			models.ActivationStatusActive, models.ActivationStatusReceived, nil)
		if err != nil {
			p.logger.Printf("poller: mark received %s: %v", activation.UUID, err)
		}
		if applied {
			activation.Status = models.ActivationStatusReceived
		}

		event := services.SMSArrivedEvent{
			ActivationID: activation.UUID,
			CustomerID:   activation.CustomerID,
			PhoneNumber:  activation.PhoneNumber,
			Service:      activation.Service,
			Code:         msg.Code,
			Sender:       msg.Sender,
		}
		go func() {
			if err := p.notifier.NotifySMSArrived(context.WithoutCancel(ctx), event); err != nil {
				p.logger.Printf("poller: notify customer %d: %v", event.CustomerID, err)
			}
		}()
	}
}

// finalize moves the activation into a terminal state from whichever pollable
// state it currently holds. Received rows already delivered their SMS and
// cannot be cancelled; a provider-side termination closes them as completed.
// Refunds are owed by the reconciliation sweep, not here.
func (p *StatusPoller) finalize(ctx context.Context, activation *models.Activation, target models.ActivationStatus) {
	applied, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusActive, target, nil)
	if err != nil {
		p.logger.Printf("poller: finalize %s as %s: %v", activation.UUID, target, err)
		return
	}
	if applied {
		return
	}

	fallback := target
	if !models.CanTransition(models.ActivationStatusReceived, target) {
		fallback = models.ActivationStatusCompleted
	}
	if _, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusReceived, fallback, nil); err != nil {
		p.logger.Printf("poller: finalize %s as %s: %v", activation.UUID, fallback, err)
	}
}

// finalizeTerminal handles a provider that forgot the activation entirely.
// Orders that delivered an SMS close as completed, undelivered ones as expired.
func (p *StatusPoller) finalizeTerminal(ctx context.Context, activation *models.Activation) {
	applied, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusReceived, models.ActivationStatusCompleted, nil)
	if err != nil {
		p.logger.Printf("poller: finalize %s: %v", activation.UUID, err)
		return
	}
	if applied {
		return
	}
	if _, err := p.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusActive, models.ActivationStatusExpired, nil); err != nil {
		p.logger.Printf("poller: finalize %s: %v", activation.UUID, err)
	}
}

// releaseUpstream best-effort cancels the provider-side order of a number
// that expired locally
func (p *StatusPoller) releaseUpstream(ctx context.Context, activation *models.Activation) {
	provider, err := p.providerRepo.ByID(ctx, activation.ProviderID)
	if err != nil || provider == nil {
		return
	}
	if err := p.adapter.CancelNumber(ctx, provider, activation.ExternalID); err != nil {
		p.logger.Printf("poller: release expired order %s at %s: %v", activation.ExternalID, provider.Name, err)
	}
}

// reschedule arms the next poll
func (p *StatusPoller) reschedule(ctx context.Context, activation *models.Activation, delay time.Duration) {
	next := utils.UTCNow().Add(withJitter(delay))
	if err := p.activationRepo.SchedulePoll(ctx, activation.ID, next, activation.PollCount+1); err != nil {
		p.logger.Printf("poller: schedule next poll for %s: %v", activation.UUID, err)
	}
}

func (p *StatusPoller) nextDelay(activation *models.Activation, now time.Time) time.Duration {
	return NextPollDelay(now.Sub(activation.CreatedAt), activation.PollCount+1)
}
