package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/amirphl/Uwabami/app/dto"
	"github.com/amirphl/Uwabami/app/services"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
	"github.com/amirphl/Uwabami/utils"
)

// NumberFlow owns the customer-facing number lifecycle: purchase with
// scored fallback across providers, status reads, cancel and complete.
type NumberFlow interface {
	PurchaseNumber(ctx context.Context, customerID uint, req *dto.PurchaseNumberRequest) (*dto.ActivationDTO, error)
	GetNumberStatus(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error)
	ListNumbers(ctx context.Context, customerID uint, page, pageSize int) ([]dto.ActivationDTO, error)
	CancelNumber(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error)
	CompleteNumber(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error)
	RankCandidates(ctx context.Context, country, service string) ([]services.ProviderHealth, error)
	ProviderHealthReport(ctx context.Context) ([]dto.ProviderHealthDTO, error)
}

// NumberFlowImpl implements NumberFlow
type NumberFlowImpl struct {
	db             *gorm.DB
	providerRepo   repository.ProviderRepository
	activationRepo repository.ActivationRepository
	smsRepo        repository.SmsMessageRepository
	walletFlow     WalletFlow
	adapter        services.ProviderAdapter
	registry       *services.ProviderRegistry
	healthMonitor  *services.HealthMonitor

	maxFallbackProviders int
}

// NewNumberFlow creates a new number flow
func NewNumberFlow(
	db *gorm.DB,
	providerRepo repository.ProviderRepository,
	activationRepo repository.ActivationRepository,
	smsRepo repository.SmsMessageRepository,
	walletFlow WalletFlow,
	adapter services.ProviderAdapter,
	registry *services.ProviderRegistry,
	healthMonitor *services.HealthMonitor,
	maxFallbackProviders int,
) NumberFlow {
	if maxFallbackProviders < 1 {
		maxFallbackProviders = 1
	}
	return &NumberFlowImpl{
		db:                   db,
		providerRepo:         providerRepo,
		activationRepo:       activationRepo,
		smsRepo:              smsRepo,
		walletFlow:           walletFlow,
		adapter:              adapter,
		registry:             registry,
		healthMonitor:        healthMonitor,
		maxFallbackProviders: maxFallbackProviders,
	}
}

// RankCandidates returns the active providers ordered by selection score for
// one country and service, excluding misconfigured documents and any provider
// whose circuit is currently open
func (f *NumberFlowImpl) RankCandidates(ctx context.Context, country, service string) ([]services.ProviderHealth, error) {
	providers, err := f.providerRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	available := make([]*models.Provider, 0, len(providers))
	for _, p := range providers {
		if err := p.Validate(); err != nil {
			log.Printf("ranking %s/%s: provider %s document rejected: %v", country, service, p.Name, err)
			continue
		}
		if f.registry.Breaker(p.ID).State() == services.BreakerOpen {
			continue
		}
		available = append(available, p)
	}

	health := f.healthMonitor.Evaluate(available)
	return services.RankProviders(health), nil
}

// PurchaseNumber buys a virtual number from the best available provider,
// walking down the ranked list when a candidate rejects or fails. Funds are
// reserved before the order is persisted and captured once it is; a failure
// in between releases the reservation.
func (f *NumberFlowImpl) PurchaseNumber(ctx context.Context, customerID uint, req *dto.PurchaseNumberRequest) (*dto.ActivationDTO, error) {
	ranked, err := f.RankCandidates(ctx, req.Country, req.Service)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	if len(ranked) > f.maxFallbackProviders {
		ranked = ranked[:f.maxFallbackProviders]
	}

	var lastErr error
	for rank, candidate := range ranked {
		provider := candidate.Provider
		services.RecordFallbackAttempt(strconv.Itoa(rank))

		order, err := f.adapter.GetNumber(ctx, provider, req.Country, req.Service, req.Operator)
		if err != nil {
			lastErr = err
			log.Printf("purchase: provider %s rejected %s/%s: %v", provider.Name, req.Country, req.Service, err)
			continue
		}

		activation, err := f.settlePurchase(ctx, customerID, provider, order)
		if err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				// More money will not appear at the next provider
				f.releaseUpstream(ctx, provider, order.ExternalID)
				return nil, err
			}
			lastErr = err
			f.releaseUpstream(ctx, provider, order.ExternalID)
			continue
		}

		return f.toActivationDTO(activation, provider, nil), nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, ErrAllProvidersFailed
}

// settlePurchase runs the financial half of a purchase: reserve, persist the
// order, capture, arm the first poll. Everything happens in one database
// transaction, so a crash at any point leaves either a fully settled active
// order or nothing at all; captured money without a row that owns it cannot
// occur.
func (f *NumberFlowImpl) settlePurchase(ctx context.Context, customerID uint, provider *models.Provider, order *services.NumberOrder) (*models.Activation, error) {
	price := provider.AdjustPrice(order.Price)
	ref := uuid.New()
	now := utils.UTCNow()
	firstPoll := now.Add(utils.InitialPollDelay)

	activation := &models.Activation{
		CustomerID:     customerID,
		ProviderID:     provider.ID,
		ExternalID:     order.ExternalID,
		PhoneNumber:    order.PhoneNumber,
		Country:        order.Country,
		Service:        order.Service,
		Price:          price,
		Status:         models.ActivationStatusPending,
		ReservationRef: ref,
		ExpiresAt:      now.Add(utils.DefaultActivationTTL),
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.walletFlow.Reserve(txCtx, customerID, price, ref); err != nil {
			log.Printf("purchase: reserve %s for customer %d ref %s: %v", price, customerID, ref, err)
			return err
		}

		if err := f.activationRepo.Save(txCtx, activation); err != nil {
			return fmt.Errorf("failed to persist activation: %w", err)
		}

		captureID, err := f.walletFlow.Commit(txCtx, customerID, price, activation.UUID,
			fmt.Sprintf("number purchase %s via %s", order.Service, provider.Name))
		if err != nil {
			log.Printf("purchase: capture %s for customer %d activation %s: %v", price, customerID, activation.UUID, err)
			return fmt.Errorf("failed to capture funds: %w", err)
		}

		applied, err := f.activationRepo.UpdateStatusCAS(txCtx, activation.ID,
			models.ActivationStatusPending, models.ActivationStatusActive, map[string]any{
				"capture_tx_id": captureID,
				"next_poll_at":  firstPoll,
			})
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("%w: pending -> active lost the race", ErrInvalidStateTransition)
		}

		activation.Status = models.ActivationStatusActive
		activation.CaptureTxID = &captureID
		activation.NextPollAt = &firstPoll
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activation, nil
}

// releaseUpstream cancels a provider-side order that never became an activation
func (f *NumberFlowImpl) releaseUpstream(ctx context.Context, provider *models.Provider, externalID string) {
	if externalID == "" {
		return
	}
	if err := f.adapter.CancelNumber(ctx, provider, externalID); err != nil {
		log.Printf("purchase: release upstream order %s at %s: %v", externalID, provider.Name, err)
	}
}

// GetNumberStatus returns the current state of a customer's activation
// including all relayed SMS messages
func (f *NumberFlowImpl) GetNumberStatus(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error) {
	activation, provider, err := f.loadOwned(ctx, customerID, activationUUID)
	if err != nil {
		return nil, err
	}

	messages, err := f.smsRepo.ListByActivation(ctx, activation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return f.toActivationDTO(activation, provider, messages), nil
}

// ListNumbers returns the customer's activations, newest first
func (f *NumberFlowImpl) ListNumbers(ctx context.Context, customerID uint, page, pageSize int) ([]dto.ActivationDTO, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, ErrInvalidPageSize
	}

	activations, err := f.activationRepo.ByFilter(ctx, models.ActivationFilter{CustomerID: &customerID},
		"created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}

	out := make([]dto.ActivationDTO, 0, len(activations))
	for _, a := range activations {
		out = append(out, *f.toActivationDTO(a, nil, nil))
	}
	return out, nil
}

// CancelNumber cancels an activation that has not yet received an SMS and
// refunds the captured price. The upstream cancel is best effort; the refund
// is not.
func (f *NumberFlowImpl) CancelNumber(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error) {
	activation, provider, err := f.loadOwned(ctx, customerID, activationUUID)
	if err != nil {
		return nil, err
	}

	applied, err := f.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusActive, models.ActivationStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrActivationNotCancelable
	}
	activation.Status = models.ActivationStatusCancelled

	if provider != nil {
		if err := f.adapter.CancelNumber(ctx, provider, activation.ExternalID); err != nil {
			log.Printf("cancel: upstream cancel %s at %s: %v", activation.ExternalID, provider.Name, err)
		}
	}

	if _, err := f.walletFlow.Refund(ctx, activation.ID); err != nil {
		// The reconciler sweep retries refunds the synchronous path missed
		log.Printf("cancel: refund activation %s: %v", activation.UUID, err)
	} else {
		activation.Status = models.ActivationStatusRefunded
	}

	return f.toActivationDTO(activation, provider, nil), nil
}

// CompleteNumber confirms the customer is done with a number that received
// its SMS. Completion is terminal and never refunds.
func (f *NumberFlowImpl) CompleteNumber(ctx context.Context, customerID uint, activationUUID string) (*dto.ActivationDTO, error) {
	activation, provider, err := f.loadOwned(ctx, customerID, activationUUID)
	if err != nil {
		return nil, err
	}

	applied, err := f.activationRepo.UpdateStatusCAS(ctx, activation.ID,
		models.ActivationStatusReceived, models.ActivationStatusCompleted, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrActivationNotCompletable
	}
	activation.Status = models.ActivationStatusCompleted

	if provider != nil {
		if err := f.adapter.CompleteNumber(ctx, provider, activation.ExternalID); err != nil {
			log.Printf("complete: upstream report %s at %s: %v", activation.ExternalID, provider.Name, err)
		}
	}

	return f.toActivationDTO(activation, provider, nil), nil
}

// ProviderHealthReport evaluates all active providers and publishes the
// snapshot set to the cache
func (f *NumberFlowImpl) ProviderHealthReport(ctx context.Context) ([]dto.ProviderHealthDTO, error) {
	providers, err := f.providerRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	health := f.healthMonitor.Evaluate(providers)
	health = services.RankProviders(health)
	f.healthMonitor.PublishSnapshots(ctx, health)

	out := make([]dto.ProviderHealthDTO, 0, len(health))
	for _, h := range health {
		out = append(out, dto.ProviderHealthDTO{
			Provider:      h.Snapshot.ProviderName,
			SampleCount:   h.Snapshot.SampleCount,
			SuccessRate:   h.Snapshot.SuccessRate,
			AvgLatencyMs:  h.Snapshot.AvgLatencyMs,
			BreakerState:  h.Snapshot.BreakerState,
			Score:         h.Score,
			LastError:     h.Snapshot.LastError,
			LastCheckedAt: h.Snapshot.LastCheckedAt,
		})
	}
	return out, nil
}

// loadOwned fetches an activation and enforces customer ownership
func (f *NumberFlowImpl) loadOwned(ctx context.Context, customerID uint, activationUUID string) (*models.Activation, *models.Provider, error) {
	activation, err := f.activationRepo.ByUUID(ctx, activationUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load activation: %w", err)
	}
	if activation == nil {
		return nil, nil, ErrActivationNotFound
	}
	if activation.CustomerID != customerID {
		return nil, nil, ErrActivationAccessDenied
	}

	provider, err := f.providerRepo.ByID(ctx, activation.ProviderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load provider: %w", err)
	}
	return activation, provider, nil
}

func (f *NumberFlowImpl) toActivationDTO(a *models.Activation, provider *models.Provider, messages []*models.SmsMessage) *dto.ActivationDTO {
	out := &dto.ActivationDTO{
		UUID:        a.UUID.String(),
		PhoneNumber: a.PhoneNumber,
		Country:     a.Country,
		Service:     a.Service,
		Price:       a.Price,
		Status:      string(a.Status),
		ExpiresAt:   a.ExpiresAt,
		CreatedAt:   a.CreatedAt,
	}
	if provider != nil {
		out.Provider = provider.Name
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, dto.SmsMessageDTO{
			Sender:     m.Sender,
			Body:       m.Body,
			Code:       m.Code,
			ReceivedAt: m.ReceivedAt,
		})
	}
	return out
}
