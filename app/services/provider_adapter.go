package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
)

// NumberOrder is the result of a successful number purchase at a provider
type NumberOrder struct {
	ExternalID  string
	PhoneNumber string
	Price       decimal.Decimal
	Country     string
	Service     string
}

// StatusResult is the outcome of polling a provider for activation status
type StatusResult struct {
	Status   ProviderStatus
	Mapped   bool // false when the raw status had no alias and defaulted to pending
	Code     string
	Messages []InboundSMS
}

// InboundSMS is one SMS relayed by a provider
type InboundSMS struct {
	Sender string
	Body   string
	Code   string
}

// ProviderAdapter executes the configured operations against an upstream
// provider. Every method goes through the provider's circuit breaker and
// records the outcome in its health tracker.
type ProviderAdapter interface {
	GetBalance(ctx context.Context, provider *models.Provider) (decimal.Decimal, error)
	GetNumber(ctx context.Context, provider *models.Provider, country, service, operator string) (*NumberOrder, error)
	GetStatus(ctx context.Context, provider *models.Provider, externalID string) (*StatusResult, error)
	CancelNumber(ctx context.Context, provider *models.Provider, externalID string) error
	CompleteNumber(ctx context.Context, provider *models.Provider, externalID string) error
}

// HTTPProviderAdapter implements ProviderAdapter over plain HTTP using each
// provider's declarative endpoint and mapping configuration.
type HTTPProviderAdapter struct {
	client      *http.Client
	registry    *ProviderRegistry
	callTimeout time.Duration
}

// NewHTTPProviderAdapter creates an adapter with the given call timeout
func NewHTTPProviderAdapter(registry *ProviderRegistry, callTimeout time.Duration) *HTTPProviderAdapter {
	if callTimeout <= 0 {
		callTimeout = utils.ProviderCallTimeout
	}
	return &HTTPProviderAdapter{
		client:      &http.Client{Timeout: callTimeout},
		registry:    registry,
		callTimeout: callTimeout,
	}
}

// GetBalance fetches the broker's remaining balance at the provider
func (a *HTTPProviderAdapter) GetBalance(ctx context.Context, provider *models.Provider) (decimal.Decimal, error) {
	parsed, err := a.call(ctx, provider, models.OpGetBalance, nil)
	if err != nil {
		return decimal.Zero, err
	}

	raw := parsed.Price
	if raw == "" {
		return decimal.Zero, &ProviderCallError{Provider: provider.Name, Op: models.OpGetBalance, Err: fmt.Errorf("balance missing from response")}
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ProviderCallError{Provider: provider.Name, Op: models.OpGetBalance, Err: fmt.Errorf("unparseable balance %q", raw)}
	}
	return balance, nil
}

// GetNumber purchases a number for the given country and service. The operator
// is optional; an empty operator falls back to the wildcard.
func (a *HTTPProviderAdapter) GetNumber(ctx context.Context, provider *models.Provider, country, service, operator string) (*NumberOrder, error) {
	params := map[string]string{
		"country": country,
		"service": service,
	}
	if operator != "" {
		params["operator"] = operator
	}

	parsed, err := a.call(ctx, provider, models.OpGetNumber, params)
	if err != nil {
		return nil, err
	}

	if parsed.ActivationID == "" || parsed.PhoneNumber == "" {
		return nil, &ProviderCallError{Provider: provider.Name, Op: models.OpGetNumber, Err: fmt.Errorf("response lacks activation id or phone number")}
	}

	order := &NumberOrder{
		ExternalID:  parsed.ActivationID,
		PhoneNumber: parsed.PhoneNumber,
		Country:     country,
		Service:     service,
	}
	if parsed.Price != "" {
		if price, perr := decimal.NewFromString(parsed.Price); perr == nil {
			order.Price = price
		}
	}
	return order, nil
}

// GetStatus polls the provider for the current activation status and any
// relayed SMS content.
func (a *HTTPProviderAdapter) GetStatus(ctx context.Context, provider *models.Provider, externalID string) (*StatusResult, error) {
	parsed, err := a.call(ctx, provider, models.OpGetStatus, map[string]string{"id": externalID})
	if err != nil {
		return nil, err
	}

	status, mapped := NormalizeStatus(parsed.Status)
	result := &StatusResult{Status: status, Mapped: mapped, Code: parsed.Code}

	// A code with no explicit status means the SMS arrived
	if parsed.Code != "" && status == ProviderStatusPending {
		result.Status = ProviderStatusReceived
		result.Mapped = true
	}

	if parsed.Code != "" || parsed.RawSMS != "" {
		result.Messages = append(result.Messages, InboundSMS{
			Sender: provider.Name,
			Body:   firstNonEmpty(parsed.RawSMS, parsed.Code),
			Code:   parsed.Code,
		})
	}

	return result, nil
}

// CancelNumber releases an activation at the provider
func (a *HTTPProviderAdapter) CancelNumber(ctx context.Context, provider *models.Provider, externalID string) error {
	_, err := a.call(ctx, provider, models.OpCancelNumber, map[string]string{"id": externalID})
	// An upstream "already terminal" answer means the cancel goal is met
	if IsLifecycleTerminal(err) {
		return nil
	}
	return err
}

// CompleteNumber reports successful use of an activation to the provider
func (a *HTTPProviderAdapter) CompleteNumber(ctx context.Context, provider *models.Provider, externalID string) error {
	_, err := a.call(ctx, provider, models.OpCompleteNumber, map[string]string{"id": externalID})
	if IsLifecycleTerminal(err) {
		return nil
	}
	return err
}

// call runs one configured operation end to end: breaker gate, request build,
// HTTP round trip, body classification, response parse, health bookkeeping.
func (a *HTTPProviderAdapter) call(ctx context.Context, provider *models.Provider, op models.ProviderOperation, params map[string]string) (*ParsedResponse, error) {
	endpoint, ok := provider.Endpoints[op]
	if !ok {
		return nil, ErrOperationNotConfigured
	}
	mapping, ok := provider.Mappings[op]
	if !ok {
		return nil, ErrOperationNotConfigured
	}

	// The request is built before breaker admission: a broken template is a
	// configuration defect, not provider health, and must not consume the
	// single half-open probe slot
	req, err := BuildRequest(ctx, BuildInput{
		ProviderName: provider.Name,
		BaseURL:      provider.BaseURL,
		Method:       endpoint.Method,
		PathTemplate: endpoint.Path,
		AuthType:     provider.AuthType,
		AuthKey:      provider.AuthKey,
		AuthHeader:   provider.AuthHeader,
		Params:       params,
	})
	if err != nil {
		providerCallsTotal.WithLabelValues(provider.Name, string(op), "config_error").Inc()
		return nil, err
	}

	breaker := a.registry.Breaker(provider.ID)
	if err := breaker.Allow(); err != nil {
		providerCallsTotal.WithLabelValues(provider.Name, string(op), "rejected").Inc()
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	req = req.WithContext(callCtx)

	start := time.Now()
	resp, err := a.client.Do(req)
	latency := time.Since(start)
	providerCallDuration.WithLabelValues(provider.Name, string(op)).Observe(latency.Seconds())

	if err != nil {
		a.recordOutcome(provider, op, false, latency, err)
		return nil, &ProviderCallError{Provider: provider.Name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		a.recordOutcome(provider, op, false, latency, err)
		return nil, &ProviderCallError{Provider: provider.Name, Op: op, Err: err}
	}

	if rejection := classifyRejection(provider.Name, op, resp.StatusCode, body); rejection != nil {
		// The provider answered coherently, so the call counts as healthy
		a.recordOutcome(provider, op, true, latency, nil)
		providerCallsTotal.WithLabelValues(provider.Name, string(op), "rejected_business").Inc()
		return nil, rejection
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		err := fmt.Errorf("upstream status %d", resp.StatusCode)
		a.recordOutcome(provider, op, false, latency, err)
		return nil, &ProviderCallError{Provider: provider.Name, Op: op, Err: err}
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncateBody(body))
		a.recordOutcome(provider, op, false, latency, err)
		return nil, &ProviderCallError{Provider: provider.Name, Op: op, Err: err}
	}

	parsed, err := ParseResponse(mapping, body)
	if err != nil {
		a.recordOutcome(provider, op, false, latency, err)
		return nil, &ProviderCallError{Provider: provider.Name, Op: op, Err: err}
	}

	a.recordOutcome(provider, op, true, latency, nil)
	return parsed, nil
}

func (a *HTTPProviderAdapter) recordOutcome(provider *models.Provider, op models.ProviderOperation, ok bool, latency time.Duration, err error) {
	breaker := a.registry.Breaker(provider.ID)
	prevState := breaker.State()
	breaker.Record(ok)
	if newState := breaker.State(); newState != prevState {
		breakerTransitions.WithLabelValues(provider.Name, newState.String()).Inc()
	}

	a.registry.Tracker(provider.ID).Record(ok, latency, err)

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	providerCallsTotal.WithLabelValues(provider.Name, string(op), outcome).Inc()
}

// classifyRejection maps well-known provider rejection markers onto typed
// errors. Markers follow the de-facto wire vocabulary of the public
// activation APIs; matching is case-insensitive on the body prefix.
func classifyRejection(providerName string, op models.ProviderOperation, statusCode int, body []byte) error {
	text := strings.ToUpper(strings.TrimSpace(string(body)))

	switch {
	case strings.HasPrefix(text, "NO_NUMBERS"), strings.HasPrefix(text, "NO_BALANCE"):
		return ErrNoNumbersAvailable
	case strings.HasPrefix(text, "BAD_SERVICE"), strings.HasPrefix(text, "BAD_ACTION"), strings.HasPrefix(text, "WRONG_SERVICE"):
		return ErrInvalidService
	case strings.HasPrefix(text, "NO_ACTIVATION"), strings.HasPrefix(text, "WRONG_ACTIVATION_ID"):
		return &LifecycleTerminalError{Provider: providerName, ExternalID: "", Reason: strings.ToLower(firstToken(text))}
	case statusCode == http.StatusNotFound && (op == models.OpGetStatus || op == models.OpCancelNumber || op == models.OpCompleteNumber):
		return &LifecycleTerminalError{Provider: providerName, ExternalID: "", Reason: "activation not found"}
	case statusCode == http.StatusGone:
		return &LifecycleTerminalError{Provider: providerName, ExternalID: "", Reason: "activation gone"}
	}
	return nil
}

func firstToken(s string) string {
	if idx := strings.IndexAny(s, ":\r\n "); idx >= 0 {
		return s[:idx]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
