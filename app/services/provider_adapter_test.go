package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
)

func testAdapterProvider(baseURL string) *models.Provider {
	return &models.Provider{
		ID:       1,
		Name:     "alpha",
		BaseURL:  baseURL,
		AuthType: models.AuthTypeAPIKeyQuery,
		AuthKey:  "secret",
		Endpoints: models.EndpointMap{
			models.OpGetBalance:   {Method: http.MethodGet, Path: "/balance"},
			models.OpGetNumber:    {Method: http.MethodGet, Path: "/numbers/{country}/{service}"},
			models.OpGetStatus:    {Method: http.MethodGet, Path: "/activations/{id}"},
			models.OpCancelNumber: {Method: http.MethodGet, Path: "/activations/{id}/cancel"},
		},
		Mappings: models.MappingMap{
			models.OpGetBalance: {Type: models.MappingTypeJSON, Fields: map[string]string{"price": "balance"}},
			models.OpGetNumber: {Type: models.MappingTypeJSON, Fields: map[string]string{
				"activationId": "id", "phoneNumber": "phone", "price": "price",
			}},
			models.OpGetStatus: {Type: models.MappingTypeJSON, Fields: map[string]string{
				"status": "status", "code": "code", "rawSms": "sms",
			}},
			models.OpCancelNumber: {Type: models.MappingTypeJSON, Fields: map[string]string{"status": "status"}},
		},
		PriceMultiplier: decimal.NewFromInt(1),
		Weight:          decimal.NewFromInt(1),
		Priority:        1,
		IsActive:        utils.ToPtr(true),
	}
}

func newTestAdapter() *HTTPProviderAdapter {
	registry := NewProviderRegistry(BreakerSettings{
		ErrorThresholdPercent: 50,
		MinRequestVolume:      3,
		ResetTimeout:          30 * time.Second,
		Window:                time.Minute,
	}, 10)
	return NewHTTPProviderAdapter(registry, 5*time.Second)
}

func TestAdapterGetNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/numbers/ru/tg", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"id":99001,"phone":"79161234567","price":0.4}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	order, err := adapter.GetNumber(context.Background(), testAdapterProvider(srv.URL), "ru", "tg", "")
	require.NoError(t, err)
	assert.Equal(t, "99001", order.ExternalID)
	assert.Equal(t, "79161234567", order.PhoneNumber)
	assert.True(t, order.Price.Equal(decimal.NewFromFloat(0.4)))
	assert.Equal(t, "ru", order.Country)
	assert.Equal(t, "tg", order.Service)
}

func TestAdapterGetNumberNoStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("NO_NUMBERS"))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	provider := testAdapterProvider(srv.URL)

	_, err := adapter.GetNumber(context.Background(), provider, "ru", "tg", "")
	assert.ErrorIs(t, err, ErrNoNumbersAvailable)
	assert.True(t, IsBusinessRejection(err))

	// A coherent rejection is a healthy provider, not a failing one
	assert.Equal(t, BreakerClosed, adapter.registry.Breaker(provider.ID).State())
}

func TestAdapterGetNumberBadService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("BAD_SERVICE"))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	_, err := adapter.GetNumber(context.Background(), testAdapterProvider(srv.URL), "ru", "nope", "")
	assert.ErrorIs(t, err, ErrInvalidService)
}

func TestAdapterServerErrorsOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	provider := testAdapterProvider(srv.URL)

	for i := 0; i < 3; i++ {
		_, err := adapter.GetBalance(context.Background(), provider)
		var pce *ProviderCallError
		require.ErrorAs(t, err, &pce)
	}

	assert.Equal(t, BreakerOpen, adapter.registry.Breaker(provider.ID).State())

	_, err := adapter.GetBalance(context.Background(), provider)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestAdapterGetStatusWithCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activations/99001", r.URL.Path)
		w.Write([]byte(`{"status":"STATUS_OK","code":"4921","sms":"Your code is 4921"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	result, err := adapter.GetStatus(context.Background(), testAdapterProvider(srv.URL), "99001")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatusReceived, result.Status)
	assert.True(t, result.Mapped)
	assert.Equal(t, "4921", result.Code)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Your code is 4921", result.Messages[0].Body)
	assert.Equal(t, "4921", result.Messages[0].Code)
}

func TestAdapterGetStatusCodeImpliesReceived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"8812"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	result, err := adapter.GetStatus(context.Background(), testAdapterProvider(srv.URL), "99001")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatusReceived, result.Status)
}

func TestAdapterGetStatusUnmappedDefaultsToPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"SOME_FUTURE_STATE"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	result, err := adapter.GetStatus(context.Background(), testAdapterProvider(srv.URL), "99001")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatusPending, result.Status)
	assert.False(t, result.Mapped)
}

func TestAdapterLifecycleTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("NO_ACTIVATION"))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	_, err := adapter.GetStatus(context.Background(), testAdapterProvider(srv.URL), "99001")
	assert.True(t, IsLifecycleTerminal(err))
}

func TestAdapterCancelAlreadyTerminalSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("NO_ACTIVATION"))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	err := adapter.CancelNumber(context.Background(), testAdapterProvider(srv.URL), "99001")
	assert.NoError(t, err)
}

func TestAdapterOperationNotConfigured(t *testing.T) {
	adapter := newTestAdapter()
	provider := testAdapterProvider("http://127.0.0.1:1")

	err := adapter.CompleteNumber(context.Background(), provider, "99001")
	assert.ErrorIs(t, err, ErrOperationNotConfigured)
}

func TestAdapterGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":"12.50"}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter()
	balance, err := adapter.GetBalance(context.Background(), testAdapterProvider(srv.URL))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(12.5)))
}

func TestAdapterConfigErrorLeavesBreakerRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"STATUS_WAIT_CODE"}`))
	}))
	defer srv.Close()

	registry := NewProviderRegistry(BreakerSettings{
		ErrorThresholdPercent: 50,
		MinRequestVolume:      3,
		ResetTimeout:          30 * time.Second,
		Window:                time.Minute,
	}, 10)
	adapter := NewHTTPProviderAdapter(registry, 5*time.Second)
	provider := testAdapterProvider(srv.URL)

	breaker := registry.Breaker(provider.ID)
	clock := time.Now()
	breaker.now = func() time.Time { return clock }
	for i := 0; i < 3; i++ {
		breaker.Record(false)
	}
	require.Equal(t, BreakerOpen, breaker.State())

	// Past the reset timeout the breaker owes one probe. A call that cannot
	// even build its request must not eat that slot.
	clock = clock.Add(31 * time.Second)
	_, err := adapter.GetStatus(context.Background(), provider, "")
	assert.True(t, IsConfigurationError(err), "got %v", err)
	assert.Equal(t, BreakerOpen, breaker.State())

	// The probe is still available for a well-formed call, which closes the circuit
	result, err := adapter.GetStatus(context.Background(), provider, "99001")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatusPending, result.Status)
	assert.Equal(t, BreakerClosed, breaker.State())
}
