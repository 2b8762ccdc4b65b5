package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/Uwabami/app/services"
	"github.com/amirphl/Uwabami/config"
	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/repository"
	testingutil "github.com/amirphl/Uwabami/testing"
	"github.com/amirphl/Uwabami/utils"
)

type pollerHarness struct {
	poller         *StatusPoller
	notifier       *services.MockNotificationDispatcher
	activationRepo repository.ActivationRepository
	smsRepo        repository.SmsMessageRepository
}

func newPollerHarness(testDB *testingutil.TestDB) *pollerHarness {
	activationRepo := repository.NewActivationRepository(testDB.DB)
	smsRepo := repository.NewSmsMessageRepository(testDB.DB)
	providerRepo := repository.NewProviderRepository(testDB.DB)

	registry := services.NewProviderRegistry(services.BreakerSettings{
		ErrorThresholdPercent: 50,
		MinRequestVolume:      5,
		ResetTimeout:          30 * time.Second,
		Window:                time.Minute,
	}, 20)
	adapter := services.NewHTTPProviderAdapter(registry, 5*time.Second)
	notifier := &services.MockNotificationDispatcher{}

	poller := NewStatusPoller(activationRepo, smsRepo, providerRepo, adapter, notifier, config.PollerConfig{
		Interval:       time.Second,
		BatchSize:      50,
		MaxConcurrency: 10,
	})

	return &pollerHarness{
		poller:         poller,
		notifier:       notifier,
		activationRepo: activationRepo,
		smsRepo:        smsRepo,
	}
}

func statusServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
}

func TestPollerSmsArrival(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("postgres not available")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		h := newPollerHarness(testDB)
		ctx := context.Background()

		srv := statusServer(`{"status":"STATUS_OK","code":"4921","sms":"Your code is 4921"}`)
		defer srv.Close()

		provider, err := fixtures.CreateTestProvider("poll-alpha", srv.URL)
		require.NoError(t, err)
		activation, err := fixtures.CreateTestActivation(401, provider.ID, models.ActivationStatusActive)
		require.NoError(t, err)

		h.poller.runOnce(ctx)

		reloaded, err := h.activationRepo.ByID(ctx, activation.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActivationStatusReceived, reloaded.Status)

		messages, err := h.smsRepo.ListByActivation(ctx, activation.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "4921", messages[0].Code)

		// Notification fires on a detached goroutine
		require.Eventually(t, func() bool {
			return len(h.notifier.Dispatched()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		event := h.notifier.Dispatched()[0]
		assert.Equal(t, activation.UUID, event.ActivationID)
		assert.Equal(t, uint(401), event.CustomerID)
		assert.Equal(t, "4921", event.Code)

		// A replayed message neither duplicates nor re-notifies
		h.poller.runOnce(ctx)
		messages, err = h.smsRepo.ListByActivation(ctx, activation.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 1)
		assert.Len(t, h.notifier.Dispatched(), 1)

		return nil
	})
	require.NoError(t, err)
}

func TestPollerExpiresOverdueActivation(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("postgres not available")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		h := newPollerHarness(testDB)
		ctx := context.Background()

		// The upstream cancel is best effort; the dead address proves expiry
		// does not depend on the provider answering
		provider, err := fixtures.CreateTestProvider("poll-bravo", "http://127.0.0.1:1")
		require.NoError(t, err)
		activation, err := fixtures.CreateTestActivation(402, provider.ID, models.ActivationStatusActive)
		require.NoError(t, err)
		require.NoError(t, testDB.DB.Model(&models.Activation{}).
			Where("id = ?", activation.ID).
			Update("expires_at", utils.UTCNow().Add(-time.Minute)).Error)

		h.poller.runOnce(ctx)

		reloaded, err := h.activationRepo.ByID(ctx, activation.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActivationStatusExpired, reloaded.Status)

		return nil
	})
	require.NoError(t, err)
}

func TestPollerReschedulesWhileWaiting(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("postgres not available")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		h := newPollerHarness(testDB)
		ctx := context.Background()

		srv := statusServer(`{"status":"STATUS_WAIT_CODE"}`)
		defer srv.Close()

		provider, err := fixtures.CreateTestProvider("poll-charlie", srv.URL)
		require.NoError(t, err)
		activation, err := fixtures.CreateTestActivation(403, provider.ID, models.ActivationStatusActive)
		require.NoError(t, err)

		before := utils.UTCNow()
		h.poller.runOnce(ctx)

		reloaded, err := h.activationRepo.ByID(ctx, activation.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActivationStatusActive, reloaded.Status)
		assert.Equal(t, activation.PollCount+1, reloaded.PollCount)
		require.NotNil(t, reloaded.NextPollAt)
		assert.True(t, reloaded.NextPollAt.After(before), "next poll must be pushed into the future")

		return nil
	})
	require.NoError(t, err)
}

func TestPollerFinalizesWhenProviderForgot(t *testing.T) {
	if !testingutil.PostgresAvailable() {
		t.Skip("postgres not available")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		h := newPollerHarness(testDB)
		ctx := context.Background()

		srv := statusServer("NO_ACTIVATION")
		defer srv.Close()

		provider, err := fixtures.CreateTestProvider("poll-delta", srv.URL)
		require.NoError(t, err)

		// Undelivered orders expire; delivered ones close as completed
		undelivered, err := fixtures.CreateTestActivation(404, provider.ID, models.ActivationStatusActive)
		require.NoError(t, err)
		delivered, err := fixtures.CreateTestActivation(405, provider.ID, models.ActivationStatusReceived)
		require.NoError(t, err)

		h.poller.runOnce(ctx)

		reloaded, err := h.activationRepo.ByID(ctx, undelivered.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActivationStatusExpired, reloaded.Status)

		reloaded, err = h.activationRepo.ByID(ctx, delivered.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActivationStatusCompleted, reloaded.Status)

		return nil
	})
	require.NoError(t, err)
}
