package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestProvider creates an active JSON-mapped provider pointed at baseURL
func (tf *TestFixtures) CreateTestProvider(name, baseURL string) (*models.Provider, error) {
	provider := &models.Provider{
		Name:     name,
		BaseURL:  baseURL,
		AuthType: models.AuthTypeAPIKeyQuery,
		AuthKey:  fmt.Sprintf("key-%06d", rand.Intn(1000000)),
		Endpoints: models.EndpointMap{
			models.OpGetBalance:     {Method: "GET", Path: "/balance"},
			models.OpGetNumber:      {Method: "GET", Path: "/numbers/{country}/{service}"},
			models.OpGetStatus:      {Method: "GET", Path: "/activations/{id}"},
			models.OpCancelNumber:   {Method: "GET", Path: "/activations/{id}/cancel"},
			models.OpCompleteNumber: {Method: "GET", Path: "/activations/{id}/complete"},
		},
		Mappings: models.MappingMap{
			models.OpGetBalance: {Type: models.MappingTypeJSON, Fields: map[string]string{"price": "balance"}},
			models.OpGetNumber: {Type: models.MappingTypeJSON, Fields: map[string]string{
				"activationId": "id", "phoneNumber": "phone", "price": "price",
			}},
			models.OpGetStatus: {Type: models.MappingTypeJSON, Fields: map[string]string{
				"status": "status", "code": "code", "rawSms": "sms",
			}},
			models.OpCancelNumber:   {Type: models.MappingTypeJSON, Fields: map[string]string{"status": "status"}},
			models.OpCompleteNumber: {Type: models.MappingTypeJSON, Fields: map[string]string{"status": "status"}},
		},
		PriceMultiplier: decimal.NewFromFloat(1.2),
		FixedMarkup:     decimal.NewFromFloat(0.05),
		Priority:        1,
		Weight:          decimal.NewFromInt(1),
		IsActive:        utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(provider).Error; err != nil {
		return nil, fmt.Errorf("failed to create test provider: %w", err)
	}
	return provider, nil
}

// CreateTestWallet creates a wallet with the given balance
func (tf *TestFixtures) CreateTestWallet(customerID uint, balance decimal.Decimal) (*models.Wallet, error) {
	wallet := &models.Wallet{
		CustomerID: customerID,
		Balance:    balance,
		Reserved:   decimal.Zero,
		Currency:   utils.USDCurrency,
	}
	if err := tf.DB.DB.Create(wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create test wallet: %w", err)
	}

	// Keep the ledger invariant from the start: the opening balance is a deposit
	if balance.IsPositive() {
		entry := &models.WalletTransaction{
			Type:          models.WalletTransactionTypeDeposit,
			Amount:        balance,
			WalletID:      wallet.ID,
			CustomerID:    customerID,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  balance,
			ReferenceID:   wallet.UUID,
			Description:   "opening balance",
		}
		if err := tf.DB.DB.Create(entry).Error; err != nil {
			return nil, fmt.Errorf("failed to create opening ledger entry: %w", err)
		}
	}
	return wallet, nil
}

// CreateTestActivation creates an activation in the given status
func (tf *TestFixtures) CreateTestActivation(customerID, providerID uint, status models.ActivationStatus) (*models.Activation, error) {
	now := utils.UTCNow()
	nextPoll := now.Add(-time.Second)
	activation := &models.Activation{
		CustomerID:  customerID,
		ProviderID:  providerID,
		ExternalID:  fmt.Sprintf("ext-%06d", rand.Intn(1000000)),
		PhoneNumber: fmt.Sprintf("7916%07d", rand.Intn(10000000)),
		Country:     "ru",
		Service:     "tg",
		Price:       decimal.NewFromFloat(0.65),
		Status:      status,
		NextPollAt:  &nextPoll,
		ExpiresAt:   now.Add(utils.DefaultActivationTTL),
	}
	if err := tf.DB.DB.Create(activation).Error; err != nil {
		return nil, fmt.Errorf("failed to create test activation: %w", err)
	}
	return activation, nil
}
