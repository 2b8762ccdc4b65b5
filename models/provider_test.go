package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustPrice(t *testing.T) {
	p := &Provider{
		PriceMultiplier: decimal.NewFromFloat(1.2),
		FixedMarkup:     decimal.NewFromFloat(0.05),
	}

	got := p.AdjustPrice(decimal.NewFromFloat(0.50))
	assert.True(t, got.Equal(decimal.NewFromFloat(0.65)), "got %s", got)
}

func TestCostMultiplierFloor(t *testing.T) {
	discounting := &Provider{PriceMultiplier: decimal.Zero}
	assert.True(t, discounting.CostMultiplier().Equal(decimal.NewFromInt(1)))

	normal := &Provider{PriceMultiplier: decimal.NewFromFloat(1.5)}
	assert.True(t, normal.CostMultiplier().Equal(decimal.NewFromFloat(1.5)))
}

func validProvider() *Provider {
	return &Provider{
		Name:     "alpha",
		BaseURL:  "https://api.alpha.example",
		AuthType: AuthTypeAPIKeyQuery,
		AuthKey:  "secret",
		Endpoints: EndpointMap{
			OpGetNumber: {Method: "GET", Path: "/numbers/{country}/{service}"},
			OpGetStatus: {Method: "GET", Path: "/status"},
		},
		Mappings: MappingMap{
			OpGetNumber: {Type: MappingTypeJSON, Fields: map[string]string{"activationId": "id"}},
			OpGetStatus: {Type: MappingTypeTextLines, Separator: ":", Fields: map[string]string{"status": "0"}},
		},
		Priority: 1,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validProvider().Validate())

	malformed := validProvider()
	malformed.BaseURL = "not a url"
	assert.Error(t, malformed.Validate())

	demoted := validProvider()
	demoted.Priority = 0
	assert.Error(t, demoted.Validate())

	// Structural defects fail through the same gate as tag violations
	broken := validProvider()
	m := broken.Mappings[OpGetStatus]
	m.Separator = ""
	broken.Mappings[OpGetStatus] = m
	assert.Error(t, broken.Validate())
}

func TestValidateConfig(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, validProvider().ValidateConfig())
	})

	t.Run("NoEndpoints", func(t *testing.T) {
		p := validProvider()
		p.Endpoints = EndpointMap{}
		assert.Error(t, p.ValidateConfig())
	})

	t.Run("MappingWithoutEndpoint", func(t *testing.T) {
		p := validProvider()
		p.Mappings[OpCancelNumber] = MappingConfig{Type: MappingTypeJSON, Fields: map[string]string{"status": "status"}}
		assert.Error(t, p.ValidateConfig())
	})

	t.Run("TextLinesWithoutSeparator", func(t *testing.T) {
		p := validProvider()
		m := p.Mappings[OpGetStatus]
		m.Separator = ""
		p.Mappings[OpGetStatus] = m
		assert.Error(t, p.ValidateConfig())
	})

	t.Run("HeaderAuthWithoutHeaderName", func(t *testing.T) {
		p := validProvider()
		p.AuthType = AuthTypeHeader
		assert.Error(t, p.ValidateConfig())
	})

	t.Run("AuthWithoutCredential", func(t *testing.T) {
		p := validProvider()
		p.AuthKey = ""
		assert.Error(t, p.ValidateConfig())
	})
}

func TestEndpointMapRoundTrip(t *testing.T) {
	m := EndpointMap{
		OpGetNumber: {Method: "GET", Path: "/numbers/{country}/{service}"},
	}

	value, err := m.Value()
	require.NoError(t, err)

	var decoded EndpointMap
	require.NoError(t, decoded.Scan([]byte(value.(string))))
	assert.Equal(t, m, decoded)
}
