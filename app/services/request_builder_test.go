package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/Uwabami/models"
)

func TestBuildRequestSubstitutesTokens(t *testing.T) {
	req, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example",
		Method:       http.MethodGet,
		PathTemplate: "/numbers/{country}/{service}",
		AuthType:     models.AuthTypeNone,
		Params: map[string]string{
			"country": "ru",
			"service": "tg",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.alpha.example/numbers/ru/tg", req.URL.String())
	assert.Equal(t, http.MethodGet, req.Method)
}

func TestBuildRequestEscapesTokenValues(t *testing.T) {
	req, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example",
		Method:       http.MethodGet,
		PathTemplate: "/svc/{service}",
		AuthType:     models.AuthTypeNone,
		Params:       map[string]string{"service": "a/b c"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/svc/a%2Fb%20c", req.URL.EscapedPath())
}

func TestBuildRequestUnresolvedTokenFailsBeforeNetwork(t *testing.T) {
	_, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example",
		Method:       http.MethodGet,
		PathTemplate: "/numbers/{country}/{service}",
		AuthType:     models.AuthTypeNone,
		Params:       map[string]string{"country": "ru"},
	})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "service", ce.Token)
}

func TestBuildRequestOperatorDefaultsToWildcard(t *testing.T) {
	req, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example",
		Method:       http.MethodGet,
		PathTemplate: "/buy/{service}/{operator}",
		AuthType:     models.AuthTypeNone,
		Params:       map[string]string{"service": "tg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/buy/tg/any", req.URL.Path)
}

func TestBuildRequestAppendsUnconsumedParamsSorted(t *testing.T) {
	req, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example",
		Method:       http.MethodGet,
		PathTemplate: "/status",
		AuthType:     models.AuthTypeNone,
		Params: map[string]string{
			"id":     "42",
			"action": "getStatus",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "action=getStatus&id=42", req.URL.RawQuery)
}

func TestBuildRequestAuthModes(t *testing.T) {
	t.Run("APIKeyQuery", func(t *testing.T) {
		req, err := BuildRequest(context.Background(), BuildInput{
			ProviderName: "alpha",
			BaseURL:      "https://api.alpha.example",
			Method:       http.MethodGet,
			PathTemplate: "/balance",
			AuthType:     models.AuthTypeAPIKeyQuery,
			AuthKey:      "secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "secret", req.URL.Query().Get("api_key"))
	})

	t.Run("APIKeyQueryCustomParam", func(t *testing.T) {
		req, err := BuildRequest(context.Background(), BuildInput{
			ProviderName: "alpha",
			BaseURL:      "https://api.alpha.example",
			Method:       http.MethodGet,
			PathTemplate: "/balance",
			AuthType:     models.AuthTypeAPIKeyQuery,
			AuthKey:      "secret",
			AuthHeader:   "token",
		})
		require.NoError(t, err)
		assert.Equal(t, "secret", req.URL.Query().Get("token"))
	})

	t.Run("Bearer", func(t *testing.T) {
		req, err := BuildRequest(context.Background(), BuildInput{
			ProviderName: "alpha",
			BaseURL:      "https://api.alpha.example",
			Method:       http.MethodGet,
			PathTemplate: "/balance",
			AuthType:     models.AuthTypeBearer,
			AuthKey:      "secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	})

	t.Run("NamedHeader", func(t *testing.T) {
		req, err := BuildRequest(context.Background(), BuildInput{
			ProviderName: "alpha",
			BaseURL:      "https://api.alpha.example",
			Method:       http.MethodGet,
			PathTemplate: "/balance",
			AuthType:     models.AuthTypeHeader,
			AuthKey:      "secret",
			AuthHeader:   "X-Api-Token",
		})
		require.NoError(t, err)
		assert.Equal(t, "secret", req.Header.Get("X-Api-Token"))
	})
}

func TestBuildRequestTrailingSlashJoin(t *testing.T) {
	req, err := BuildRequest(context.Background(), BuildInput{
		ProviderName: "alpha",
		BaseURL:      "https://api.alpha.example/v2/",
		Method:       http.MethodGet,
		PathTemplate: "/balance",
		AuthType:     models.AuthTypeNone,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.alpha.example/v2/balance", req.URL.String())
}
