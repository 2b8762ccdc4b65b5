package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/Uwabami/models"
)

func TestParseResponseJSON(t *testing.T) {
	mapping := models.MappingConfig{
		Type: models.MappingTypeJSON,
		Fields: map[string]string{
			"activationId": "data.id",
			"phoneNumber":  "data.phone",
			"price":        "data.cost",
			"status":       "status",
		},
	}
	body := []byte(`{"status":"ok","data":{"id":123456,"phone":"79161234567","cost":0.65}}`)

	parsed, err := ParseResponse(mapping, body)
	require.NoError(t, err)
	assert.Equal(t, "123456", parsed.ActivationID)
	assert.Equal(t, "79161234567", parsed.PhoneNumber)
	assert.Equal(t, "0.65", parsed.Price)
	assert.Equal(t, "ok", parsed.Status)
}

func TestParseResponseJSONArrayIndex(t *testing.T) {
	mapping := models.MappingConfig{
		Type:   models.MappingTypeJSON,
		Fields: map[string]string{"code": "messages.0.code"},
	}
	body := []byte(`{"messages":[{"code":"4921"},{"code":"1107"}]}`)

	parsed, err := ParseResponse(mapping, body)
	require.NoError(t, err)
	assert.Equal(t, "4921", parsed.Code)
}

func TestParseResponseJSONMissingFieldsDegrade(t *testing.T) {
	mapping := models.MappingConfig{
		Type: models.MappingTypeJSON,
		Fields: map[string]string{
			"status": "status",
			"code":   "sms.code",
		},
	}
	body := []byte(`{"status":"waiting"}`)

	parsed, err := ParseResponse(mapping, body)
	require.NoError(t, err)
	assert.Equal(t, "waiting", parsed.Status)
	assert.Empty(t, parsed.Code)
}

func TestParseResponseJSONInvalidBody(t *testing.T) {
	mapping := models.MappingConfig{
		Type:   models.MappingTypeJSON,
		Fields: map[string]string{"status": "status"},
	}
	_, err := ParseResponse(mapping, []byte("NO_NUMBERS"))
	require.Error(t, err)
}

func TestParseResponseTextLines(t *testing.T) {
	mapping := models.MappingConfig{
		Type:      models.MappingTypeTextLines,
		Separator: ":",
		Fields: map[string]string{
			"status":       "0",
			"activationId": "1",
			"phoneNumber":  "2",
		},
	}
	body := []byte("ACCESS_NUMBER:4421:79161234567\n")

	parsed, err := ParseResponse(mapping, body)
	require.NoError(t, err)
	assert.Equal(t, "ACCESS_NUMBER", parsed.Status)
	assert.Equal(t, "4421", parsed.ActivationID)
	assert.Equal(t, "79161234567", parsed.PhoneNumber)
}

func TestParseResponseTextLinesIndexOutOfRange(t *testing.T) {
	mapping := models.MappingConfig{
		Type:      models.MappingTypeTextLines,
		Separator: ":",
		Fields: map[string]string{
			"status": "0",
			"code":   "5",
		},
	}
	parsed, err := ParseResponse(mapping, []byte("STATUS_WAIT_CODE"))
	require.NoError(t, err)
	assert.Equal(t, "STATUS_WAIT_CODE", parsed.Status)
	assert.Empty(t, parsed.Code)
}

func TestParseResponseUnknownMappingType(t *testing.T) {
	_, err := ParseResponse(models.MappingConfig{Type: "xml"}, []byte("<a/>"))
	require.Error(t, err)
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw    string
		want   ProviderStatus
		mapped bool
	}{
		{"STATUS_WAIT_CODE", ProviderStatusPending, true},
		{"waiting", ProviderStatusPending, true},
		{"STATUS_OK", ProviderStatusReceived, true},
		{"received", ProviderStatusReceived, true},
		{"ACCESS_CANCEL", ProviderStatusCancelled, true},
		{"canceled", ProviderStatusCancelled, true},
		{"TIMEOUT", ProviderStatusExpired, true},
		{"finished", ProviderStatusCompleted, true},
		{"  ok  ", ProviderStatusReceived, true},
		{"SOMETHING_NEW", ProviderStatusPending, false},
		{"", ProviderStatusPending, false},
	}

	for _, tc := range cases {
		got, mapped := NormalizeStatus(tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
		assert.Equal(t, tc.mapped, mapped, "raw=%q", tc.raw)
	}
}

func TestProviderStatusIsTerminal(t *testing.T) {
	assert.False(t, ProviderStatusPending.IsTerminal())
	assert.False(t, ProviderStatusReceived.IsTerminal())
	assert.True(t, ProviderStatusCompleted.IsTerminal())
	assert.True(t, ProviderStatusCancelled.IsTerminal())
	assert.True(t, ProviderStatusExpired.IsTerminal())
}
