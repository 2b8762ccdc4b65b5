// Package dto contains request and response payloads for the HTTP API
package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseNumberRequest asks for a new virtual number
type PurchaseNumberRequest struct {
	Country  string `json:"country" validate:"required,min=1,max=8"`
	Service  string `json:"service" validate:"required,min=1,max=32"`
	Operator string `json:"operator" validate:"omitempty,min=1,max=32"`
}

// SmsMessageDTO is one relayed SMS
type SmsMessageDTO struct {
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	Code       string    `json:"code,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ActivationDTO is the customer-facing view of a purchased number
type ActivationDTO struct {
	UUID        string          `json:"uuid"`
	PhoneNumber string          `json:"phone_number"`
	Country     string          `json:"country"`
	Service     string          `json:"service"`
	Provider    string          `json:"provider,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
	Messages    []SmsMessageDTO `json:"messages,omitempty"`
}

// ProviderHealthDTO is one row of the provider health report
type ProviderHealthDTO struct {
	Provider      string          `json:"provider"`
	SampleCount   int             `json:"sample_count"`
	SuccessRate   decimal.Decimal `json:"success_rate"`
	AvgLatencyMs  decimal.Decimal `json:"avg_latency_ms"`
	BreakerState  string          `json:"breaker_state"`
	Score         decimal.Decimal `json:"score"`
	LastError     string          `json:"last_error,omitempty"`
	LastCheckedAt time.Time       `json:"last_checked_at"`
}
