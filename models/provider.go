package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProviderOperation identifies one of the operations every upstream provider
// must be configured for.
type ProviderOperation string

const (
	OpGetBalance     ProviderOperation = "get_balance"
	OpGetNumber      ProviderOperation = "get_number"
	OpGetStatus      ProviderOperation = "get_status"
	OpCancelNumber   ProviderOperation = "cancel_number"
	OpCompleteNumber ProviderOperation = "complete_number"
)

// AuthType represents how credentials are attached to outbound requests
type AuthType string

const (
	AuthTypeNone        AuthType = "none"
	AuthTypeAPIKeyQuery AuthType = "apikey_query"
	AuthTypeBearer      AuthType = "bearer"
	AuthTypeHeader      AuthType = "header"
)

// MappingType selects how a provider response is decoded
type MappingType string

const (
	MappingTypeJSON      MappingType = "json"       // structured field extraction by dotted path
	MappingTypeTextLines MappingType = "text_lines" // delimited line extraction by token index
)

// EndpointConfig describes one operation's endpoint template
type EndpointConfig struct {
	Method string `json:"method" validate:"required,oneof=GET POST PUT DELETE"`
	Path   string `json:"path" validate:"required"`
}

// MappingConfig describes how response fields are extracted for one operation.
// For json mappings, Fields maps output names to dotted paths; for text_lines
// mappings, Fields maps output names to token indexes.
type MappingConfig struct {
	Type      MappingType       `json:"type" validate:"required,oneof=json text_lines"`
	Separator string            `json:"separator,omitempty"`
	Fields    map[string]string `json:"fields" validate:"required,min=1"`
}

// EndpointMap is the persisted per-operation endpoint table (jsonb column)
type EndpointMap map[ProviderOperation]EndpointConfig

func (m EndpointMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bs, err := json.Marshal(m)
	return string(bs), err
}

func (m *EndpointMap) Scan(value any) error {
	return scanJSONColumn(value, m)
}

// MappingMap is the persisted per-operation response mapping table (jsonb column)
type MappingMap map[ProviderOperation]MappingConfig

func (m MappingMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bs, err := json.Marshal(m)
	return string(bs), err
}

func (m *MappingMap) Scan(value any) error {
	return scanJSONColumn(value, m)
}

func scanJSONColumn(value, dest any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb column type %T", value)
	}
}

// Provider represents one upstream SMS-activation provider. The endpoint and
// mapping tables drive the adapter entirely; adding a provider is a data
// change, not a code change.
type Provider struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	Name string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name" validate:"required"`

	BaseURL    string   `gorm:"type:varchar(255);not null" json:"base_url" validate:"required,url"`
	AuthType   AuthType `gorm:"type:varchar(20);not null;default:'none'" json:"auth_type" validate:"required,oneof=none apikey_query bearer header"`
	AuthKey    string   `gorm:"type:varchar(255)" json:"auth_key"`
	AuthHeader string   `gorm:"type:varchar(100)" json:"auth_header"`

	Endpoints EndpointMap `gorm:"type:jsonb;not null;default:'{}'" json:"endpoints"`
	Mappings  MappingMap  `gorm:"type:jsonb;not null;default:'{}'" json:"mappings"`

	// Pricing adjustment applied to the provider's raw price
	PriceMultiplier decimal.Decimal `gorm:"type:numeric(12,6);not null;default:1" json:"price_multiplier"`
	FixedMarkup     decimal.Decimal `gorm:"type:numeric(12,6);not null;default:0" json:"fixed_markup"`

	// Ranking inputs set by the admin
	Priority int             `gorm:"not null;default:1" json:"priority" validate:"min=1"`
	Weight   decimal.Decimal `gorm:"type:numeric(12,6);not null;default:1" json:"weight"`
	IsActive *bool           `gorm:"not null;default:true" json:"is_active"`

	// Last known upstream balance, refreshed by the adapter
	Balance decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0" json:"balance"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Provider) TableName() string {
	return "providers"
}

// BeforeCreate ensures UUID is set
func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	return nil
}

// Endpoint returns the endpoint template for an operation
func (p *Provider) Endpoint(op ProviderOperation) (EndpointConfig, bool) {
	ep, ok := p.Endpoints[op]
	return ep, ok
}

// Mapping returns the response mapping for an operation
func (p *Provider) Mapping(op ProviderOperation) (MappingConfig, bool) {
	m, ok := p.Mappings[op]
	return m, ok
}

// AdjustPrice applies the provider's pricing adjustment to a raw price
func (p *Provider) AdjustPrice(raw decimal.Decimal) decimal.Decimal {
	return raw.Mul(p.PriceMultiplier).Add(p.FixedMarkup)
}

// CostMultiplier is the effective cost factor used by the scorer. It never
// returns a value below 1 so a discounting provider cannot divide by zero.
func (p *Provider) CostMultiplier() decimal.Decimal {
	one := decimal.NewFromInt(1)
	if p.PriceMultiplier.LessThanOrEqual(decimal.Zero) {
		return one
	}
	return p.PriceMultiplier
}

var providerValidate = validator.New()

// Validate checks a provider document end to end: the tag-level field rules
// plus the structural endpoint and mapping checks. Documents that fail are
// rejected at load time, before any call is attempted against them.
func (p *Provider) Validate() error {
	if err := providerValidate.Struct(p); err != nil {
		return err
	}
	return p.ValidateConfig()
}

// ValidateConfig performs the structural checks that cannot be expressed as
// validator tags: every configured operation needs both an endpoint and a
// mapping, and text_lines mappings need a separator.
func (p *Provider) ValidateConfig() error {
	if len(p.Endpoints) == 0 {
		return errors.New("provider has no endpoint templates")
	}
	for op, m := range p.Mappings {
		if _, ok := p.Endpoints[op]; !ok {
			return fmt.Errorf("mapping for %q has no endpoint template", op)
		}
		if m.Type == MappingTypeTextLines && m.Separator == "" {
			return fmt.Errorf("text_lines mapping for %q requires a separator", op)
		}
		if m.Type != MappingTypeJSON && m.Type != MappingTypeTextLines {
			return fmt.Errorf("mapping for %q has unknown type %q", op, m.Type)
		}
	}
	if p.AuthType == AuthTypeHeader && p.AuthHeader == "" {
		return errors.New("header auth requires an auth header name")
	}
	if p.AuthType != AuthTypeNone && p.AuthKey == "" {
		return errors.New("auth credential is required for non-none auth")
	}
	return nil
}

// ProviderFilter represents filter criteria for provider queries
type ProviderFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	Name          *string    `json:"name,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
