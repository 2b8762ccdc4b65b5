package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/amirphl/Uwabami/models"
)

// ProviderStatus is the normalized order status vocabulary every provider
// response is mapped onto.
type ProviderStatus string

const (
	ProviderStatusPending   ProviderStatus = "pending"   // waiting for SMS
	ProviderStatusReceived  ProviderStatus = "received"  // code arrived
	ProviderStatusCompleted ProviderStatus = "completed" // terminal
	ProviderStatusCancelled ProviderStatus = "cancelled" // terminal
	ProviderStatusExpired   ProviderStatus = "expired"   // terminal
)

// IsTerminal reports whether the normalized status ends the order upstream
func (s ProviderStatus) IsTerminal() bool {
	return s == ProviderStatusCompleted || s == ProviderStatusCancelled || s == ProviderStatusExpired
}

// ParsedResponse is the normalized record extracted from a provider response.
// Unmapped or missing fields stay empty so partial responses degrade
// gracefully instead of failing the whole call.
type ParsedResponse struct {
	ActivationID string
	PhoneNumber  string
	Price        string
	Country      string
	Service      string
	Status       string
	Code         string
	RawSMS       string
}

// Field returns a parsed field by its canonical mapping name
func (p *ParsedResponse) Field(name string) string {
	switch name {
	case "activationId":
		return p.ActivationID
	case "phoneNumber":
		return p.PhoneNumber
	case "price":
		return p.Price
	case "country":
		return p.Country
	case "service":
		return p.Service
	case "status":
		return p.Status
	case "code":
		return p.Code
	case "rawSms":
		return p.RawSMS
	}
	return ""
}

func (p *ParsedResponse) setField(name, value string) {
	switch name {
	case "activationId":
		p.ActivationID = value
	case "phoneNumber":
		p.PhoneNumber = value
	case "price":
		p.Price = value
	case "country":
		p.Country = value
	case "service":
		p.Service = value
	case "status":
		p.Status = value
	case "code":
		p.Code = value
	case "rawSms":
		p.RawSMS = value
	}
}

// ParseResponse extracts the mapped fields from a raw provider response body
// according to the operation's mapping definition.
func ParseResponse(mapping models.MappingConfig, body []byte) (*ParsedResponse, error) {
	switch mapping.Type {
	case models.MappingTypeJSON:
		return parseStructured(mapping, body)
	case models.MappingTypeTextLines:
		return parseDelimited(mapping, body), nil
	default:
		return nil, fmt.Errorf("unknown mapping type %q", mapping.Type)
	}
}

// parseStructured maps dotted paths into a decoded JSON document. Numeric
// path segments index into arrays, so price-list rows stay addressable.
func parseStructured(mapping models.MappingConfig, body []byte) (*ParsedResponse, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	out := &ParsedResponse{}
	for field, path := range mapping.Fields {
		if value, ok := lookupPath(doc, path); ok {
			out.setField(field, value)
		}
	}
	return out, nil
}

// parseDelimited splits the first response line by the configured separator
// and maps fields to token indexes. Legacy providers answer with lines like
// ACCESS_NUMBER:12345:79161234567.
func parseDelimited(mapping models.MappingConfig, body []byte) *ParsedResponse {
	text := strings.TrimSpace(string(body))
	line := text
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		line = text[:idx]
	}
	tokens := strings.Split(line, mapping.Separator)

	out := &ParsedResponse{}
	for field, indexStr := range mapping.Fields {
		index, err := strconv.Atoi(indexStr)
		if err != nil || index < 0 || index >= len(tokens) {
			continue
		}
		out.setField(field, strings.TrimSpace(tokens[index]))
	}
	return out
}

// lookupPath walks a dotted path through decoded JSON. Returns the value
// rendered as a string and whether the full path resolved.
func lookupPath(doc any, path string) (string, bool) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return "", false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return "", false
			}
			current = node[index]
		default:
			return "", false
		}
	}
	return renderScalar(current)
}

func renderScalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// statusAliases maps provider status wordings onto the normalized vocabulary.
// Keys are compared upper-cased.
var statusAliases = map[string]ProviderStatus{
	"PENDING":           ProviderStatusPending,
	"WAITING":           ProviderStatusPending,
	"STATUS_WAIT_CODE":  ProviderStatusPending,
	"STATUS_WAIT_RETRY": ProviderStatusPending,
	"WAIT_CODE":         ProviderStatusPending,

	"RECEIVED":  ProviderStatusReceived,
	"STATUS_OK": ProviderStatusReceived,
	"SUCCESS":   ProviderStatusReceived,
	"OK":        ProviderStatusReceived,

	"COMPLETED":         ProviderStatusCompleted,
	"FINISHED":          ProviderStatusCompleted,
	"ACCESS_ACTIVATION": ProviderStatusCompleted,

	"CANCELLED":     ProviderStatusCancelled,
	"CANCELED":      ProviderStatusCancelled,
	"STATUS_CANCEL": ProviderStatusCancelled,
	"ACCESS_CANCEL": ProviderStatusCancelled,

	"EXPIRED": ProviderStatusExpired,
	"TIMEOUT": ProviderStatusExpired,
}

// NormalizeStatus maps a raw provider status string to the normalized
// vocabulary. Unmapped strings deliberately degrade to pending (providers add
// statuses without notice); the second return value lets callers log them.
func NormalizeStatus(raw string) (ProviderStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if status, ok := statusAliases[key]; ok {
		return status, true
	}
	return ProviderStatusPending, false
}
