package services

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
)

var templateTokenRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// BuildInput carries everything needed to turn a declarative endpoint
// template plus runtime arguments into a concrete HTTP request.
type BuildInput struct {
	ProviderName string
	BaseURL      string
	Method       string
	PathTemplate string

	AuthType   models.AuthType
	AuthKey    string
	AuthHeader string // header name for header auth, query param name for apikey_query (default api_key)

	Params map[string]string
}

// BuildRequest substitutes template tokens, attaches authentication and, for
// GET requests, appends any runtime parameter the template did not consume as
// a query parameter. Substitution is validated before any network call: an
// unresolved token fails with a ConfigurationError.
func BuildRequest(ctx context.Context, in BuildInput) (*http.Request, error) {
	path := in.PathTemplate
	consumed := make(map[string]bool, len(in.Params))

	for _, match := range templateTokenRe.FindAllStringSubmatch(in.PathTemplate, -1) {
		token := match[1]
		value, ok := in.Params[token]
		if !ok || value == "" {
			// {operator} is the one optional token: most providers accept a
			// wildcard instead of a concrete carrier
			if token == "operator" {
				value = utils.OperatorWildcard
			} else {
				return nil, &ConfigurationError{Provider: in.ProviderName, Token: token, Template: in.PathTemplate}
			}
		}
		path = strings.ReplaceAll(path, "{"+token+"}", url.PathEscape(value))
		consumed[token] = true
	}

	fullURL := strings.TrimRight(in.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, &ConfigurationError{Provider: in.ProviderName, Token: "", Template: fullURL}
	}

	query := u.Query()

	if in.Method == http.MethodGet {
		// Deterministic ordering keeps request URLs stable across polls
		keys := make([]string, 0, len(in.Params))
		for k := range in.Params {
			if !consumed[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			query.Set(k, in.Params[k])
		}
	}

	if in.AuthType == models.AuthTypeAPIKeyQuery {
		param := in.AuthHeader
		if param == "" {
			param = "api_key"
		}
		query.Set(param, in.AuthKey)
	}

	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, in.Method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json, text/plain")

	switch in.AuthType {
	case models.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+in.AuthKey)
	case models.AuthTypeHeader:
		req.Header.Set(in.AuthHeader, in.AuthKey)
	}

	return req, nil
}
