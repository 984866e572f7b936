package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Metadata is the subset of RFC 8414 authorization-server metadata the
// provider needs.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

var wellKnownPaths = []string{
	"/.well-known/oauth-authorization-server",
	"/.well-known/openid-configuration",
}

// Discover fetches authorization-server metadata from the server's origin,
// trying the OAuth well-known document first, then the OIDC one. When neither
// is served the conventional endpoint paths on the origin are assumed.
func Discover(ctx context.Context, client *http.Client, serverURL string) (*Metadata, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}
	origin := parsed.Scheme + "://" + parsed.Host
	for _, path := range wellKnownPaths {
		metadata, err := fetchMetadata(ctx, client, origin+path)
		if err != nil {
			continue
		}
		if metadata.AuthorizationEndpoint != "" && metadata.TokenEndpoint != "" {
			return metadata, nil
		}
	}
	return &Metadata{
		Issuer:                origin,
		AuthorizationEndpoint: origin + "/authorize",
		TokenEndpoint:         origin + "/token",
		RegistrationEndpoint:  origin + "/register",
	}, nil
}

func fetchMetadata(ctx context.Context, client *http.Client, URL string) (*Metadata, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, URL, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned %s", response.Status)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	metadata := &Metadata{}
	if err := json.Unmarshal(body, metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// SupportsScope reports whether the server advertises the given scope; absent
// advertisement is treated as supported.
func (m *Metadata) SupportsScope(scope string) bool {
	if len(m.ScopesSupported) == 0 || scope == "" {
		return true
	}
	for _, requested := range strings.Fields(scope) {
		found := false
		for _, supported := range m.ScopesSupported {
			if supported == requested {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
