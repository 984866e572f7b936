package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/viant/mcpc/auth/store"
)

// clientMetadata is the RFC 7591 registration request body. The advertised
// grant and response types follow the configured grant: authorization_code
// registers code + refresh_token, client_credentials registers neither a
// redirect nor a response type.
type clientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name"`
	Scope                   string   `json:"scope,omitempty"`
}

type registrationResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

func registerClient(ctx context.Context, client *http.Client, endpoint string, metadata *clientMetadata) (*store.ClientInfo, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("authorization server does not support dynamic registration")
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusCreated && response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client registration returned %s: %s", response.Status, string(payload))
	}
	var registered registrationResponse
	if err := json.Unmarshal(payload, &registered); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	if registered.ClientID == "" {
		return nil, fmt.Errorf("registration response missing client_id")
	}
	redirects := registered.RedirectURIs
	if len(redirects) == 0 {
		redirects = metadata.RedirectURIs
	}
	return &store.ClientInfo{
		ClientID:     registered.ClientID,
		ClientSecret: registered.ClientSecret,
		RedirectURIs: redirects,
	}, nil
}
