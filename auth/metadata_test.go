package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverWellKnown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/.well-known/oauth-authorization-server" {
			http.NotFound(writer, request)
			return
		}
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"issuer":                 "https://issuer.example",
			"authorization_endpoint": "https://issuer.example/auth",
			"token_endpoint":         "https://issuer.example/token",
			"registration_endpoint":  "https://issuer.example/register",
		})
	}))
	defer server.Close()

	metadata, err := Discover(context.Background(), http.DefaultClient, server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example/auth", metadata.AuthorizationEndpoint)
	assert.Equal(t, "https://issuer.example/token", metadata.TokenEndpoint)
	assert.Equal(t, "https://issuer.example/register", metadata.RegistrationEndpoint)
}

func TestDiscoverOIDCFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(writer, request)
			return
		}
		_ = json.NewEncoder(writer).Encode(map[string]string{
			"issuer":                 "https://issuer.example",
			"authorization_endpoint": "https://issuer.example/oidc/auth",
			"token_endpoint":         "https://issuer.example/oidc/token",
		})
	}))
	defer server.Close()

	metadata, err := Discover(context.Background(), http.DefaultClient, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example/oidc/auth", metadata.AuthorizationEndpoint)
}

func TestDiscoverConventionalDefaults(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	metadata, err := Discover(context.Background(), http.DefaultClient, server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", metadata.AuthorizationEndpoint)
	assert.Equal(t, server.URL+"/token", metadata.TokenEndpoint)
	assert.Equal(t, server.URL+"/register", metadata.RegistrationEndpoint)
}

func TestDiscoverInvalidURL(t *testing.T) {
	_, err := Discover(context.Background(), http.DefaultClient, "not a url")
	assert.Error(t, err)
}

func TestRewriteRedirect(t *testing.T) {
	rewritten := rewriteRedirect(
		"https://as.example/authorize?client_id=c&redirect_uri=http%3A%2F%2Flocalhost%3A9999%2Fcallback&state=s",
		"http://localhost:8766/callback")
	assert.Contains(t, rewritten, "redirect_uri=http%3A%2F%2Flocalhost%3A8766%2Fcallback")
	assert.Contains(t, rewritten, "client_id=c")
}
