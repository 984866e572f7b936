package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/errs"
)

// fakeAuthServer is a minimal authorization server: metadata discovery,
// dynamic registration and a token endpoint that accepts any code as long as
// PKCE and grant type are present.
type fakeAuthServer struct {
	server        *httptest.Server
	registrations int
	exchanges     int
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	fake := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(writer http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(writer).Encode(map[string]interface{}{
			"issuer":                 fake.server.URL,
			"authorization_endpoint": fake.server.URL + "/authorize",
			"token_endpoint":         fake.server.URL + "/token",
			"registration_endpoint":  fake.server.URL + "/register",
		})
	})
	mux.HandleFunc("/register", func(writer http.ResponseWriter, request *http.Request) {
		fake.registrations++
		var body map[string]interface{}
		_ = json.NewDecoder(request.Body).Decode(&body)
		writer.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(writer).Encode(map[string]interface{}{
			"client_id":     "registered-client",
			"redirect_uris": body["redirect_uris"],
		})
	})
	mux.HandleFunc("/token", func(writer http.ResponseWriter, request *http.Request) {
		fake.exchanges++
		require.NoError(t, request.ParseForm())
		grantType := request.PostFormValue("grant_type")
		switch grantType {
		case "authorization_code":
			assert.NotEmpty(t, request.PostFormValue("code"))
			assert.NotEmpty(t, request.PostFormValue("code_verifier"))
		case "client_credentials":
		case "refresh_token":
			assert.NotEmpty(t, request.PostFormValue("refresh_token"))
		default:
			http.Error(writer, "unsupported grant", http.StatusBadRequest)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]interface{}{
			"access_token":  "token-" + grantType,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

// completeCallback parses the authorization URL and plays the redirect as the
// browser would.
func completeCallback(t *testing.T) func(string) error {
	t.Helper()
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		redirect := parsed.Query().Get("redirect_uri")
		state := parsed.Query().Get("state")
		require.NotEmpty(t, redirect)
		go func() {
			response, err := http.Get(redirect + "?code=abc&state=" + state)
			if err == nil {
				_ = response.Body.Close()
			}
		}()
		return nil
	}
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{}, credentials,
		WithBrowserOpen(completeCallback(t)),
		WithCallbackTimeout(5*time.Second))

	token, err := provider.Authorize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-authorization_code", token.AccessToken)

	// Tokens and registered client are persisted under the server name.
	assert.NotNil(t, credentials.Tokens(ctx, "x"))
	client := credentials.Client(ctx, "x")
	require.NotNil(t, client)
	assert.Equal(t, "registered-client", client.ClientID)
	assert.Equal(t, 1, fake.registrations)

	// A later invocation uses the stored token silently.
	silent, err := provider.SilentToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, silent)
	assert.Equal(t, token.AccessToken, silent.AccessToken)
}

func TestNonInteractiveCapturesURL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{ClientID: "static"}, credentials,
		WithNonInteractive())

	_, err := provider.Authorize(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.AuthRequired))
	assert.Contains(t, provider.CapturedURL(), "redirect_uri=")
	assert.Contains(t, errs.As(err).Details, provider.CapturedURL())
}

func TestStaticClientSkipsRegistration(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{ClientID: "static-id"}, credentials,
		WithBrowserOpen(completeCallback(t)),
		WithCallbackTimeout(5*time.Second))

	_, err := provider.Authorize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fake.registrations)
}

func TestRedirectMismatchInvalidatesClient(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	require.NoError(t, credentials.SaveClient(ctx, "x", &store.ClientInfo{
		ClientID:     "stale-client",
		RedirectURIs: []string{"http://localhost:1/callback"},
	}))
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{}, credentials,
		WithBrowserOpen(completeCallback(t)),
		WithCallbackTimeout(5*time.Second))

	_, err := provider.Authorize(ctx)
	require.NoError(t, err)
	client := credentials.Client(ctx, "x")
	require.NotNil(t, client)
	assert.Equal(t, "registered-client", client.ClientID)
	assert.Equal(t, 1, fake.registrations)
}

func TestClientCredentials(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{
		GrantType:    config.GrantClientCredentials,
		ClientID:     "id",
		ClientSecret: "secret",
		Scope:        "mcp.read",
	}, credentials)

	token, err := provider.SilentToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "token-client_credentials", token.AccessToken)
	assert.Equal(t, "", provider.RedirectURL())
}

func TestClientCredentialsParams(t *testing.T) {
	provider := New("x", "https://example.com", &config.OAuth{
		GrantType:    config.GrantClientCredentials,
		ClientID:     "id",
		ClientSecret: "secret",
		Scope:        "a b",
	}, store.New(t.TempDir()))

	params := provider.ClientCredentialsParams("")
	assert.Equal(t, "client_credentials", params.Get("grant_type"))
	assert.Equal(t, "a b", params.Get("scope"))

	overridden := provider.ClientCredentialsParams("c")
	assert.Equal(t, "c", overridden.Get("scope"))
}

func TestPortFallbackOrder(t *testing.T) {
	makeProvider := func(oauth *config.OAuth) *Provider {
		return New("x", "https://example.com", oauth, store.New(t.TempDir()))
	}
	// Explicit list fully overrides the default order.
	assert.Equal(t, []int{80, 0}, makeProvider(&config.OAuth{CallbackPorts: []int{80, 0}}).PortFallback())
	// Preferred port is prepended, duplicates removed.
	assert.Equal(t, []int{9000, 8765, 8766, 8767, 0}, makeProvider(&config.OAuth{CallbackPort: 9000}).PortFallback())
	assert.Equal(t, []int{8766, 8765, 8767, 0}, makeProvider(&config.OAuth{CallbackPort: 8766}).PortFallback())
	assert.Equal(t, []int{8765, 8766, 8767, 0}, makeProvider(&config.OAuth{}).PortFallback())
}

func TestPortFallbackBindsNextFreePort(t *testing.T) {
	// Occupy a port, then ask the provider to prefer it; it must fall back to
	// an OS-assigned one and reflect it in the redirect URL.
	occupied, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	provider := New("x", "https://example.com", &config.OAuth{CallbackPorts: []int{port, 0}}, store.New(t.TempDir()))
	require.NoError(t, provider.Start())
	defer provider.Cleanup()

	assert.NotEqual(t, port, provider.EffectivePort())
	assert.NotZero(t, provider.EffectivePort())
	assert.Equal(t, fmt.Sprintf("http://localhost:%d/callback", provider.EffectivePort()), provider.RedirectURL())
}

func TestRedirectURLForPort(t *testing.T) {
	assert.Equal(t, "http://localhost/callback", redirectURLForPort(80))
	assert.Equal(t, "http://localhost:8765/callback", redirectURLForPort(8765))
}

func TestCallbackTimeout(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAuthServer(t)
	credentials := store.New(t.TempDir())
	provider := New("x", fake.server.URL+"/mcp", &config.OAuth{ClientID: "static"}, credentials,
		WithBrowserOpen(func(string) error { return nil }),
		WithCallbackTimeout(50*time.Millisecond))

	_, err := provider.Authorize(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.OAuthFlowError))
}
