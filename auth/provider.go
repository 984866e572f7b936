// Package auth drives OAuth 2.0 authorization for HTTP servers: the
// authorization-code-with-PKCE flow with a pre-started localhost callback
// listener, and the client-credentials grant. One Provider instance owns one
// flow; tokens, registered clients and PKCE verifiers persist through the
// credential store.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/scy/auth/authorizer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/viant/mcpc/auth/browser"
	"github.com/viant/mcpc/auth/endpoint"
	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/errs"
	"github.com/viant/mcpc/internal/logging"
)

// defaultPorts is the callback port search order when the config supplies no
// explicit list; the trailing 0 lets the OS choose so the flow never requires
// an elevated bind.
var defaultPorts = []int{8765, 8766, 8767, 0}

// Provider owns one authorization flow for one server.
type Provider struct {
	server    string
	serverURL string
	oauth     *config.OAuth

	credentials *store.Service
	client      *http.Client
	endpoint    *endpoint.Endpoint

	nonInteractive  bool
	capturedURL     string
	callbackTimeout time.Duration
	openBrowser     func(string) error
	log             *slog.Logger
}

// Option customises a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client used for discovery, registration
// and token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithNonInteractive captures the authorization URL instead of opening a
// browser; the flow surfaces AUTH_REQUIRED carrying the URL.
func WithNonInteractive() Option {
	return func(p *Provider) {
		p.nonInteractive = true
	}
}

// WithCallbackTimeout overrides the 5-minute callback wait.
func WithCallbackTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		p.callbackTimeout = timeout
	}
}

// WithBrowserOpen overrides the browser launcher.
func WithBrowserOpen(open func(string) error) Option {
	return func(p *Provider) {
		p.openBrowser = open
	}
}

// New creates a provider for the given server record.
func New(server, serverURL string, oauth *config.OAuth, credentials *store.Service, options ...Option) *Provider {
	provider := &Provider{
		server:          server,
		serverURL:       serverURL,
		oauth:           oauth,
		credentials:     credentials,
		client:          http.DefaultClient,
		callbackTimeout: endpoint.DefaultTimeout,
		openBrowser:     browser.Launch,
		log:             logging.With("oauth").With("server", server),
	}
	for _, option := range options {
		option(provider)
	}
	return provider
}

// Grant returns the effective grant type.
func (p *Provider) Grant() string {
	return p.oauth.Grant()
}

// PortFallback computes the callback port search order: an explicit
// callbackPorts list overrides everything; otherwise the preferred
// callbackPort is prepended to the default order with duplicates removed.
func (p *Provider) PortFallback() []int {
	if len(p.oauth.CallbackPorts) > 0 {
		return p.oauth.CallbackPorts
	}
	var ports []int
	seen := map[int]bool{}
	if p.oauth.CallbackPort > 0 {
		ports = append(ports, p.oauth.CallbackPort)
		seen[p.oauth.CallbackPort] = true
	}
	for _, port := range defaultPorts {
		if seen[port] {
			continue
		}
		ports = append(ports, port)
		seen[port] = true
	}
	return ports
}

// Start pre-binds the callback listener so the effective port is known before
// the authorization URL is constructed. No-op for client-credentials and when
// a listener is already bound.
func (p *Provider) Start() error {
	if p.Grant() == config.GrantClientCredentials || p.endpoint != nil {
		return nil
	}
	bound, err := endpoint.New(p.PortFallback(), p.callbackTimeout)
	if err != nil {
		return errs.Wrap(errs.OAuthFlowError, err, "cannot start OAuth callback listener for %s", p.server).
			WithDetails("%v", err).
			WithSuggestion("free one of the configured callback ports or configure callbackPorts")
	}
	p.endpoint = bound
	p.log.Debug("callback listener bound", "port", bound.Port())
	return nil
}

// EffectivePort returns the bound callback port, or 0 before Start.
func (p *Provider) EffectivePort() int {
	if p.endpoint == nil {
		return 0
	}
	return p.endpoint.Port()
}

// RedirectURL derives the redirect from the effective port; the standard HTTP
// port is elided. Empty for the client-credentials grant.
func (p *Provider) RedirectURL() string {
	if p.Grant() == config.GrantClientCredentials {
		return ""
	}
	return redirectURLForPort(p.EffectivePort())
}

// redirectURLForPort elides the standard HTTP port.
func redirectURLForPort(port int) string {
	if port == 80 {
		return "http://localhost/callback"
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// CapturedURL returns the authorization URL captured in non-interactive mode.
func (p *Provider) CapturedURL() string {
	return p.capturedURL
}

// Cleanup releases the callback listener.
func (p *Provider) Cleanup() {
	if p.endpoint != nil {
		p.endpoint.Close()
		p.endpoint = nil
	}
}

// SilentToken returns a usable token without user interaction: a stored valid
// token, a stored token refreshed through its refresh token, or a fresh
// client-credentials grant. Returns nil when only an interactive flow can
// produce a token.
func (p *Provider) SilentToken(ctx context.Context) (*oauth2.Token, error) {
	if stored := p.credentials.Tokens(ctx, p.server); stored != nil {
		token := stored.OAuth2()
		if token.Valid() {
			return token, nil
		}
		if token.RefreshToken != "" {
			if refreshed := p.refresh(ctx, token); refreshed != nil {
				return refreshed, nil
			}
			p.log.Debug("token refresh failed, falling back to full flow")
		}
	}
	if p.Grant() == config.GrantClientCredentials {
		return p.clientCredentialsToken(ctx)
	}
	return nil, nil
}

// refresh exchanges a refresh token, preserving it when the server omits a
// replacement. Returns nil when the refresh cannot be performed.
func (p *Provider) refresh(ctx context.Context, token *oauth2.Token) *oauth2.Token {
	metadata, err := Discover(ctx, p.client, p.serverURL)
	if err != nil {
		return nil
	}
	clientConfig, err := p.clientConfig(ctx, metadata, false)
	if err != nil || clientConfig == nil {
		return nil
	}
	refreshed, err := clientConfig.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, p.client), token).Token()
	if err != nil {
		return nil
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if err := p.credentials.SaveTokens(ctx, p.server, refreshed); err != nil {
		p.log.Debug("failed to persist refreshed token", "error", err)
	}
	return refreshed
}

// Authorize runs the grant's interactive path: the full browser round-trip
// for authorization_code, a direct token request for client_credentials.
func (p *Provider) Authorize(ctx context.Context) (*oauth2.Token, error) {
	if p.Grant() == config.GrantClientCredentials {
		return p.clientCredentialsToken(ctx)
	}
	return p.authorizationCodeToken(ctx)
}

func (p *Provider) authorizationCodeToken(ctx context.Context) (*oauth2.Token, error) {
	if err := p.Start(); err != nil {
		return nil, err
	}
	defer p.Cleanup()

	metadata, err := Discover(ctx, p.client, p.serverURL)
	if err != nil {
		return nil, errs.Wrap(errs.OAuthConfigError, err, "cannot discover authorization server for %s", p.server).
			WithDetails("%v", err)
	}
	clientConfig, err := p.clientConfig(ctx, metadata, true)
	if err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	if err := p.credentials.SaveVerifier(ctx, p.server, verifier); err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "cannot persist PKCE verifier for %s", p.server).
			WithDetails("%v", err)
	}
	state := uuid.NewString()
	authURL := clientConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	// The port is chosen at runtime; rewrite the redirect to the effective
	// value in case the client config carried a pre-registered default.
	authURL = rewriteRedirect(authURL, p.RedirectURL())

	if p.nonInteractive {
		p.capturedURL = authURL
		return nil, errs.New(errs.AuthRequired, "server %s requires authorization", p.server).
			WithDetails("%s", authURL).
			WithSuggestion("open the URL in a browser, then rerun the command")
	}

	fmt.Fprintf(os.Stderr, "Authorization required for %s. Opening browser...\n  %s\n", p.server, authURL)
	if err := p.openBrowser(authURL); err != nil {
		p.log.Debug("browser launch failed", "error", err)
	}

	code, returnedState, err := p.endpoint.Wait(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "authorization for %s did not complete", p.server).
			WithDetails("%v", err).
			WithSuggestion("retry and complete the browser prompt within the callback window")
	}
	if returnedState != state {
		return nil, errs.New(errs.OAuthFlowError, "authorization state mismatch for %s", p.server).
			WithSuggestion("retry the command; if the problem persists, clear stored credentials")
	}
	storedVerifier := p.credentials.Verifier(ctx, p.server)
	if storedVerifier == "" {
		return nil, errs.New(errs.OAuthFlowError, "PKCE verifier for %s is missing", p.server).
			WithSuggestion("retry the command to restart the authorization flow")
	}
	token, err := clientConfig.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.client), code, oauth2.VerifierOption(storedVerifier))
	if err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "token exchange for %s failed", p.server).
			WithDetails("%v", err).
			WithSuggestion("retry; if the code expired, complete the browser prompt faster")
	}
	if token.Expiry.IsZero() {
		if expiry := store.ExpiryFromJWT(token.AccessToken); !expiry.IsZero() {
			token.Expiry = expiry
		}
	}
	if err := p.credentials.SaveTokens(ctx, p.server, token); err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "cannot persist tokens for %s", p.server).
			WithDetails("%v", err)
	}
	p.log.Debug("authorization complete", "expiry", token.Expiry)
	return token, nil
}

func (p *Provider) clientCredentialsToken(ctx context.Context) (*oauth2.Token, error) {
	metadata, err := Discover(ctx, p.client, p.serverURL)
	if err != nil {
		return nil, errs.Wrap(errs.OAuthConfigError, err, "cannot discover authorization server for %s", p.server).
			WithDetails("%v", err)
	}
	clientID, clientSecret := p.oauth.ClientID, p.oauth.ClientSecret
	tokenURL := metadata.TokenEndpoint
	if external, err := p.externalClientConfig(ctx); err != nil {
		return nil, err
	} else if external != nil {
		clientID, clientSecret = external.ClientID, external.ClientSecret
		if external.Endpoint.TokenURL != "" {
			tokenURL = external.Endpoint.TokenURL
		}
	}
	grant := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       splitScope(p.oauth.Scope),
	}
	token, err := grant.Token(context.WithValue(ctx, oauth2.HTTPClient, p.client))
	if err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "client-credentials token request for %s failed", p.server).
			WithDetails("%v", err).
			WithSuggestion("verify clientId/clientSecret and the token endpoint")
	}
	if err := p.credentials.SaveTokens(ctx, p.server, token); err != nil {
		return nil, errs.Wrap(errs.OAuthFlowError, err, "cannot persist tokens for %s", p.server).
			WithDetails("%v", err)
	}
	return token, nil
}

// ClientCredentialsParams builds the URL-encoded token request parameters for
// the client-credentials grant; scope may be overridden per call.
func (p *Provider) ClientCredentialsParams(scopeOverride string) url.Values {
	values := url.Values{"grant_type": {config.GrantClientCredentials}}
	scope := p.oauth.Scope
	if scopeOverride != "" {
		scope = scopeOverride
	}
	if scope != "" {
		values.Set("scope", scope)
	}
	return values
}

// clientConfig resolves the OAuth client: an external scy-managed config or a
// static clientId wins unconditionally; otherwise a persisted registration is
// reused when its redirect URIs still match, and re-registration happens as a
// last resort (only when register is true).
func (p *Provider) clientConfig(ctx context.Context, metadata *Metadata, register bool) (*oauth2.Config, error) {
	oauthEndpoint := oauth2.Endpoint{
		AuthURL:  metadata.AuthorizationEndpoint,
		TokenURL: metadata.TokenEndpoint,
	}
	if external, err := p.externalClientConfig(ctx); err != nil {
		return nil, err
	} else if external != nil {
		external.RedirectURL = p.RedirectURL()
		if external.Endpoint.AuthURL == "" {
			external.Endpoint = oauthEndpoint
		}
		if len(external.Scopes) == 0 {
			external.Scopes = splitScope(p.oauth.Scope)
		}
		return external, nil
	}
	if p.oauth.ClientID != "" {
		return &oauth2.Config{
			ClientID:     p.oauth.ClientID,
			ClientSecret: p.oauth.ClientSecret,
			Endpoint:     oauthEndpoint,
			RedirectURL:  p.RedirectURL(),
			Scopes:       splitScope(p.oauth.Scope),
		}, nil
	}

	redirect := p.RedirectURL()
	persisted := p.credentials.Client(ctx, p.server)
	if persisted != nil && !containsString(persisted.RedirectURIs, redirect) {
		// The authorization server would reject the new redirect; the stored
		// registration is unusable.
		p.log.Debug("persisted client redirect mismatch, invalidating", "redirect", redirect)
		_ = p.credentials.Invalidate(ctx, p.server, store.ScopeClient)
		persisted = nil
	}
	if persisted == nil {
		if !register {
			return nil, nil
		}
		registered, err := registerClient(ctx, p.client, metadata.RegistrationEndpoint, p.registrationMetadata(redirect))
		if err != nil {
			return nil, errs.Wrap(errs.OAuthConfigError, err, "dynamic client registration for %s failed", p.server).
				WithDetails("%v", err).
				WithSuggestion("configure a static clientId for this server")
		}
		if err := p.credentials.SaveClient(ctx, p.server, registered); err != nil {
			return nil, errs.Wrap(errs.OAuthFlowError, err, "cannot persist registered client for %s", p.server).
				WithDetails("%v", err)
		}
		persisted = registered
	}
	return &oauth2.Config{
		ClientID:     persisted.ClientID,
		ClientSecret: persisted.ClientSecret,
		Endpoint:     oauthEndpoint,
		RedirectURL:  redirect,
		Scopes:       splitScope(p.oauth.Scope),
	}, nil
}

// externalClientConfig loads a scy-managed OAuth client config when the
// record points at one; the URL may address an encrypted resource.
func (p *Provider) externalClientConfig(ctx context.Context) (*oauth2.Config, error) {
	if p.oauth.OAuth2ConfigURL == "" {
		return nil, nil
	}
	service := authorizer.New()
	oauthConfig := &authorizer.OAuthConfig{ConfigURL: p.oauth.OAuth2ConfigURL}
	if err := service.EnsureConfig(ctx, oauthConfig); err != nil {
		return nil, errs.Wrap(errs.OAuthConfigError, err, "cannot load oauth2 config %q", p.oauth.OAuth2ConfigURL).
			WithDetails("%v", err)
	}
	return oauthConfig.Config, nil
}

// registrationMetadata advertises the configured grant: authorization_code
// registers code + refresh_token with the current redirect; client_credentials
// registers neither a redirect nor a response type. Auth method follows the
// presence of a configured secret.
func (p *Provider) registrationMetadata(redirect string) *clientMetadata {
	metadata := &clientMetadata{
		ClientName:              "mcpc (" + p.server + ")",
		TokenEndpointAuthMethod: "none",
		Scope:                   p.oauth.Scope,
	}
	if p.oauth.ClientSecret != "" {
		metadata.TokenEndpointAuthMethod = "client_secret_post"
	}
	if p.Grant() == config.GrantClientCredentials {
		metadata.GrantTypes = []string{config.GrantClientCredentials}
		return metadata
	}
	metadata.GrantTypes = []string{config.GrantAuthorizationCode, "refresh_token"}
	metadata.ResponseTypes = []string{"code"}
	metadata.RedirectURIs = []string{redirect}
	return metadata
}

func rewriteRedirect(rawURL, redirect string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Set("redirect_uri", redirect)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
