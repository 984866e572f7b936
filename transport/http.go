package transport

import (
	"context"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"golang.org/x/oauth2"

	"github.com/viant/mcpc/auth"
	"github.com/viant/mcpc/config"
)

// connectHTTP opens a streamable HTTP session. The first attempt runs with
// stored credentials (silently refreshed when possible); an OAuth-required
// failure drives the provider's interactive flow and then opens a fresh
// transport with the new token - the initial transport is in a started state
// and is not reusable.
func (f *Factory) connectHTTP(ctx context.Context, record *config.Record) (*Session, error) {
	var provider *auth.Provider
	headers := cloneHeaders(record.Headers)
	if record.OAuth != nil {
		var options []auth.Option
		if f.nonInteractive {
			options = append(options, auth.WithNonInteractive())
		}
		provider = auth.New(record.Name, record.URL, record.OAuth, f.credentials, options...)
		token, err := provider.SilentToken(ctx)
		if err != nil {
			return nil, err
		}
		setBearer(headers, token)
	}

	session, err := f.startHTTP(ctx, record, headers)
	if err == nil {
		return session, nil
	}
	if provider == nil || !isAuthError(err) {
		return nil, connectError(record, err, "")
	}
	f.log.Debug("connect requires authorization", "server", record.Name, "error", err)

	token, authErr := provider.Authorize(ctx)
	if authErr != nil {
		return nil, authErr
	}
	setBearer(headers, token)
	session, err = f.startHTTP(ctx, record, headers)
	if err != nil {
		return nil, connectError(record, err, "")
	}
	return session, nil
}

func (f *Factory) startHTTP(ctx context.Context, record *config.Record, headers map[string]string) (*Session, error) {
	var options []mcptransport.StreamableHTTPCOption
	if len(headers) > 0 {
		options = append(options, mcptransport.WithHTTPHeaders(headers))
	}
	if timeout := requestTimeout(record); timeout > 0 {
		options = append(options, mcptransport.WithHTTPTimeout(timeout))
	}
	httpTransport, err := mcptransport.NewStreamableHTTP(record.URL, options...)
	if err != nil {
		return nil, err
	}
	mcpClient := client.NewClient(httpTransport)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, err
	}
	initResult, err := initialize(ctx, mcpClient)
	if err != nil {
		_ = mcpClient.Close()
		return nil, err
	}
	f.log.Debug("http session established", "server", record.Name, "url", record.URL)
	return &Session{Client: mcpClient, Init: initResult}, nil
}

func cloneHeaders(headers map[string]string) map[string]string {
	cloned := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		cloned[key] = value
	}
	return cloned
}

// setBearer injects the token unless the record pins its own Authorization
// header.
func setBearer(headers map[string]string, token *oauth2.Token) {
	if token == nil || token.AccessToken == "" {
		return
	}
	if _, pinned := headers["Authorization"]; pinned {
		return
	}
	headers["Authorization"] = "Bearer " + token.AccessToken
}
