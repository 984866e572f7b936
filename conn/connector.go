package conn

import (
	"context"
	"log/slog"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/daemon"
	"github.com/viant/mcpc/errs"
	"github.com/viant/mcpc/internal/logging"
	"github.com/viant/mcpc/retry"
	"github.com/viant/mcpc/transport"
)

// Connector resolves server names to live sessions, preferring the daemon
// path and falling back to a retried direct connection.
type Connector struct {
	catalogue *config.Config
	settings  *config.Settings
	factory   *transport.Factory
	daemons   *daemon.Client
	log       *slog.Logger
}

// NewConnector wires the connection plane together.
func NewConnector(catalogue *config.Config, settings *config.Settings, credentials *store.Service, factoryOptions ...transport.Option) *Connector {
	return &Connector{
		catalogue: catalogue,
		settings:  settings,
		factory:   transport.New(credentials, factoryOptions...),
		daemons:   daemon.NewClient(settings, catalogue.Path()),
		log:       logging.With("conn"),
	}
}

// Connect returns a session for the named server. Daemon-path errors are
// internal: any failure there silently degrades to a direct session.
func (c *Connector) Connect(ctx context.Context, server string) (*Session, error) {
	record, err := c.catalogue.Lookup(server)
	if err != nil {
		return nil, err
	}
	if handle := c.daemons.Ensure(ctx, record); handle != nil {
		c.log.Debug("using daemon session", "server", server)
		return &Session{record: record, warm: handle}, nil
	}
	session, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: c.settings.MaxRetries,
		BaseDelay:   c.settings.RetryDelay,
	}, func(ctx context.Context) (*transport.Session, error) {
		return c.factory.Connect(ctx, record)
	})
	if err != nil {
		if coded := errs.As(err); coded.Type == errs.AuthRequired || coded.Type == errs.OAuthFlowError || coded.Type == errs.OAuthConfigError {
			return nil, err
		}
		return nil, errs.Wrap(errs.ServerConnectionFailed, err, "cannot connect to %s", server).
			WithDetails("%v", err).
			WithSuggestion("check that the server is reachable and its configuration is current")
	}
	c.log.Debug("using direct session", "server", server)
	return &Session{record: record, direct: session}, nil
}

// Sweep clears daemon files owned by dead workers; called once per CLI run.
func (c *Connector) Sweep() {
	daemon.Sweep()
}
