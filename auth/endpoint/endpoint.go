// Package endpoint implements the localhost OAuth callback listener. One
// instance serves one authorization flow: it is bound before the
// authorization URL is constructed (so the effective port is known), resolves
// or rejects exactly once, and cleans itself up on resolution, rejection or
// timeout.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds how long the listener waits for the callback.
const DefaultTimeout = 5 * time.Minute

const successPage = `<html><body><h2>Authorization complete</h2><p>You can close this window and return to the terminal.</p></body></html>`

const errorPage = `<html><body><h2>Authorization failed</h2><p>%s</p><p>Return to the terminal for details.</p></body></html>`

// Endpoint is a single-flow callback listener.
type Endpoint struct {
	listener net.Listener
	server   *http.Server
	port     int
	timeout  time.Duration

	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	code    string
	state   string
	callErr error
}

// New binds the first port that succeeds from the fallback list (0 lets the
// OS choose) and starts serving in the background.
func New(ports []int, timeout time.Duration) (*Endpoint, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var listener net.Listener
	var lastErr error
	for _, port := range ports {
		candidate, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		listener = candidate
		break
	}
	if listener == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no callback ports configured")
		}
		return nil, fmt.Errorf("failed to bind callback listener: %w", lastErr)
	}
	endpoint := &Endpoint{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", endpoint.handleCallback)
	mux.HandleFunc("/favicon.ico", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "not found", http.StatusNotFound)
	})
	endpoint.server = &http.Server{Handler: mux}
	go func() {
		_ = endpoint.server.Serve(listener)
	}()
	return endpoint, nil
}

// Port returns the bound (effective) port.
func (e *Endpoint) Port() int {
	return e.port
}

func (e *Endpoint) handleCallback(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	switch {
	case query.Get("code") != "":
		writer.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(writer, successPage)
		e.resolve(query.Get("code"), query.Get("state"), nil)
	case query.Get("error") != "":
		message := query.Get("error")
		if description := query.Get("error_description"); description != "" {
			message += ": " + description
		}
		writer.Header().Set("Content-Type", "text/html")
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(writer, errorPage, message)
		e.resolve("", "", fmt.Errorf("authorization server returned %s", message))
	default:
		http.Error(writer, "missing code or error parameter", http.StatusBadRequest)
	}
}

func (e *Endpoint) resolve(code, state string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.code, e.state, e.callErr = code, state, err
	e.closed = true
	close(e.done)
}

// Wait blocks until the callback arrives, the timeout fires or ctx ends. The
// listener is always cleaned up before Wait returns.
func (e *Endpoint) Wait(ctx context.Context) (code, state string, err error) {
	defer e.Close()
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return e.code, e.state, e.callErr
	case <-timer.C:
		return "", "", fmt.Errorf("timed out waiting for authorization callback after %s", e.timeout)
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// Close shuts the listener down; safe to call more than once.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = e.server.Shutdown(shutdownCtx)
}
