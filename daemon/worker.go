package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/internal/logging"
	"github.com/viant/mcpc/retry"
	"github.com/viant/mcpc/transport"
)

// closeGrace delays the shutdown scheduled by a close request so the response
// can be flushed first.
const closeGrace = 100 * time.Millisecond

// workerReadTimeout bounds how long a connection may sit between accept and
// a complete request line.
const workerReadTimeout = 30 * time.Second

// Worker is one daemon process: it owns exactly one MCP session from spawn to
// cleanup and serves framed requests until the idle timer fires.
type Worker struct {
	server   string
	record   *config.Record
	idle     time.Duration
	settings *config.Settings

	session   *transport.Session
	sessionMu sync.Mutex // the client library is not documented re-entrant
	listener  net.Listener
	idleTimer *time.Timer

	shutdownOnce sync.Once
	done         chan struct{}
	log          *slog.Logger
}

// NewWorker creates a worker for one server record.
func NewWorker(server string, record *config.Record, settings *config.Settings) *Worker {
	return &Worker{
		server:   server,
		record:   record,
		idle:     settings.DaemonTimeout,
		settings: settings,
		done:     make(chan struct{}),
		log:      logging.With("daemon").With("server", server),
	}
}

// Run establishes the MCP session, binds the socket, reports readiness on
// stdout and serves until idle expiry, a close request or a signal. A connect
// or bind failure cleans up and returns an error (the process should exit 1).
func (w *Worker) Run(ctx context.Context) error {
	if err := os.MkdirAll(SocketDir(), 0o700); err != nil {
		return fmt.Errorf("cannot create socket directory: %w", err)
	}
	socketPath := SocketPath(w.server)
	_ = os.Remove(socketPath)
	if err := WriteDescriptor(w.server, &Descriptor{
		PID:        os.Getpid(),
		ConfigHash: w.record.Hash(),
		StartedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("cannot write daemon descriptor: %w", err)
	}

	home, err := config.Home()
	if err != nil {
		RemoveFiles(w.server)
		return err
	}
	// The worker has no browser to offer; servers that need interactive
	// authorization fail here and the CLI falls back to a direct session.
	factory := transport.New(store.New(home), transport.WithNonInteractive())
	session, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: w.settings.MaxRetries,
		BaseDelay:   w.settings.RetryDelay,
	}, func(ctx context.Context) (*transport.Session, error) {
		return factory.Connect(ctx, w.record)
	})
	if err != nil {
		RemoveFiles(w.server)
		return fmt.Errorf("cannot establish MCP session: %w", err)
	}
	w.session = session

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = session.Close()
		RemoveFiles(w.server)
		return fmt.Errorf("cannot bind %s: %w", socketPath, err)
	}
	w.listener = listener
	w.idleTimer = time.AfterFunc(w.idle, func() {
		w.log.Debug("idle timeout, shutting down")
		w.shutdown()
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case sig := <-signals:
			w.log.Debug("signal received", "signal", sig)
			w.shutdown()
		case <-w.done:
		}
	}()

	// Unblocks the spawner.
	fmt.Println(ReadyToken)
	w.log.Debug("serving", "socket", socketPath, "idle", w.idle)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-w.done:
				return nil
			default:
				w.log.Debug("accept failed", "error", err)
				continue
			}
		}
		go w.serveConn(conn)
	}
}

// shutdown closes the session, removes the socket and descriptor and stops
// the accept loop; safe to trigger from any path.
func (w *Worker) shutdown() {
	w.shutdownOnce.Do(func() {
		close(w.done)
		if w.idleTimer != nil {
			w.idleTimer.Stop()
		}
		if w.listener != nil {
			_ = w.listener.Close()
		}
		w.sessionMu.Lock()
		if w.session != nil {
			_ = w.session.Close()
		}
		w.sessionMu.Unlock()
		RemoveFiles(w.server)
	})
}

// serveConn handles one framed request per connection.
func (w *Worker) serveConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(workerReadTimeout))

	var request Request
	if err := readFrame(bufio.NewReader(conn), &request); err != nil {
		w.log.Debug("bad request frame", "error", err)
		return
	}
	w.idleTimer.Reset(w.idle)
	_ = conn.SetReadDeadline(time.Time{})

	response := w.handle(&request)
	_ = conn.SetWriteDeadline(time.Now().Add(SocketTimeout))
	if err := writeFrame(conn, response); err != nil {
		w.log.Debug("cannot write response", "id", request.ID, "error", err)
	}
	if request.Type == TypeClose {
		time.AfterFunc(closeGrace, w.shutdown)
	}
}

func (w *Worker) handle(request *Request) *Response {
	ctx, cancel := context.WithTimeout(context.Background(), w.settings.Timeout)
	defer cancel()

	respond := func(data interface{}, err error) *Response {
		if err != nil {
			return &Response{ID: request.ID, Error: err.Error()}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return &Response{ID: request.ID, Error: err.Error()}
		}
		return &Response{ID: request.ID, Success: true, Data: payload}
	}

	switch request.Type {
	case TypePing:
		return &Response{ID: request.ID, Success: true}
	case TypeListTools:
		w.sessionMu.Lock()
		defer w.sessionMu.Unlock()
		result, err := w.session.Client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return respond(nil, err)
		}
		return respond(result.Tools, nil)
	case TypeCallTool:
		var arguments map[string]interface{}
		if len(request.Args) > 0 {
			if err := json.Unmarshal(request.Args, &arguments); err != nil {
				return respond(nil, fmt.Errorf("invalid arguments: %w", err))
			}
		}
		callRequest := mcp.CallToolRequest{}
		callRequest.Params.Name = request.ToolName
		callRequest.Params.Arguments = arguments
		w.sessionMu.Lock()
		defer w.sessionMu.Unlock()
		return respond(w.session.Client.CallTool(ctx, callRequest))
	case TypeGetInstructions:
		return respond(w.session.Instructions(), nil)
	case TypeClose:
		return &Response{ID: request.ID, Success: true}
	default:
		return &Response{ID: request.ID, Error: fmt.Sprintf("unknown request type %q", request.Type)}
	}
}
