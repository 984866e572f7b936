package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/internal/logging"
)

// spawnTimeout bounds the wait for a freshly spawned worker to report
// readiness.
const spawnTimeout = 5 * time.Second

// Client locates or spawns workers and forwards framed requests. Every
// failure on this path returns nil or an error that the façade converts into
// a direct-connection fallback; daemon problems are never fatal to the user
// operation.
type Client struct {
	settings   *config.Settings
	configPath string
	log        *slog.Logger
}

// NewClient creates a daemon client; configPath is handed to spawned workers
// so they load the same catalogue.
func NewClient(settings *config.Settings, configPath string) *Client {
	return &Client{
		settings:   settings,
		configPath: configPath,
		log:        logging.With("daemon-client"),
	}
}

// Handle addresses one live worker. It holds only the socket path; each
// request opens a short-lived connection.
type Handle struct {
	Server     string
	socketPath string
}

// NewHandle addresses a worker socket directly.
func NewHandle(server, socketPath string) *Handle {
	return &Handle{Server: server, socketPath: socketPath}
}

// Ensure returns a handle to a fresh worker for the record, spawning or
// respawning as needed; nil means the caller must fall back to direct.
func (c *Client) Ensure(ctx context.Context, record *config.Record) *Handle {
	if c.settings.NoDaemon {
		return nil
	}
	server := record.Name
	descriptor := ReadDescriptor(server)
	if descriptor != nil {
		if c.isFresh(descriptor, record) {
			handle := &Handle{Server: server, socketPath: SocketPath(server)}
			if err := handle.Ping(ctx); err == nil {
				return handle
			}
			c.log.Debug("existing daemon not responding", "server", server)
		}
		// Stale by hash, dead pid, missing socket or unresponsive: clear it.
		c.log.Debug("invalidating daemon", "server", server, "pid", descriptor.PID)
		terminate(descriptor.PID)
		RemoveFiles(server)
	}
	if !c.spawn(record) {
		return nil
	}
	handle := &Handle{Server: server, socketPath: SocketPath(server)}
	if err := handle.Ping(ctx); err != nil {
		c.log.Debug("spawned daemon failed ping", "server", server, "error", err)
		RemoveFiles(server)
		return nil
	}
	return handle
}

func (c *Client) isFresh(descriptor *Descriptor, record *config.Record) bool {
	if !pidAlive(descriptor.PID) {
		return false
	}
	if descriptor.ConfigHash != record.Hash() {
		return false
	}
	if _, err := os.Stat(SocketPath(record.Name)); err != nil {
		return false
	}
	return true
}

// spawn launches a detached worker and waits for its readiness line.
func (c *Client) spawn(record *config.Record) bool {
	executable, err := os.Executable()
	if err != nil {
		c.log.Debug("cannot resolve executable", "error", err)
		return false
	}
	cmd := exec.Command(executable, "_daemon", record.Name)
	if c.configPath != "" {
		cmd.Env = append(os.Environ(), "MCPC_CONFIG_PATH="+c.configPath)
	}
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false
	}
	detach(cmd)
	if err := cmd.Start(); err != nil {
		c.log.Debug("daemon spawn failed", "server", record.Name, "error", err)
		return false
	}
	go func() {
		_ = cmd.Wait()
	}()

	ready := make(chan bool, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == ReadyToken {
				ready <- true
				return
			}
		}
		ready <- false
	}()
	select {
	case ok := <-ready:
		if !ok {
			c.log.Debug("daemon exited before readiness", "server", record.Name)
			RemoveFiles(record.Name)
			return false
		}
		c.log.Debug("daemon ready", "server", record.Name, "pid", cmd.Process.Pid)
		return true
	case <-time.After(spawnTimeout):
		c.log.Debug("daemon spawn timed out", "server", record.Name)
		if cmd.Process != nil {
			terminate(cmd.Process.Pid)
		}
		RemoveFiles(record.Name)
		return false
	}
}

// Ping confirms the socket is serving.
func (h *Handle) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, SocketTimeout)
	defer cancel()
	response, err := h.Request(pingCtx, &Request{Type: TypePing})
	if err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("ping rejected: %s", response.Error)
	}
	return nil
}

// Request sends one framed request over a fresh connection. The read deadline
// follows the context deadline so long tool calls are not cut off by the
// short socket timeout.
func (h *Handle) Request(ctx context.Context, request *Request) (*Response, error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	conn, err := net.DialTimeout("unix", h.socketPath, SocketTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(SocketTimeout))
	}
	if err := writeFrame(conn, request); err != nil {
		return nil, err
	}
	response := &Response{}
	if err := readFrame(bufio.NewReader(conn), response); err != nil {
		return nil, err
	}
	if response.ID != request.ID {
		return nil, fmt.Errorf("response id mismatch: sent %s, got %s", request.ID, response.ID)
	}
	return response, nil
}

// Shutdown requests worker termination (close request with grace).
func (h *Handle) Shutdown(ctx context.Context) error {
	_, err := h.Request(ctx, &Request{Type: TypeClose})
	return err
}
