package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/mcpc/auth/store"
)

// Descriptor records a live worker; paired with the socket file it is the
// sole arbitration for daemon validity: socket present, pid alive and config
// hash equal to the current record's hash.
type Descriptor struct {
	PID        int       `json:"pid"`
	ConfigHash string    `json:"configHash"`
	StartedAt  time.Time `json:"startedAt"`
}

// SocketDir returns the per-user socket directory.
func SocketDir() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("mcpc-%d", os.Getuid()))
}

// SocketPath returns the worker socket path for a server.
func SocketPath(server string) string {
	return filepath.Join(SocketDir(), store.Sanitize(server)+".sock")
}

// DescriptorPath returns the descriptor path for a server.
func DescriptorPath(server string) string {
	return filepath.Join(SocketDir(), store.Sanitize(server)+".pid")
}

// ReadDescriptor loads a server's descriptor; absent or malformed reads as nil.
func ReadDescriptor(server string) *Descriptor {
	data, err := os.ReadFile(DescriptorPath(server))
	if err != nil {
		return nil
	}
	descriptor := &Descriptor{}
	if err := json.Unmarshal(data, descriptor); err != nil || descriptor.PID <= 0 {
		return nil
	}
	return descriptor
}

// WriteDescriptor persists a descriptor atomically at 0600.
func WriteDescriptor(server string, descriptor *Descriptor) error {
	if err := os.MkdirAll(SocketDir(), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		return err
	}
	path := DescriptorPath(server)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RemoveFiles deletes a server's socket and descriptor, ignoring absence.
func RemoveFiles(server string) {
	_ = os.Remove(SocketPath(server))
	_ = os.Remove(DescriptorPath(server))
}

// Sweep removes descriptor/socket pairs whose owning process is dead; run at
// CLI startup so crashed workers do not leave the socket directory growing.
func Sweep() {
	entries, err := os.ReadDir(SocketDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".pid") {
			continue
		}
		server := strings.TrimSuffix(name, ".pid")
		descriptor := ReadDescriptor(server)
		if descriptor == nil || !pidAlive(descriptor.PID) {
			RemoveFiles(server)
		}
	}
}
