// Package browser opens the user's default browser with a platform-dispatched
// command. Launch is fire-and-forget: the flow proceeds even when no browser
// can be started, because the authorization URL is also printed.
package browser

import (
	"os/exec"
	"runtime"
)

// Open returns the platform command that opens URL in the default browser.
func Open(URL string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", URL)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", URL)
	default:
		return exec.Command("xdg-open", URL)
	}
}

// Launch starts the open command without waiting; errors are returned for
// logging only and never abort the flow.
func Launch(URL string) error {
	cmd := Open(URL)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
