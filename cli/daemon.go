package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/daemon"
)

// runDaemon is the hidden worker entry ("mcpc _daemon <server>"): it loads
// the same catalogue as the spawning CLI (handed over via MCPC_CONFIG_PATH),
// establishes the MCP session and serves the per-server socket until idle.
func runDaemon(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mcpc _daemon <server>")
		return 1
	}
	server := args[0]
	catalogue, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon %s: %v\n", server, err)
		return 1
	}
	record, err := catalogue.Lookup(server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon %s: %v\n", server, err)
		return 1
	}
	worker := daemon.NewWorker(server, record, config.LoadSettings())
	if err := worker.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "daemon %s: %v\n", server, err)
		return 1
	}
	return 0
}
