// Package cli implements the mcpc command surface: argument parsing,
// subcommand dispatch with recovery suggestions, formatters and the exit-code
// contract. Agents spawn the CLI repeatedly, so every failure path must yield
// a deterministic coded error.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/viant/mcpc/auth/store"
	"github.com/viant/mcpc/config"
	"github.com/viant/mcpc/conn"
	"github.com/viant/mcpc/errs"
	"github.com/viant/mcpc/internal/logging"
)

// Version is stamped at build time.
var Version = "0.1.0"

// Options is the global flag set.
type Options struct {
	Config           string `short:"c" long:"config" description:"configuration file path"`
	WithDescriptions bool   `short:"d" long:"with-descriptions" description:"include tool descriptions in listings"`
	Version          bool   `short:"v" long:"version" description:"print version and exit"`
}

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	logging.Init()

	// Hidden entry: the daemon client spawns "mcpc _daemon <server>".
	if len(args) > 0 && args[0] == "_daemon" {
		return runDaemon(args[1:])
	}

	options := &Options{}
	parser := flags.NewParser(options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[-c <path>] [-d] [<subcommand>] [arguments]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			fmt.Fprintln(os.Stdout, helpText)
			return errs.ExitOK
		}
		return fail(errs.New(errs.UnknownOption, "%v", err).
			WithSuggestion("run mcpc --help for usage"))
	}
	if options.Version {
		fmt.Println("mcpc " + Version)
		return errs.ExitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var lastSignal atomic.Int32
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		if sig, ok := <-signals; ok {
			if sig == syscall.SIGTERM {
				lastSignal.Store(int32(syscall.SIGTERM))
			} else {
				lastSignal.Store(int32(syscall.SIGINT))
			}
		}
	}()

	settings := config.LoadSettings()
	ctx, cancel := context.WithTimeout(ctx, settings.Timeout)
	defer cancel()

	err = dispatch(ctx, options, rest, settings)
	if ctx.Err() != nil {
		switch syscall.Signal(lastSignal.Load()) {
		case syscall.SIGINT:
			return errs.ExitInterrupted
		case syscall.SIGTERM:
			return errs.ExitTerminated
		}
	}
	if err != nil {
		return fail(err)
	}
	return errs.ExitOK
}

const helpText = `Subcommands:
  (none)                         list all configured servers and their tools
  info <server> [<tool>]         show server or tool detail
  grep <pattern>                 search tool names by glob pattern
  call <server> <tool> [<json>]  invoke a tool (also: call <server>/<tool>)

JSON arguments for call default to standard input when omitted.`

func fail(err error) int {
	fmt.Fprintln(os.Stderr, errs.As(err).Format())
	return errs.ExitCode(err)
}

// app bundles everything a command handler needs.
type app struct {
	options   *Options
	settings  *config.Settings
	catalogue *config.Config
	connector *conn.Connector
}

func newApp(options *Options, settings *config.Settings) (*app, error) {
	catalogue, err := config.Load(options.Config)
	if err != nil {
		return nil, err
	}
	home, err := config.Home()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve credential root: %w", err)
	}
	connector := conn.NewConnector(catalogue, settings, store.New(home))
	connector.Sweep()
	return &app{
		options:   options,
		settings:  settings,
		catalogue: catalogue,
		connector: connector,
	}, nil
}

func dispatch(ctx context.Context, options *Options, rest []string, settings *config.Settings) error {
	if len(rest) == 0 {
		application, err := newApp(options, settings)
		if err != nil {
			return err
		}
		return application.cmdList(ctx)
	}
	head, tail := rest[0], rest[1:]
	switch head {
	case "info":
		if len(tail) < 1 {
			return errs.New(errs.MissingArgument, "info requires a server name").
				WithSuggestion("usage: mcpc info <server> [<tool>]")
		}
		if len(tail) > 2 {
			return errs.New(errs.TooManyArguments, "info accepts a server and an optional tool").
				WithSuggestion("usage: mcpc info <server> [<tool>]")
		}
		application, err := newApp(options, settings)
		if err != nil {
			return err
		}
		tool := ""
		if len(tail) == 2 {
			tool = tail[1]
		}
		return application.cmdInfo(ctx, tail[0], tool)
	case "grep":
		if len(tail) != 1 {
			if len(tail) == 0 {
				return errs.New(errs.MissingArgument, "grep requires a pattern").
					WithSuggestion("usage: mcpc grep <pattern>")
			}
			return errs.New(errs.TooManyArguments, "grep accepts exactly one pattern").
				WithSuggestion("quote the pattern if it contains spaces")
		}
		application, err := newApp(options, settings)
		if err != nil {
			return err
		}
		return application.cmdGrep(ctx, tail[0])
	case "call":
		target, err := parseCallTarget(tail)
		if err != nil {
			return err
		}
		application, err := newApp(options, settings)
		if err != nil {
			return err
		}
		return application.cmdCall(ctx, target)
	default:
		return unknownHead(options, head, tail)
	}
}

// unknownHead classifies a first token that is not a subcommand: a configured
// server name followed by arguments makes the invocation ambiguous (call vs
// info), a bare server name is an unknown subcommand pointing at info; anything
// else is an unknown subcommand with a recovery suggestion.
func unknownHead(options *Options, head string, tail []string) error {
	if catalogue, err := config.Load(options.Config); err == nil {
		if _, lookupErr := catalogue.Lookup(head); lookupErr == nil {
			if len(tail) >= 1 {
				quoted := head + " " + strings.Join(tail, " ")
				return errs.New(errs.AmbiguousCommand, "%q could be a tool call or an info request", quoted).
					WithSuggestion("use 'mcpc call %s %s' to invoke or 'mcpc info %s %s' to inspect",
						head, strings.Join(tail, " "), head, tail[0])
			}
			return errs.New(errs.UnknownSubcommand, "%q is a server, not a subcommand", head).
				WithSuggestion("use 'mcpc info %s' to inspect it", head)
		}
	}
	suggestion := suggestSubcommand(head)
	coded := errs.New(errs.UnknownSubcommand, "unknown subcommand %q", head)
	if suggestion != "" {
		return coded.WithSuggestion("did you mean %s?", suggestion)
	}
	return coded.WithSuggestion("run mcpc --help for the list of subcommands")
}
