// Command cuedeck is the CLI entrypoint: a thin wrapper wiring config,
// the engine, and the MCP server together.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cuedeck/cue/internal/doctor"
	"github.com/cuedeck/cue/internal/engine"
	"github.com/cuedeck/cue/internal/errs"
	"github.com/cuedeck/cue/internal/mcpsrv"
	"github.com/cuedeck/cue/internal/migrate"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitConfigError = 101
	exitTerminated  = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	app := &cli.App{
		Name:  "cuedeck",
		Usage: "context engine for AI coding agents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "workspace root (default: current directory)",
				Value: ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the MCP JSON-RPC server over stdio",
				Action: func(c *cli.Context) error {
					return serve(c.String("root"))
				},
			},
			{
				Name:  "doctor",
				Usage: "run workspace health checks",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "fix", Usage: "apply fixable repairs"},
					&cli.BoolFlag{Name: "normalize-tags", Usage: "lowercase tags during repair"},
				},
				Action: func(c *cli.Context) error {
					return runDoctor(c.String("root"), c.Bool("fix"), c.Bool("normalize-tags"))
				},
			},
			{
				Name:  "migrate",
				Usage: "migrate the legacy cache blob into the SQLite metadata store",
				Action: func(c *cli.Context) error {
					return migrate.Run(context.Background(), c.String("root"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return exitTerminated
		}
		fmt.Fprintln(os.Stderr, "cuedeck:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	var cfgErr *errs.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitError
}

func serve(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	e, err := engine.New(abs)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.StartWatching(); err != nil {
		return err
	}
	defer e.StopWatching()

	srv, err := mcpsrv.New(e)
	if err != nil {
		return err
	}
	return srv.Start(context.Background())
}

func runDoctor(root string, fix, normalizeTags bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	e, err := engine.New(abs)
	if err != nil {
		return err
	}
	defer e.Close()

	report := doctor.Run(e)
	for _, check := range report.Checks {
		fmt.Printf("[%s] %s: %s\n", check.Status, check.Name, check.Message)
	}

	if fix {
		fixed := doctor.RunRepairs(abs, report, normalizeTags)
		for _, f := range fixed {
			fmt.Println("fixed:", f)
		}
	}

	if !report.Healthy {
		return errors.New("workspace is unhealthy")
	}
	return nil
}
