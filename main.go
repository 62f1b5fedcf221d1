package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"conconi/internal/config"
	"conconi/internal/report"
)

// errUsage signals that usage was already printed
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, report.Error(err))
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	name, rest := args[0], args[1:]

	switch name {
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	case "init":
		return cmdInit(stdout)
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		dir, _ := config.GetConfigDir()
		return fmt.Errorf("invalid config (%s/config.json): %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: newLogger(cfg.Log, stderr), stdout: stdout}
	defer a.close()

	return cmd.run(ctx, a, rest)
}

// newLogger builds the process logger from the log settings
func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: conconi <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "  %-14s %s\n", "init", "write an example config file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'conconi <command> -h' for command flags.")
}
