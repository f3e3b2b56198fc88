// Command folio serves the portfolio chat backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZanzyTHEbar/folio/folio/app"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "folio:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("folio", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a config file")
	flags.String("addr", "", "HTTP listen address")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("ledger", "", "pending call ledger backend (libsql, redis, memory)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithFlags(*configPath, flags, map[string]string{
		"addr":      "server.addr",
		"log-level": "log.level",
		"ledger":    "ledger.backend",
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if config.WatchConfig(*configPath, func(next *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring invalid config change")
			return
		}
		logging.ApplyLevel(logger, next.Log)
	}) {
		logger.Debug().Msg("watching config for changes")
	}

	return a.Server.Run(ctx)
}
