// PriceAggregator collects product prices from many online stores.
//
// Usage:
//
//	priceaggregator run --types Notebook,VideoCard
//	priceaggregator serve --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"PriceAggregator/internal/app"
	"PriceAggregator/internal/config"
	"PriceAggregator/internal/logging"
	"PriceAggregator/internal/usecase"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("priceaggregator failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "priceaggregator",
		Usage:   "Aggregate product prices across online stores",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration (default $PRICE_AGGREGATOR_CONFIG)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PRICEAGG_LOG_LEVEL"},
			},
			&cli.StringSliceFlag{
				Name:    "types",
				Aliases: []string{"t"},
				Usage:   "Product types to aggregate; empty means every supported type",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Execution mode (concurrent, sequential)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum in-flight store requests in concurrent mode",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one aggregation and print the JSON report",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := build(ctx, c)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			run, runErr := application.RunOnce(ctx)
			report, err := usecase.BuildReportJSON(run)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(report))
			return runErr
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run aggregations on the configured interval until interrupted",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := build(ctx, c)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			return application.Serve(ctx)
		},
	}
}

func build(ctx context.Context, c *cli.Context) (*app.Application, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("types") {
		cfg.Aggregation.Types = c.StringSlice("types")
	}
	if c.IsSet("mode") {
		cfg.Aggregation.Mode = c.String("mode")
	}
	if c.IsSet("concurrency") {
		cfg.Aggregation.Concurrency = c.Int("concurrency")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logOut := c.App.ErrWriter
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := logging.NewWithWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	return app.New(ctx, cfg, logger)
}
