package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edgeandnode/block-oracle/oracle"
)

// Environment variable holding an optional log level directive that
// overrides the --log-level flag, in the spirit of RUST_LOG.
const logEnvVar = "BLOCK_ORACLE_LOG"

func main() {
	app := &cli.App{
		Name:  "block-oracle",
		Usage: "Observes indexed chains and submits epoch block numbers to the DataEdge contract",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "owner-private-key",
				Usage:    "The private key for the oracle owner account, hex encoded",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Only show log messages at or above this level",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "subgraph-url",
				Usage: "The epoch subgraph endpoint",
			},
			&cli.StringFlag{
				Name:  "config-file",
				Usage: "The filepath of the TOML configuration file",
				Value: "config.toml",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	opts := oracle.CliOptions{
		OwnerPrivateKey: c.String("owner-private-key"),
		LogLevel:        c.String("log-level"),
		SubgraphURL:     c.String("subgraph-url"),
		ConfigFile:      c.String("config-file"),
	}
	if directive := os.Getenv(logEnvVar); directive != "" {
		opts.LogLevel = directive
	}

	config, err := oracle.LoadConfig(opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad configuration: %s", err), 1)
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad configuration: %s", err), 1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("the block oracle is starting", zap.String("log_level", config.LogLevel.String()))

	metrics := oracle.NewMetrics()
	ctrlc := oracle.InitCtrlcHandler(logger)

	o, err := oracle.NewOracle(config, logger, metrics)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bad configuration: %s", err), 1)
	}
	defer o.Close()

	logger.Info("entering the main polling loop, press CTRL+C to stop")
	ctx := context.Background()
	for !ctrlc.Poll() {
		if err := o.Run(ctx); err != nil {
			flow := oracle.Classify(err)
			if flow.Break {
				logger.Error("an unrecoverable error occurred, exiting now", zap.Error(err))
				return cli.Exit("", 1)
			}
			logger.Error("an error interrupted the last polling iteration",
				zap.Error(err),
				zap.Duration("cooling_off", flow.Wait),
			)
			metrics.ErrorsTotal.WithLabelValues(fmt.Sprintf("%T", err)).Inc()
			// Extra cooldown on top of the standard sleep below.
			sleep(ctrlc, flow.Wait)
		}

		logger.Info("going to sleep before the next polling iteration",
			zap.Duration("sleep", config.ProtocolChain.PollingInterval),
		)
		sleep(ctrlc, config.ProtocolChain.PollingInterval)
	}
	logger.Info("shutting down")
	return nil
}

// sleep waits for d but keeps checking the interrupt flag so shutdown is not
// delayed by a full polling interval.
func sleep(ctrlc *oracle.CtrlcHandler, d time.Duration) {
	const step = time.Second
	for waited := time.Duration(0); waited < d && !ctrlc.Poll(); waited += step {
		remaining := d - waited
		if remaining > step {
			remaining = step
		}
		time.Sleep(remaining)
	}
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}
