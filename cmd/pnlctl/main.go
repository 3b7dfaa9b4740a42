// Package main provides pnlctl, a command line client that computes wallet
// PnL and manages price ingestion without going through the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wallet-pnl/internal/adapter"
	"github.com/wallet-pnl/internal/app"
	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/ingest"
	"github.com/wallet-pnl/internal/service"
)

const defaultTimeout = 2 * time.Minute

var timeout time.Duration

var computeCommand = &cli.Command{
	Name:      "compute",
	Usage:     "computes the hourly PnL of a wallet",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "address",
			Usage: "the wallet address",
		},
		&cli.StringFlag{
			Name:  "start",
			Usage: "range start, YYYY-MM-DD HH:MM:SS (default: now minus the lookback)",
		},
		&cli.StringFlag{
			Name:  "end",
			Usage: "range end, YYYY-MM-DD HH:MM:SS (default: now)",
		},
		&cli.BoolFlag{
			Name:  "detail",
			Usage: "include per-token prices, holdings and value",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   formatJSON,
			Usage:   "output format: json or yaml",
		},
	},
	Action: compute,
}

var ingestCommand = &cli.Command{
	Name:   "ingest",
	Usage:  "runs one price ingestion pass",
	Action: runIngest,
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "shows the last recorded ingestion run",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "history",
			Usage: "show the last N runs, newest first, instead of only the latest",
		},
	},
	Action: ingestStatus,
}

func compute(c *cli.Context) error {
	address := c.String("address")
	if address == "" {
		address = c.Args().First()
	}
	if address == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	app.InitLogging(cfg)

	prices, err := app.OpenPrices(cfg)
	if err != nil {
		return err
	}
	defer prices.Close()

	svc := service.NewPnLService(adapter.NewAlliumClient(&cfg.Allium, nil), prices.Backend, &cfg.PnL)

	input := &service.ComputePnLInput{
		Address: address,
		Detail:  c.Bool("detail"),
	}
	if c.IsSet("start") {
		v := c.String("start")
		input.StartTime = &v
	}
	if c.IsSet("end") {
		v := c.String("end")
		input.EndTime = &v
	}

	ctx, cancel := context.WithTimeout(c.Context, timeout)
	defer cancel()

	result, err := svc.ComputePnL(ctx, input)
	if err != nil {
		return err
	}

	return writeRows(c.App.Writer, result.Rows, c.String("output"))
}

func runIngest(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.InitLogging(cfg)

	prices, err := app.OpenPrices(cfg)
	if err != nil {
		return err
	}
	defer prices.Close()

	opts, err := ingest.OptionsFromConfig(&cfg.Ingest)
	if err != nil {
		return err
	}

	var state ingest.RunState
	store, closeState, err := app.OpenIngestState(cfg)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without ingest lock")
	} else {
		defer closeState()
		state = store
	}

	ctx, cancel := context.WithTimeout(c.Context, timeout)
	defer cancel()

	ingester := ingest.NewIngester(adapter.NewCoinGeckoClient(&cfg.CoinGecko, nil), prices.Backend, state, opts)
	summary, err := ingester.Run(ctx)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, summary)
}

func ingestStatus(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	app.InitLogging(cfg)

	store, closeState, err := app.OpenIngestState(cfg)
	if err != nil {
		return err
	}
	defer closeState()

	if n := c.Int("history"); n > 0 {
		runs, err := store.RecentRuns(c.Context, n)
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, runs)
	}

	summary, err := store.LastRun(c.Context)
	if err != nil {
		return err
	}
	if summary == nil {
		return errors.New("no ingestion run recorded")
	}
	return writeJSON(c.App.Writer, summary)
}

func main() {
	a := cli.NewApp()
	a.Name = "pnlctl"
	a.Usage = "command line interface for the wallet PnL service"
	a.EnableBashCompletion = true
	a.Flags = []cli.Flag{
		&cli.DurationFlag{
			Name:        "timeout",
			Value:       defaultTimeout,
			Usage:       "the context timeout for each command",
			Destination: &timeout,
		},
	}
	a.Commands = []*cli.Command{
		computeCommand,
		ingestCommand,
		statusCommand,
	}

	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
