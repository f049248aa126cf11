package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/songzhibin97/walletopt/internal/configs"
	"github.com/songzhibin97/walletopt/internal/data/collector"
	"github.com/songzhibin97/walletopt/internal/data/collector/defillama"
	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/server"
	"github.com/songzhibin97/walletopt/internal/utils/logger"
)

var flagconf string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "walletopt",
		Short:         "Solana wallet asset optimization service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagconf, "conf", "", "config path, eg: --conf walletopt.yaml")

	root.AddCommand(newServeCommand(), newIngestCommand(), newOptimizeCommand())
	return root
}

func load() (*configs.Config, *slog.Logger, error) {
	cfg, err := configs.Load(flagconf)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)
	log.Debug("loaded config", "driver", cfg.Database.Driver, "oracle", cfg.Oracle.Provider, "cache", cfg.Cache.Driver)
	return cfg, log, nil
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the optimization HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			router := server.NewRouter(a.service, a.metrics, log)
			return server.Run(cmd.Context(), cfg.Server.Addr, router, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func newIngestCommand() *cobra.Command {
	var (
		filter   collector.IngestFilter
		snapshot string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Refresh the yield store from the DefiLlama pools feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			applyProxy(cfg, log)

			flags := cmd.Flags()
			if !flags.Changed("chain") {
				filter.Chain = cfg.Ingest.Chain
			}
			if !flags.Changed("project") {
				filter.Project = cfg.Ingest.Project
			}
			if !flags.Changed("min-tvl") {
				filter.MinTVL = cfg.Ingest.MinTVL
			}
			if !flags.Changed("min-apy") {
				filter.MinAPY = cfg.Ingest.MinAPY
			}
			if !flags.Changed("snapshot") {
				snapshot = cfg.Ingest.Snapshot
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ingester := collector.NewYieldIngester(defillama.NewFeed(cfg.Ingest.FeedURL), store, log)
			n, err := ingester.Run(cmd.Context(), filter, snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d pools into %s\n", n, store)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Chain, "chain", "", "only keep pools on this chain")
	cmd.Flags().StringVar(&filter.Project, "project", "", "only keep projects containing this string")
	cmd.Flags().Float64Var(&filter.MinTVL, "min-tvl", 0, "minimum pool TVL in USD")
	cmd.Flags().Float64Var(&filter.MinAPY, "min-apy", 0, "minimum pool APY in percent")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "also write the filtered pools to this JSON file")
	return cmd
}

func newOptimizeCommand() *cobra.Command {
	var (
		input         string
		userPublicKey string
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the pipeline once over a JSON holdings file and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			raw, err := readHoldings(input)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var out any
			if userPublicKey != "" {
				out, err = a.service.OptimizeWithTx(cmd.Context(), raw, userPublicKey)
			} else {
				out, err = a.service.Optimize(cmd.Context(), raw)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "holdings JSON file (array or {\"assets\": [...]}), - for stdin")
	cmd.Flags().StringVar(&userPublicKey, "user", "", "signer public key; also quotes actions and builds transactions")
	return cmd
}

// readHoldings accepts either a bare array or an {"assets": [...]} request body.
func readHoldings(path string) ([]models.RawHolding, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" || path == "" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings: %w", err)
	}

	var raw []models.RawHolding
	if err := json.Unmarshal(b, &raw); err == nil {
		return raw, nil
	}
	var req server.OptimizeRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("failed to parse holdings: %w", err)
	}
	return req.Assets, nil
}
