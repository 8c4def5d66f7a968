package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolledger/internal/config"
	"poolledger/internal/journal"
	"poolledger/internal/ledger"
	"poolledger/internal/server"
	"poolledger/internal/storage/postgres"
	"poolledger/internal/transfer"
)

func main() {
	root := &cobra.Command{
		Use:          "poolledger",
		Short:        "Two-asset constant-product pool ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool ledger HTTP service",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for snapshots (optional)")
	serveCmd.Flags().String("journal", "./data/operations.jsonl", "operation journal path")
	serveCmd.Flags().Bool("journal-enabled", true, "enable the operation journal")
	serveCmd.Flags().String("custody", "0x00000000000000000000000000000000000000ff", "custody account address")
	serveCmd.Flags().StringSlice("seed-balance", nil, "seed balances, asset:holder:amount (comma-separated)")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Evaluate swap output and price offline",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount-in", "", "input amount")
	quoteCmd.Flags().String("reserve-in", "", "input-side reserve")
	quoteCmd.Flags().String("reserve-out", "", "output-side reserve")

	root.AddCommand(quoteCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild pool state from an operation journal",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("journal", "./data/operations.jsonl", "operation journal path")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN for rebuilt snapshots (optional)")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !common.IsHexAddress(cfg.Custody) {
		return fmt.Errorf("invalid custody address %q", cfg.Custody)
	}

	bank := transfer.NewBank(common.HexToAddress(cfg.Custody))
	if err := transfer.ParseSeedBalances(bank, cfg.SeedBalances); err != nil {
		return err
	}

	var opJournal *journal.Journal
	if cfg.JournalEnabled {
		opJournal, err = journal.Open(cfg.Journal)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *postgres.Store
	var opStore server.OperationStore
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		opStore = store
	}

	poolLedger := ledger.New(bank, logger)
	srv := server.New(poolLedger, opJournal, opStore, logger)

	// Without a journal the store is the only sequence authority; resume
	// past its highest stored operation.
	if opJournal == nil && store != nil {
		seq, err := store.MaxOperationSeq(ctx)
		if err != nil {
			return fmt.Errorf("resume operation sequence: %w", err)
		}
		srv.SeedSequence(seq)
	}

	logger.Info("pool ledger start",
		zap.String("listen", cfg.ListenAddr),
		zap.Bool("journal_enabled", cfg.JournalEnabled),
		zap.String("journal", cfg.Journal),
		zap.Bool("postgres", store != nil),
		zap.Int("seed_balances", len(cfg.SeedBalances)),
	)

	srv.Start(cfg.ListenAddr)
	<-ctx.Done()

	return srv.Shutdown(context.Background())
}

func runQuote(cmd *cobra.Command, _ []string) error {
	amountIn, err := flagAmount(cmd, "amount-in")
	if err != nil {
		return err
	}
	reserveIn, err := flagAmount(cmd, "reserve-in")
	if err != nil {
		return err
	}
	reserveOut, err := flagAmount(cmd, "reserve-out")
	if err != nil {
		return err
	}

	amountOut, err := ledger.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return err
	}

	price, err := ledger.PriceOf(reserveIn, reserveOut)
	if err != nil {
		return err
	}

	fmt.Printf("amount_out: %s\n", amountOut)
	fmt.Printf("price: %s (%s)\n", price, decimal.NewFromBigInt(price, -ledger.PriceDecimals))
	return nil
}

func runReplay(cmd *cobra.Command, _ []string) error {
	journalPath, _ := cmd.Flags().GetString("journal")
	pgDSN, _ := cmd.Flags().GetString("pg-dsn")
	logLevel, _ := cmd.Flags().GetString("log-level")

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	records, err := journal.ReadAll(journalPath)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	poolLedger := ledger.New(transfer.Unlimited{}, logger)
	for _, record := range records {
		if err := poolLedger.ReplayOperation(record); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	snapshots := poolLedger.Snapshots()
	logger.Info("journal replayed",
		zap.Int("operations", len(records)),
		zap.Int("pools", len(snapshots)),
	)

	if pgDSN == "" {
		for _, snapshot := range snapshots {
			fmt.Printf("%s %s/%s reserves=(%s, %s) shares=%s\n",
				snapshot.Pair, snapshot.Asset0, snapshot.Asset1,
				snapshot.Reserve0, snapshot.Reserve1, snapshot.TotalShares)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, pgDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.UpsertPoolStates(ctx, snapshots); err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}
	if err := store.InsertOperations(ctx, records); err != nil {
		return fmt.Errorf("store operations: %w", err)
	}

	logger.Info("snapshots stored", zap.Int("pools", len(snapshots)))
	return nil
}

func flagAmount(cmd *cobra.Command, name string) (*big.Int, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", name, value)
	}
	return amount, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
