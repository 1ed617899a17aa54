package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/michaelpento.lv/omniarb/cmd/bot"
	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/execution"
	"github.com/michaelpento.lv/omniarb/gas"
	"github.com/michaelpento.lv/omniarb/strategies/multihop"
	"github.com/michaelpento.lv/omniarb/utils"
	"github.com/michaelpento.lv/omniarb/utils/metrics"
	"github.com/michaelpento.lv/omniarb/utils/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanOnce     bool
	scanSimulate bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the arbitrage scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		if scanSimulate {
			cfg.Execution.Kind = config.ExecutionPaper
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runScanner(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanOnce, "once", false, "run a single scan cycle and exit")
	scanCmd.Flags().BoolVar(&scanSimulate, "simulate", false, "settle allocations on paper instead of the configured executor")
}

// loadConfig reads the config file, or the built-in defaults when no file is
// given and none exists at the default location.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil || path != "" || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	cfg = config.DefaultConfig()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.ValidateConfig()
}

func runScanner(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	scanMetrics := metrics.NewScanMetrics(reg)

	var client *ethclient.Client
	if needsRPC(cfg) {
		c, err := ethclient.DialContext(ctx, cfg.Chain.RPCEndpoint)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Chain.RPCEndpoint, err)
		}
		defer c.Close()
		client = c
	}

	book, err := bot.BuildTokenBook(cfg)
	if err != nil {
		return err
	}

	var caller bind.ContractCaller
	if client != nil {
		caller = client
	}
	registry, err := bot.BuildRegistry(cfg, caller)
	if err != nil {
		return err
	}

	var gasCoster multihop.GasCoster
	native := common.HexToAddress(cfg.Chain.NativeToken)
	switch {
	case client != nil:
		estimator := gas.NewEstimator(client, cfg.Chain.GasUpdateInterval.Duration, log.Named("gas"))
		if err := estimator.Update(ctx); err != nil {
			log.Warn("Initial gas price update failed", zap.Error(err))
		}
		go estimator.Run(ctx)
		gasCoster = gas.NewPricer(estimator, book, native)
	case cfg.Chain.GasPriceGwei > 0:
		gasCoster = gas.NewPricer(gas.NewFixedPrice(cfg.Chain.GasPriceGwei), book, native)
	}

	executor, closeExecutor, err := newExecutor(ctx, cfg.Execution, log)
	if err != nil {
		return err
	}
	defer closeExecutor()

	if cfg.Metrics.Enabled {
		sys, err := monitor.NewSystemMonitor(ctx, reg, cfg.Scan.Interval.Duration, log.Named("monitor"))
		if err != nil {
			return err
		}
		defer sys.Cleanup()

		go func() {
			if err := monitor.Serve(ctx, cfg.Metrics.ListenAddr, reg, log.Named("metrics")); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	scanner, err := bot.New(cfg, bot.Deps{
		Registry: registry,
		Book:     book,
		Gas:      gasCoster,
		Executor: executor,
		Metrics:  scanMetrics,
	}, log)
	if err != nil {
		return err
	}

	if scanOnce {
		report, err := scanner.RunCycle(ctx)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	}

	if err := scanner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	scanner.Stop()
	return nil
}

func needsRPC(cfg *config.Config) bool {
	for _, v := range cfg.Venues {
		if v.Kind != config.VenueStatic {
			return true
		}
	}
	return false
}

func newExecutor(ctx context.Context, cfg config.ExecutionConfig, log *zap.Logger) (execution.Executor, func(), error) {
	noop := func() {}
	switch cfg.Kind {
	case config.ExecutionPaper:
		return execution.NewPaperExecutor(log.Named("paper")), noop, nil
	case config.ExecutionRedis:
		rdb, err := execution.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, noop, err
		}
		pub := execution.NewRedisPublisher(rdb, cfg.RedisChannel, log.Named("redis"))
		return pub, func() {
			if err := pub.Close(); err != nil {
				log.Warn("Failed to close redis client", zap.Error(err))
			}
		}, nil
	}
	return execution.NewLogExecutor(log.Named("executor")), noop, nil
}

func printReport(r *bot.CycleReport) {
	fmt.Fprintf(os.Stdout, "cycle %s: %d opportunities, %d routes, %d ranked, %d allocations ($%s)\n",
		r.ID, len(r.Opportunities), len(r.Routes), len(r.Ranked), len(r.Allocations), r.Allocated.StringFixed(2))
	if r.TimedOut {
		fmt.Fprintln(os.Stdout, "  deadline exceeded, results dropped")
	}
	if r.BreakerOpen {
		fmt.Fprintln(os.Stdout, "  circuit breaker open, nothing executed")
	}
	for i, a := range r.Allocations {
		s := a.Signal
		fmt.Fprintf(os.Stdout, "  #%d %-11s %-60s $%s  net $%s  conf %.2f  risk %.3f\n",
			i+1, s.Kind, s.SourceID(), a.Amount.StringFixed(2), s.NetProfit.StringFixed(2), s.Confidence, s.RiskScore)
	}
}
