// Package dsmcli is the CLI command tree, grounded on the teacher's
// cmd/cprotocol/root.go: a root cobra.Command with persistent flags,
// zerolog bootstrap, and one factory function per subcommand.
package dsmcli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/config"
	dsmlog "github.com/terrylica/data-source-manager-sub003/internal/log"
	"github.com/terrylica/data-source-manager-sub003/internal/metrics"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
	"github.com/terrylica/data-source-manager-sub003/pkg/dsm"
)

// Execute builds and runs the root command.
func Execute(ctx context.Context) error {
	root := &cobra.Command{Use: "dsm", Short: "Data Source Manager: cached, failover-composed market data"}

	var (
		configPath string
		pretty     bool
	)
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (defaults baked in if empty)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", true, "human-readable log output instead of JSON")

	loadManager := func() (*dsm.Manager, error) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		return dsm.New(cfg), nil
	}

	root.AddCommand(getCmd(ctx, loadManager))
	root.AddCommand(cacheCmd(ctx, loadManager))
	root.AddCommand(healthCmd(ctx))
	root.AddCommand(serveCmd())

	dsmlog.Init(pretty)
	log.Info().Msg("dsm starting")
	return root.Execute()
}

func getCmd(ctx context.Context, loadManager func() (*dsm.Manager, error)) *cobra.Command {
	var (
		symbol     string
		marketType string
		chartType  string
		interval   string
		startStr   string
		endStr     string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "fetch a window of canonical bars, using cache/archive/live as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			start, err := time.Parse(time.RFC3339, startStr)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, endStr)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			req := dsm.Request{
				MarketType: bar.MarketType(marketType),
				ChartType:  bar.ChartType(chartType),
				Symbol:     symbol,
				Interval:   timeutil.Interval(interval),
				StartUs:    timeutil.ToMicros(start),
				EndUs:      timeutil.ToMicros(end),
				ForceRefresh: force,
			}
			frame, prov, err := mgr.Get(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Frame      dsm.Frame      `json:"frame"`
				Provenance dsm.Provenance `json:"provenance"`
			}{frame, prov})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "trading symbol, e.g. BTCUSDT")
	cmd.Flags().StringVar(&marketType, "market", string(bar.MarketSpot), "SPOT|FUTURES_USDT|FUTURES_COIN")
	cmd.Flags().StringVar(&chartType, "chart", string(bar.ChartKlines), "KLINES|FUNDING_RATE")
	cmd.Flags().StringVar(&interval, "interval", "1m", "bar interval, e.g. 1m, 1h, 1d")
	cmd.Flags().StringVar(&startStr, "start", "", "RFC3339 window start")
	cmd.Flags().StringVar(&endStr, "end", "", "RFC3339 window end")
	cmd.Flags().BoolVar(&force, "force-refresh", false, "bypass cache reads for this call")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func cacheCmd(ctx context.Context, loadManager func() (*dsm.Manager, error)) *cobra.Command {
	root := &cobra.Command{Use: "cache", Short: "cache maintenance"}

	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "report entry count, disk usage, and day range held by the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			stats, err := mgr.CacheStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("entries=%d bytes=%d oldest=%s newest=%s\n", stats.Entries, stats.TotalBytes, stats.OldestDay, stats.NewestDay)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "verify every cached day's digest against its file",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			report, err := mgr.ValidateCache(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("checked=%d missing=%d corrupt=%d\n", report.Checked, len(report.Missing), len(report.Corrupt))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "repair",
		Short: "drop missing/corrupt cache entries so they refetch cleanly",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			report, err := mgr.RepairCache(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("repaired: removed %d missing, %d corrupt entries\n", len(report.Missing), len(report.Corrupt))
			return nil
		},
	})

	return root
}

func healthCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{Use: "health", RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("health OK")
		return nil
	}}
}

// serveCmd exposes the Prometheus metrics endpoint described in
// SPEC_FULL.md §6, grounded on the teacher's internal/metrics/collector.go
// usage of prometheus/client_golang.
func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "serve the Prometheus /metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			metrics.Register(reg)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Str("addr", addr).Msg("serving metrics")
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	return cmd
}
