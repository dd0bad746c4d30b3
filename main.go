package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "leaddash",
	Short: "Lead funnel dashboard for the Joseph Mews lead tracker",
	Long: `leaddash reads the "Lead Tracker" worksheet, normalizes every lead and
serves funnel metrics as admin, client and per-agent views.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the components shared by serve and report
type app struct {
	cfg       *config.Config
	location  *time.Location
	snapshots *service.SnapshotService
	cleanup   func()
}

// newApp loads configuration, initializes logging and wires the data path:
// row source (optionally behind the redis cache) → normalizer → snapshots
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOut,
	})
	logger.Info(ctx, "configuration loaded", "path", configPath, "source", cfg.Source.Kind)

	loc, err := time.LoadLocation(cfg.Dashboard.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid dashboard timezone %q: %w", cfg.Dashboard.Timezone, err)
	}

	source, cleanup, err := newRowSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	snapCfg := service.SnapshotConfig{
		DefaultSpreadsheet: cfg.Source.Spreadsheet,
		Worksheet:          cfg.Source.Worksheet,
		TTL:                time.Duration(cfg.Refresh.TTLSeconds) * time.Second,
		MaxSnapshots:       cfg.Store.MaxSnapshots,
	}
	if cfg.Source.Kind == config.SourceGoogle {
		snapCfg.KeyFunc = service.SpreadsheetKey
	}
	snapshots := service.NewSnapshotService(source, service.NewNormalizer(loc, cfg.Dashboard.DateLayouts), snapCfg)

	return &app{cfg: cfg, location: loc, snapshots: snapshots, cleanup: cleanup}, nil
}

func newRowSource(ctx context.Context, cfg *config.Config) (service.RowSource, func(), error) {
	var source service.RowSource
	switch cfg.Source.Kind {
	case config.SourceGoogle:
		sheets, err := service.NewSheetsSource(ctx, &cfg.Google)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		source = sheets

	case config.SourceFile:
		source = service.NewWorkbookSource(service.FileOpener{})

	case config.SourceMinio:
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			return nil, nil, err
		}
		if err := minioSvc.CheckBucket(ctx); err != nil {
			// the bucket may come up later; requests report the failure
			logger.Warn(ctx, "workbook bucket unavailable", "bucket", cfg.Minio.Bucket, "error", err)
		}
		source = service.NewWorkbookSource(minioSvc)

	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	cleanup := func() {}
	if cfg.Redis.Addr != "" {
		cache := service.NewRedisRowCache(&cfg.Redis)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis unavailable, row cache disabled", "addr", cfg.Redis.Addr, "error", err)
			cache.Close()
		} else {
			logger.Info(ctx, "row cache enabled", "addr", cfg.Redis.Addr)
			source = service.NewCachedSource(source, cache, time.Duration(cfg.Refresh.TTLSeconds)*time.Second)
			cleanup = func() { cache.Close() }
		}
	}
	return source, cleanup, nil
}
