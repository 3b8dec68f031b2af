// Command logvaultd ingests IR streams from JetStream into archives,
// demotes sealed segments to object storage, and serves metrics and
// health endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/blob"
	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/ingest"
	"github.com/gftdcojp/logvault/internal/lifecycle"
	"github.com/gftdcojp/logvault/internal/meta"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/tier"
	"github.com/gftdcojp/logvault/pkg/natsutil"
	"github.com/gftdcojp/logvault/pkg/s3util"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("logvaultd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nc, err := natsutil.Connect(cfg.NATS, logger.Named("nats"))
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("creating JetStream context: %w", err)
	}

	if err := os.MkdirAll(cfg.Archive.OutputDir, 0o750); err != nil {
		return fmt.Errorf("creating archive output dir: %w", err)
	}

	globalDB, err := meta.NewGlobalBoltStore(cfg.Metadata.GlobalPath, logger.Named("global_meta"))
	if err != nil {
		return fmt.Errorf("opening global metadata store: %w", err)
	}
	defer globalDB.Close()

	var s3Client *s3util.Client
	var blobStore *blob.Store
	if cfg.Tiering.Enabled {
		s3Client, err = s3util.NewClient(ctx, cfg.Tiering.Blob)
		if err != nil {
			return fmt.Errorf("creating S3 client: %w", err)
		}
		blobStore = blob.NewStore(s3Client.S3, cfg.Tiering.Blob.Bucket, cfg.Tiering.Blob, logger.Named("blob"))
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, sc := range cfg.Streams {
		sc := sc
		creationNum := uint64(i)
		pipeline := ingest.NewPipeline(ingest.PipelineConfig{
			JS:         js,
			Stream:     sc,
			ArchiveCfg: cfg.Archive,
			NewWriter: func() (*archive.Writer, error) {
				return archive.Open(archive.WriterConfig{
					OutputDir:                     cfg.Archive.OutputDir,
					CreationNum:                   creationNum,
					TargetSegmentUncompressedSize: uint64(cfg.Archive.TargetSegmentSize),
					CompressionLevel:              cfg.Archive.CompressionLevel,
					LogtypeDictMaxID:              cfg.Archive.LogtypeDictMaxID,
					VarDictMaxID:                  cfg.Archive.VarDictMaxID,
					GlobalDB:                      globalDB,
				}, logger.Named("archive").With(zap.String("stream", sc.Name)))
			},
			Logger: logger.Named("ingest").With(zap.String("stream", sc.Name)),
		})
		g.Go(func() error {
			return pipeline.Run(gctx)
		})
	}

	if cfg.Tiering.Enabled {
		ctrl := tier.NewController(cfg.Archive.OutputDir, blobStore, cfg.Tiering, logger.Named("tier"))
		manager := lifecycle.NewManager(ctrl, cfg.Tiering, logger.Named("lifecycle"))
		g.Go(func() error {
			return manager.Run(gctx)
		})
	}

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error {
			return metrics.RunServer(gctx, cfg.Observability.Metrics)
		})
	}
	if cfg.Observability.Health.Enabled {
		checker := metrics.NewHealthChecker(nc, globalDB, s3Client)
		g.Go(func() error {
			return metrics.RunHealthServer(gctx, cfg.Observability.Health, checker)
		})
	}

	logger.Info("logvaultd started",
		zap.String("version", version),
		zap.Int("streams", len(cfg.Streams)),
		zap.Bool("tiering", cfg.Tiering.Enabled),
	)

	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output != "" && cfg.Output != "stderr" {
		zapCfg.OutputPaths = []string{cfg.Output}
	}
	return zapCfg.Build()
}
