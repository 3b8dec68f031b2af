package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ConnectionName: "logvaultd",
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		Archive: ArchiveConfig{
			OutputDir:         "/var/lib/logvault/archives",
			TargetSegmentSize: ByteSize(64 * 1024 * 1024),
			TargetArchiveSize: ByteSize(1024 * 1024 * 1024),
			CompressionLevel:  3,
			ReadBufferSize:    ByteSize(64 * 1024),
		},
		Tiering: TieringConfig{
			Enabled:      false,
			EvalInterval: Duration(1 * time.Minute),
			DemoteAfter:  Duration(24 * time.Hour),
		},
		Metadata: MetadataConfig{
			GlobalPath: "/var/lib/logvault/global.db",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       true,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
	}
}
