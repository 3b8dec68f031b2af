package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS          NATSConfig          `yaml:"nats"`
	Streams       []StreamConfig      `yaml:"streams"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Tiering       TieringConfig       `yaml:"tiering"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type NATSConfig struct {
	URL             string    `yaml:"url"`
	CredentialsFile string    `yaml:"credentials_file"`
	NKeySeedFile    string    `yaml:"nkey_seed_file"`
	TLS             TLSConfig `yaml:"tls"`
	ConnectionName  string    `yaml:"connection_name"`
	MaxReconnects   int       `yaml:"max_reconnects"`
	ReconnectWait   Duration  `yaml:"reconnect_wait"`
}

type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StreamConfig describes one JetStream stream carrying IR payloads from
// remote producers.
type StreamConfig struct {
	Name         string   `yaml:"name"`
	Subjects     []string `yaml:"subjects"`
	ConsumerName string   `yaml:"consumer_name"`
	FetchBatch   int      `yaml:"fetch_batch"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
	// GroupID tags files ingested from this stream.
	GroupID int64 `yaml:"group_id"`
}

// ArchiveConfig controls how archives are written.
type ArchiveConfig struct {
	OutputDir         string   `yaml:"output_dir"`
	TargetSegmentSize ByteSize `yaml:"target_segment_size"`
	TargetArchiveSize ByteSize `yaml:"target_archive_size"`
	CompressionLevel  int      `yaml:"compression_level"`
	LogtypeDictMaxID  uint64   `yaml:"logtype_dict_max_id"`
	VarDictMaxID      uint64   `yaml:"var_dict_max_id"`
	ReadBufferSize    ByteSize `yaml:"read_buffer_size"`
}

// TieringConfig controls demotion of sealed segments to object storage.
type TieringConfig struct {
	Enabled      bool       `yaml:"enabled"`
	EvalInterval Duration   `yaml:"eval_interval"`
	DemoteAfter  Duration   `yaml:"demote_after"`
	Blob         BlobConfig `yaml:"blob"`
}

type BlobConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	StorageClass    string `yaml:"storage_class"`
}

type MetadataConfig struct {
	// GlobalPath is the metadata database shared across archives.
	GlobalPath string `yaml:"global_path"`
	NoSync     bool   `yaml:"no_sync"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}

	if len(c.Streams) == 0 {
		return fmt.Errorf("at least one stream must be configured")
	}
	for i, sc := range c.Streams {
		if sc.Name == "" {
			return fmt.Errorf("streams[%d].name is required", i)
		}
	}

	if c.Archive.OutputDir == "" {
		return fmt.Errorf("archive.output_dir is required")
	}
	if c.Archive.TargetSegmentSize < 256*1024 {
		return fmt.Errorf("archive.target_segment_size must be at least 256KB, got %d", c.Archive.TargetSegmentSize)
	}
	if c.Archive.CompressionLevel < 1 || c.Archive.CompressionLevel > 22 {
		return fmt.Errorf("archive.compression_level must be between 1 and 22, got %d", c.Archive.CompressionLevel)
	}

	if c.Tiering.Enabled {
		if c.Tiering.Blob.Endpoint == "" {
			return fmt.Errorf("tiering requires blob.endpoint")
		}
		if c.Tiering.Blob.Bucket == "" {
			return fmt.Errorf("tiering requires blob.bucket")
		}
		if c.Tiering.DemoteAfter <= 0 {
			return fmt.Errorf("tiering.demote_after must be > 0")
		}
	}

	if c.Metadata.GlobalPath == "" {
		return fmt.Errorf("metadata.global_path is required")
	}

	return nil
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		// Try as integer
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
