package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
nats:
  url: nats://broker:4222
streams:
  - name: LOGS
    subjects: ["logs.>"]
    consumer_name: logvault
    fetch_batch: 128
    fetch_timeout: 10s
archive:
  output_dir: /data/archives
  target_segment_size: 32MB
  compression_level: 6
metadata:
  global_path: /data/global.db
tiering:
  enabled: true
  demote_after: 48h
  blob:
    endpoint: http://minio:9000
    bucket: logvault
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Archive.TargetSegmentSize != 32*1024*1024 {
		t.Errorf("target segment size = %d", cfg.Archive.TargetSegmentSize)
	}
	if cfg.Archive.CompressionLevel != 6 {
		t.Errorf("compression level = %d", cfg.Archive.CompressionLevel)
	}
	if cfg.Streams[0].FetchTimeout.Duration() != 10*time.Second {
		t.Errorf("fetch timeout = %v", cfg.Streams[0].FetchTimeout.Duration())
	}
	if cfg.Tiering.DemoteAfter.Duration() != 48*time.Hour {
		t.Errorf("demote after = %v", cfg.Tiering.DemoteAfter.Duration())
	}
	// Defaults survive partial configs
	if !cfg.Observability.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	bad := []string{
		"streams: [{name: A}]\narchive: {output_dir: /x}\nmetadata: {global_path: /g}\nnats: {url: \"\"}",
		"nats: {url: n}\narchive: {output_dir: /x}\nmetadata: {global_path: /g}",
		"nats: {url: n}\nstreams: [{name: A}]\nmetadata: {global_path: /g}\narchive: {output_dir: \"\"}",
		"nats: {url: n}\nstreams: [{name: A}]\narchive: {output_dir: /x}\nmetadata: {global_path: \"\"}",
		"nats: {url: n}\nstreams: [{name: A}]\narchive: {output_dir: /x, compression_level: 50}\nmetadata: {global_path: /g}",
		"nats: {url: n}\nstreams: [{name: A}]\narchive: {output_dir: /x}\nmetadata: {global_path: /g}\ntiering: {enabled: true, demote_after: 1h}",
	}
	for i, body := range bad {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("config %d should fail validation", i)
		}
	}
}

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512B", 512},
		{"4KB", 4096},
		{"8MB", 8 * 1024 * 1024},
		{"2GB", 2 * 1024 * 1024 * 1024},
	}
	for _, c := range cases {
		got, err := parseByteSize(c.in)
		if err != nil {
			t.Errorf("parseByteSize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := parseByteSize("oops"); err == nil {
		t.Error("parseByteSize should reject garbage")
	}
}
