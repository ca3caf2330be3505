package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.True(t, cfg.Sanitizer.PreserveInternalIPs)
	assert.Equal(t, 60, cfg.Analyzer.Thresholds.HeaderOnlyCutoff)
	assert.Equal(t, 1400, cfg.Analyzer.Thresholds.OversizedFrame)
	assert.Equal(t, 50, cfg.Analyzer.Limits.TCPResets)
	assert.Equal(t, 4*datasize.GB, cfg.Analyzer.MaxCaptureSize)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
sanitizer:
  preserve_private_ips: false
  sensitive_headers: ["x-*"]
analyzer:
  num_workers: 2
  max_capture_size: 512MB
  thresholds:
    oversized_frame: 9000
  writers:
    - type: json
      enabled: true
    - type: clickhouse
      enabled: true
      clickhouse:
        host: ch
        port: 9000
        connect_tries: 3
publisher:
  enabled: true
  subject: reports
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.Sanitizer.PreserveInternalIPs)
	assert.Equal(t, []string{"x-*"}, cfg.Sanitizer.SensitiveHeaders)
	assert.Equal(t, "[REDACTED]", cfg.Sanitizer.Tokens.Header)
	assert.Equal(t, 2, cfg.Analyzer.NumWorkers)
	assert.Equal(t, 512*datasize.MB, cfg.Analyzer.MaxCaptureSize)
	assert.Equal(t, 9000, cfg.Analyzer.Thresholds.OversizedFrame)
	assert.Equal(t, 60, cfg.Analyzer.Thresholds.HeaderOnlyCutoff)
	require.Len(t, cfg.Analyzer.Writers, 2)
	assert.Equal(t, "ch", cfg.Analyzer.Writers[1].ClickHouse.Host)
	assert.Equal(t, uint(3), cfg.Analyzer.Writers[1].ClickHouse.ConnectTries)
	assert.True(t, cfg.Publisher.Enabled)
	assert.Equal(t, "reports", cfg.Publisher.Subject)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Publisher.NATSURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "analyzer: [\n"},
		{name: "zero workers", content: "analyzer:\n  num_workers: 0\n"},
		{name: "zero sanitizer workers", content: "sanitizer:\n  num_workers: -1\n"},
		{name: "writer without type", content: "analyzer:\n  writers:\n    - enabled: true\n"},
		{name: "bad size", content: "analyzer:\n  max_capture_size: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
