package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// SanitizerConfig holds the settings of the sanitize stage.
type SanitizerConfig struct {
	// PreserveInternalIPs keeps private ranges recognizable (10/8, 172.16/12,
	// 192.168/16). When false every address maps into the public range.
	PreserveInternalIPs bool `yaml:"preserve_private_ips"`
	// SensitiveHeaders are glob patterns matched case-insensitively against
	// HTTP header names.
	SensitiveHeaders []string        `yaml:"sensitive_headers"`
	Tokens           RedactionTokens `yaml:"tokens"`
	NumWorkers       int             `yaml:"num_workers"`
}

// RedactionTokens are the replacement strings used by payload redaction.
type RedactionTokens struct {
	Header string `yaml:"header"`
	Email  string `yaml:"email"`
	Key    string `yaml:"key"`
}

// ThresholdConfig holds the classifier's size cutoffs.
type ThresholdConfig struct {
	// HeaderOnlyCutoff is the frame length at or below which a frame is
	// never considered a retransmission.
	HeaderOnlyCutoff int `yaml:"header_only_cutoff"`
	// OversizedFrame is the frame length above which a frame is reported.
	OversizedFrame int `yaml:"oversized_frame"`
	// PreviewLength bounds the HTTP payload preview.
	PreviewLength int `yaml:"preview_length"`
}

// LimitConfig holds the truncation limits of the exported reports.
type LimitConfig struct {
	TopTalkers         int `yaml:"top_talkers"`
	TopFlags           int `yaml:"top_flags"`
	TopDNSQueries      int `yaml:"top_dns_queries"`
	TopServerNames     int `yaml:"top_server_names"`
	TCPResets          int `yaml:"tcp_resets"`
	TCPRetransmissions int `yaml:"tcp_retransmissions"`
	DNSFailures        int `yaml:"dns_failures"`
	HTTPErrors         int `yaml:"http_errors"`
	ConnectionFailures int `yaml:"connection_failures"`
	LargePackets       int `yaml:"large_packets"`
	Conversations      int `yaml:"conversations"`
	ConversationFlags  int `yaml:"conversation_flags"`
}

// AnalyzerConfig holds the settings of the prepare stage.
type AnalyzerConfig struct {
	NumWorkers          int               `yaml:"num_workers"`
	SizeOfPacketChannel int               `yaml:"size_of_packet_channel"`
	MaxCaptureSize      datasize.ByteSize `yaml:"max_capture_size"`
	ProgressEvery       int               `yaml:"progress_every"`
	Thresholds          ThresholdConfig   `yaml:"thresholds"`
	Limits              LimitConfig       `yaml:"limits"`
	Writers             []WriterDef       `yaml:"writers"`
	Pricing             PricingConfig     `yaml:"pricing"`
}

// PricingConfig is used by the token estimate, prices are per 1M tokens.
type PricingConfig struct {
	Model       string  `yaml:"model"`
	InputPrice  float64 `yaml:"input_price"`
	OutputPrice float64 `yaml:"output_price"`
	OutputRatio float64 `yaml:"output_ratio"`
}

// WriterDef defines a single report writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
}

// ClickHouseConfig holds the connection settings of the ClickHouse writer.
type ClickHouseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ConnectTries uint   `yaml:"connect_tries"`
}

// PostgresConfig holds the connection settings of the Postgres writer.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// PublisherConfig holds the settings of the NATS report publisher.
type PublisherConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds the settings of the report API.
type APIConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	ReportsRoot string `yaml:"reports_root"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Sanitizer SanitizerConfig `yaml:"sanitizer"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Publisher PublisherConfig `yaml:"publisher"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Sanitizer: SanitizerConfig{
			PreserveInternalIPs: true,
			SensitiveHeaders: []string{
				"authorization",
				"cookie",
				"set-cookie",
				"x-api-key",
				"x-auth-token",
				"user-agent",
				"x-forwarded-for",
				"x-real-ip",
			},
			Tokens: RedactionTokens{
				Header: "[REDACTED]",
				Email:  "[EMAIL_REDACTED]",
				Key:    "[KEY_REDACTED]",
			},
			NumWorkers: 4,
		},
		Analyzer: AnalyzerConfig{
			NumWorkers:          4,
			SizeOfPacketChannel: 1024,
			MaxCaptureSize:      4 * datasize.GB,
			ProgressEvery:       5000,
			Thresholds: ThresholdConfig{
				HeaderOnlyCutoff: 60,
				OversizedFrame:   1400,
				PreviewLength:    200,
			},
			Limits: LimitConfig{
				TopTalkers:         10,
				TopFlags:           10,
				TopDNSQueries:      20,
				TopServerNames:     20,
				TCPResets:          50,
				TCPRetransmissions: 50,
				DNSFailures:        50,
				HTTPErrors:         50,
				ConnectionFailures: 30,
				LargePackets:       20,
				Conversations:      20,
				ConversationFlags:  5,
			},
			Writers: []WriterDef{
				{Type: "json", Enabled: true},
				{Type: "text", Enabled: true},
			},
			Pricing: PricingConfig{
				Model:       "gpt-5-chat",
				InputPrice:  1.25,
				OutputPrice: 10.00,
				OutputRatio: 0.6,
			},
		},
		Publisher: PublisherConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "pcaplens.reports",
		},
		API: APIConfig{
			ListenAddr:  ":8080",
			ReportsRoot: "reports",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults.
// An empty path returns the defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no sensible zero value.
func (c *Config) Validate() error {
	if c.Analyzer.NumWorkers <= 0 {
		return fmt.Errorf("analyzer.num_workers must be positive, got %d", c.Analyzer.NumWorkers)
	}
	if c.Sanitizer.NumWorkers <= 0 {
		return fmt.Errorf("sanitizer.num_workers must be positive, got %d", c.Sanitizer.NumWorkers)
	}
	if c.Analyzer.Thresholds.HeaderOnlyCutoff < 0 || c.Analyzer.Thresholds.OversizedFrame <= 0 {
		return fmt.Errorf("analyzer.thresholds must be positive")
	}
	for _, w := range c.Analyzer.Writers {
		if w.Type == "" {
			return fmt.Errorf("analyzer.writers: writer without type")
		}
	}
	return nil
}
