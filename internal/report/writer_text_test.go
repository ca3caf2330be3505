package report

import (
	"strings"
	"testing"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestTextWriter_QuickStats(t *testing.T) {
	w := NewTextWriter(config.DefaultConfig().Analyzer.Pricing, zaptest.NewLogger(t).Sugar())
	summary := &model.Summary{
		Metadata: model.Metadata{TotalPackets: 12345, FileSizeMB: 1.5},
		ProtocolDistribution: model.Ranked{
			{Name: "IPv4", Count: 12000},
			{Name: "TCP", Count: 9000},
		},
		ErrorSummary: model.ErrorSummary{TCPResets: 3, DNSFailures: 1},
	}
	for i := range 7 {
		summary.TopDestinations = append(summary.TopDestinations, model.AddressCount{IP: "10.0.0." + string(rune('1'+i)), Count: 10 - i})
	}

	text := string(w.QuickStats(summary))

	assert.True(t, strings.HasPrefix(text, "PCAP ANALYSIS - QUICK STATS\n"+strings.Repeat("=", 60)+"\n\n"))
	assert.Contains(t, text, "Total Packets: 12,345\n")
	assert.Contains(t, text, "File Size: 1.50 MB\n")
	assert.Contains(t, text, "  TCP Resets: 3\n")
	assert.Contains(t, text, "  DNS Failures: 1\n")
	assert.Contains(t, text, "PROTOCOLS:\n  IPv4: 12,000\n  TCP: 9,000\n")
	assert.Contains(t, text, "  10.0.0.5: 6 packets\n")
	assert.NotContains(t, text, "10.0.0.6")
	assert.Less(t, strings.Index(text, "IPv4"), strings.Index(text, "TCP:"))
}

func TestTokenEstimate(t *testing.T) {
	e := NewTokenEstimate(4003, config.DefaultConfig().Analyzer.Pricing)

	assert.Equal(t, 1000, e.InputTokens)
	assert.Equal(t, 600, e.OutputTokens)
	assert.InDelta(t, 0.00725, e.Cost, 1e-12)

	w := NewTextWriter(config.DefaultConfig().Analyzer.Pricing, zaptest.NewLogger(t).Sugar())
	text := string(w.TokenEstimate(e, 2))
	assert.Contains(t, text, "Report Tokens: ~1,000\n")
	assert.Contains(t, text, "gpt-5-chat:  $0.007")
	assert.Contains(t, text, "Compression Ratio: ~5243:1\n")
}

func TestTokenEstimate_EmptyReport(t *testing.T) {
	w := NewTextWriter(config.DefaultConfig().Analyzer.Pricing, zaptest.NewLogger(t).Sugar())
	text := string(w.TokenEstimate(NewTokenEstimate(3, config.DefaultConfig().Analyzer.Pricing), 0))
	assert.NotContains(t, text, "Compression Ratio")
}
