package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	factory.RegisterWriter("text", func(_ config.WriterDef, cfg *config.Config, log *zap.SugaredLogger) (writermodel.Writer, error) {
		return NewTextWriter(cfg.Analyzer.Pricing, log), nil
	})
}

const (
	rule            = "============================================================"
	quickStatsDests = 5
)

// TextWriter writes the human readable quick_stats.txt and token_estimate.txt.
type TextWriter struct {
	pricing config.PricingConfig
	printer *message.Printer
	log     *zap.SugaredLogger
}

// NewTextWriter creates a new text writer.
func NewTextWriter(pricing config.PricingConfig, log *zap.SugaredLogger) *TextWriter {
	return &TextWriter{
		pricing: pricing,
		printer: message.NewPrinter(language.English),
		log:     log,
	}
}

func (w *TextWriter) Name() string { return "text" }

func (w *TextWriter) Write(_ context.Context, bundle *model.Bundle, outDir string) error {
	if err := writeFile(outDir, model.ArtifactQuickStats, w.QuickStats(bundle.Summary)); err != nil {
		return err
	}
	w.log.Infof("Created %s", model.ArtifactQuickStats)

	artifacts, err := JSONArtifacts(bundle)
	if err != nil {
		return err
	}
	chars := 0
	for _, a := range artifacts {
		chars += len(a.Data)
	}
	estimate := NewTokenEstimate(chars, w.pricing)
	if err := writeFile(outDir, model.ArtifactTokenEstimate, w.TokenEstimate(estimate, bundle.Summary.Metadata.FileSizeMB)); err != nil {
		return err
	}
	w.log.Infof("Created %s (~%d tokens)", model.ArtifactTokenEstimate, estimate.InputTokens)
	return nil
}

// QuickStats renders quick_stats.txt.
func (w *TextWriter) QuickStats(s *model.Summary) []byte {
	var b bytes.Buffer
	p := w.printer

	b.WriteString("PCAP ANALYSIS - QUICK STATS\n")
	b.WriteString(rule + "\n\n")
	p.Fprintf(&b, "Total Packets: %d\n", s.Metadata.TotalPackets)
	fmt.Fprintf(&b, "File Size: %.2f MB\n", s.Metadata.FileSizeMB)

	b.WriteString("\nERRORS FOUND:\n")
	fmt.Fprintf(&b, "  TCP Resets: %d\n", s.ErrorSummary.TCPResets)
	fmt.Fprintf(&b, "  Retransmissions: %d\n", s.ErrorSummary.TCPRetransmissions)
	fmt.Fprintf(&b, "  DNS Failures: %d\n", s.ErrorSummary.DNSFailures)
	fmt.Fprintf(&b, "  HTTP Errors: %d\n", s.ErrorSummary.HTTPErrors)
	fmt.Fprintf(&b, "  Connection Failures: %d\n", s.ErrorSummary.ConnectionFailures)

	b.WriteString("\nPROTOCOLS:\n")
	for _, e := range s.ProtocolDistribution {
		p.Fprintf(&b, "  %s: %d\n", e.Name, e.Count)
	}

	b.WriteString("\nTOP DESTINATIONS:\n")
	for _, d := range s.TopDestinations[:min(len(s.TopDestinations), quickStatsDests)] {
		p.Fprintf(&b, "  %s: %d packets\n", d.IP, d.Count)
	}
	return b.Bytes()
}

// TokenEstimate is the rough size and cost of handing the report to a
// language model.
type TokenEstimate struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	InputPrice   float64
	OutputPrice  float64
}

// NewTokenEstimate estimates roughly four characters per token.
func NewTokenEstimate(chars int, pricing config.PricingConfig) TokenEstimate {
	input := chars / 4
	output := int(float64(input) * pricing.OutputRatio)
	return TokenEstimate{
		Model:        pricing.Model,
		InputTokens:  input,
		OutputTokens: output,
		Cost: float64(input)*pricing.InputPrice/1_000_000 +
			float64(input)*pricing.OutputRatio*pricing.OutputPrice/1_000_000,
		InputPrice:  pricing.InputPrice,
		OutputPrice: pricing.OutputPrice,
	}
}

// TokenEstimate renders token_estimate.txt.
func (w *TextWriter) TokenEstimate(e TokenEstimate, fileSizeMB float64) []byte {
	var b strings.Builder
	p := w.printer

	b.WriteString("TOKEN USAGE ESTIMATE FOR AI ANALYSIS\n")
	b.WriteString(rule + "\n\n")
	p.Fprintf(&b, "Report Tokens: ~%d\n", e.InputTokens)
	p.Fprintf(&b, "Expected Output Tokens: ~%d\n\n", e.OutputTokens)
	b.WriteString("Estimated Cost:\n")
	fmt.Fprintf(&b, "  %s:  $%.4f\n", e.Model, e.Cost)
	b.WriteString("\nPricing (per 1M tokens):\n")
	fmt.Fprintf(&b, "  %s: $%.2f input / $%.2f output\n", e.Model, e.InputPrice, e.OutputPrice)
	if e.InputTokens > 0 {
		p.Fprintf(&b, "\nOptimization: reduced from ~%.0fMB to ~%d tokens\n", fileSizeMB, e.InputTokens)
		fmt.Fprintf(&b, "Compression Ratio: ~%.0f:1\n", fileSizeMB*1024*1024*2.5/float64(e.InputTokens))
	}
	return []byte(b.String())
}
