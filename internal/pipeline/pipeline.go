// Package pipeline wires capture I/O, the sanitizer, the classifier engine
// and the report exporters into the two offline stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"PcapLens/internal/anonymizer"
	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/manager"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"
	"PcapLens/internal/report"
	"PcapLens/pkg/pcap"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline runs the sanitize and prepare stages with one configuration.
type Pipeline struct {
	cfg       *config.Config
	publisher writermodel.Publisher
	log       *zap.SugaredLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithPublisher hands every exported report to pub.
func WithPublisher(pub writermodel.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// New creates a new pipeline.
func New(cfg *config.Config, options ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, log: zap.NewNop().Sugar()}
	for _, o := range options {
		o(p)
	}
	return p
}

// Sanitize writes an anonymized copy of the capture at in to out. Record
// count and order are preserved. Identity mappings live for one call only.
func (p *Pipeline) Sanitize(ctx context.Context, in, out string) (anonymizer.Stats, error) {
	var total anonymizer.Stats

	if _, err := checkInput(in, p.cfg.Analyzer.MaxCaptureSize); err != nil {
		return total, err
	}
	if err := checkOutputPath(in, out); err != nil {
		return total, err
	}

	reader, err := openCapture(in, p.log)
	if err != nil {
		return total, err
	}
	defer reader.Close()

	records, err := reader.ReadAll()
	if err != nil {
		return total, fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}
	if len(records) == 0 {
		return total, fmt.Errorf("%w: %s contains no packets", ErrInputEmpty, in)
	}
	p.log.Infof("Loaded %d packets from %s (%s, %s)", len(records), in, reader.Format(), reader.LinkType())

	redactor, err := anonymizer.NewRedactor(p.cfg.Sanitizer)
	if err != nil {
		return total, err
	}
	sanitizer := anonymizer.NewSanitizer(
		anonymizer.New(p.cfg.Sanitizer.PreserveInternalIPs),
		redactor,
		anonymizer.WithLog(p.log),
	)

	results, err := rewriteAll(ctx, sanitizer, records, reader.LinkType(), p.cfg.Sanitizer.NumWorkers)
	if err != nil {
		return total, err
	}

	// pcapng timestamps can carry more than microsecond resolution.
	nanos := reader.Nanos() || reader.Format() == pcap.FormatPcapNG
	writer, err := pcap.NewWriter(out, reader.LinkType(), reader.Snaplen(), nanos)
	if err != nil {
		return total, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	for i, rec := range records {
		ci := rec.CaptureInfo
		ci.Length = results[i].WireLength
		if err := writer.WritePacket(ci, results[i].Data); err != nil {
			writer.Abort()
			return total, fmt.Errorf("%w: %v", ErrOutput, err)
		}
		total.Add(results[i].Stats)
	}
	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("%w: %v", ErrOutput, err)
	}

	p.log.Infow("Sanitization complete",
		"output", out,
		"packets", total.TotalPackets,
		"ip_anonymized", total.IPAnonymized,
		"mac_anonymized", total.MACAnonymized,
		"dns_sanitized", total.DNSSanitized,
		"http_sanitized", total.HTTPSanitized,
		"tls_sanitized", total.TLSSanitized,
		"sensitive_data_removed", total.SensitiveDataRemoved,
		"rewrite_failures", total.RewriteFailures,
	)
	return total, nil
}

// rewriteAll rewrites records on numWorkers goroutines. Results keep the
// record order.
func rewriteAll(ctx context.Context, s *anonymizer.Sanitizer, records []*model.Record, linkType layers.LinkType, numWorkers int) ([]anonymizer.Result, error) {
	results := make([]anonymizer.Result, len(records))
	numWorkers = max(1, min(numWorkers, len(records)))

	g, gctx := errgroup.WithContext(ctx)
	for w := range numWorkers {
		g.Go(func() error {
			for i := w; i < len(records); i += numWorkers {
				if i%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				results[i] = s.Rewrite(records[i], linkType)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, ctx.Err()
}

// Prepare analyzes the capture at in and exports the reports into outDir.
func (p *Pipeline) Prepare(ctx context.Context, in, outDir string) (*model.Bundle, error) {
	size, err := checkInput(in, p.cfg.Analyzer.MaxCaptureSize)
	if err != nil {
		return nil, err
	}

	reader, err := openCapture(in, p.log)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	p.log.Infof("Analyzing %s (%s, %s)", in, reader.Format(), reader.LinkType())

	writers, err := factory.Create(p.cfg, p.log)
	if err != nil {
		return nil, err
	}
	defer closeWriters(writers, p.log)

	mgr := manager.NewManager(&p.cfg.Analyzer, manager.WithLog(p.log))
	records := make(chan *model.Record, max(p.cfg.Analyzer.SizeOfPacketChannel, 1))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := reader.ReadPackets(gctx, records); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCapture, err)
		}
		return nil
	})
	var bundle *model.Bundle
	g.Go(func() error {
		state, err := mgr.Run(gctx, reader.LinkType(), records)
		if err != nil {
			return err
		}
		if state.Packets == 0 {
			return fmt.Errorf("%w: %s contains no packets", ErrInputEmpty, in)
		}
		bundle = report.Build(state, report.Meta{
			SourceFile: filepath.Base(in),
			FileSize:   size,
			LinkType:   reader.LinkType().String(),
		}, p.cfg.Analyzer.Limits)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.log.Infof("Analyzed %d packets, %d errors found", bundle.Summary.Metadata.TotalPackets, bundle.Summary.ErrorSummary.TotalErrors)

	if err := report.Export(ctx, bundle, outDir, writers, p.log); err != nil {
		return bundle, fmt.Errorf("%w: %v", ErrOutput, err)
	}

	if p.publisher != nil {
		if err := p.publish(ctx, outDir); err != nil {
			return bundle, fmt.Errorf("%w: %v", ErrPublish, err)
		}
	}
	return bundle, nil
}

// publish sends the artifacts found in outDir.
func (p *Pipeline) publish(ctx context.Context, outDir string) error {
	artifacts := make(map[string][]byte)
	for _, name := range model.Artifacts {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		artifacts[name] = data
	}
	return p.publisher.Publish(ctx, filepath.Base(filepath.Clean(outDir)), artifacts)
}

func closeWriters(writers []writermodel.Writer, log *zap.SugaredLogger) {
	for _, w := range writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warnw("failed to close report writer", "writer", w.Name(), "error", err)
			}
		}
	}
}
