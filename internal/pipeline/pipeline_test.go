package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/protocol"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"
	"PcapLens/internal/testutil"
	"PcapLens/pkg/pcap"

	"github.com/c2h5oh/datasize"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func init() {
	factory.RegisterWriter("failing", func(config.WriterDef, *config.Config, *zap.SugaredLogger) (writermodel.Writer, error) {
		return failingWriter{}, nil
	})
}

type failingWriter struct{}

func (failingWriter) Name() string { return "failing" }

func (failingWriter) Write(context.Context, *model.Bundle, string) error {
	return errors.New("no space left on device")
}

type recordingPublisher struct {
	report    string
	artifacts map[string][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, report string, artifacts map[string][]byte) error {
	p.report = report
	p.artifacts = artifacts
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func sampleFrames() [][]byte {
	return [][]byte{
		testutil.TCP(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "93.184.216.34", SrcPort: 40000, DstPort: 80, SYN: true}),
		testutil.DNS(testutil.Frame{SrcIP: "192.168.1.10", DstIP: "10.0.0.53", SrcPort: 40001, DstPort: 53},
			testutil.DNSQuery(1, "internal.example.com")),
		testutil.DNS(testutil.Frame{SrcIP: "10.0.0.53", DstIP: "192.168.1.10", SrcPort: 53, DstPort: 40001},
			testutil.DNSResponse(1, "internal.example.com", layers.DNSResponseCodeNXDomain)),
		testutil.TCP(testutil.Frame{SrcIP: "93.184.216.34", DstIP: "10.0.0.1", SrcPort: 80, DstPort: 40000, ACK: true, PSH: true,
			Payload: []byte("HTTP/1.1 503 Service Unavailable\r\nSet-Cookie: session=abc\r\n\r\n")}),
		testutil.TCP(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "93.184.216.34", SrcPort: 40000, DstPort: 80, RST: true}),
	}
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.pcap")
	testutil.WriteCapture(t, path, sampleFrames()...)
	return path
}

func newPipeline(t *testing.T, cfg *config.Config, options ...Option) *Pipeline {
	t.Helper()
	return New(cfg, append([]Option{WithLog(zaptest.NewLogger(t).Sugar())}, options...)...)
}

func TestSanitize_Deterministic(t *testing.T) {
	in := writeSample(t)
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.pcap"), filepath.Join(dir, "b.pcap")
	p := newPipeline(t, config.DefaultConfig())

	stats, err := p.Sanitize(context.Background(), in, first)
	require.NoError(t, err)
	_, err = p.Sanitize(context.Background(), in, second)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, 5, stats.TotalPackets)
	assert.Equal(t, 2, stats.DNSSanitized)
	assert.Equal(t, 1, stats.HTTPSanitized)
	assert.Equal(t, 10, stats.IPAnonymized)
}

func TestSanitize_RewritesDNSName(t *testing.T) {
	in := writeSample(t)
	out := filepath.Join(t.TempDir(), "out.pcap")

	_, err := newPipeline(t, config.DefaultConfig()).Sanitize(context.Background(), in, out)
	require.NoError(t, err)

	reader, err := pcap.NewReader(out, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer reader.Close()
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)

	resp := protocol.Decode(records[2], reader.LinkType())
	require.NotNil(t, resp.DNS)
	assert.Equal(t, "anon-0df0a79185f5.com", string(resp.DNS.Questions[0].Name))
	assert.Equal(t, layers.DNSResponseCodeNXDomain, resp.DNS.ResponseCode)

	src, ok := resp.SrcAddr()
	require.True(t, ok)
	assert.Equal(t, byte(10), src.As4()[0])

	http := protocol.Decode(records[3], reader.LinkType())
	assert.Contains(t, string(http.Payload), "HTTP/1.1 503")
	assert.NotContains(t, string(http.Payload), "session=abc")

	original := testutil.Records(sampleFrames()...)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Index)
		assert.True(t, original[i].CaptureInfo.Timestamp.Equal(rec.CaptureInfo.Timestamp), "timestamp of record %d", i+1)
	}
}

func TestPrepare(t *testing.T) {
	in := writeSample(t)
	outDir := filepath.Join(t.TempDir(), "ai_analysis")
	pub := &recordingPublisher{}

	bundle, err := newPipeline(t, config.DefaultConfig(), WithPublisher(pub)).Prepare(context.Background(), in, outDir)
	require.NoError(t, err)

	assert.Equal(t, 5, bundle.Summary.Metadata.TotalPackets)
	assert.Equal(t, "sample.pcap", bundle.Summary.Metadata.SourceFile)
	assert.Equal(t, 1, bundle.Summary.ErrorSummary.TCPResets)
	assert.Equal(t, 1, bundle.Summary.ErrorSummary.DNSFailures)
	assert.Equal(t, 1, bundle.Summary.ErrorSummary.HTTPErrors)
	assert.Equal(t, 1, bundle.Summary.ErrorSummary.ConnectionFailures)

	data, err := os.ReadFile(filepath.Join(outDir, model.ArtifactErrors))
	require.NoError(t, err)
	var details model.ErrorDetails
	require.NoError(t, json.Unmarshal(data, &details))
	require.Len(t, details.DNSFailures, 1)
	assert.Equal(t, "NXDOMAIN", details.DNSFailures[0].RCodeName)
	assert.Equal(t, "internal.example.com", details.DNSFailures[0].Query)
	require.Len(t, details.HTTPErrors, 1)
	assert.Equal(t, "503", details.HTTPErrors[0].StatusCode)

	assert.Equal(t, "ai_analysis", pub.report)
	assert.Len(t, pub.artifacts, len(model.Artifacts))
	assert.Equal(t, data, pub.artifacts[model.ArtifactErrors])
}

func TestPrepare_Deterministic(t *testing.T) {
	in := writeSample(t)
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Analyzer.NumWorkers = 3

	for _, out := range []string{"a", "b"} {
		_, err := newPipeline(t, cfg).Prepare(context.Background(), in, filepath.Join(dir, out))
		require.NoError(t, err)
	}
	for _, name := range model.Artifacts {
		a, err := os.ReadFile(filepath.Join(dir, "a", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dir, "b", name))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
}

func TestPrepare_WriterFailureMarksIncomplete(t *testing.T) {
	in := writeSample(t)
	outDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Analyzer.Writers = append(cfg.Analyzer.Writers, config.WriterDef{Type: "failing", Enabled: true})
	pub := &recordingPublisher{}

	_, err := newPipeline(t, cfg, WithPublisher(pub)).Prepare(context.Background(), in, outDir)
	require.ErrorIs(t, err, ErrOutput)
	assert.Contains(t, err.Error(), "no space left on device")
	assert.FileExists(t, filepath.Join(outDir, model.MarkerIncomplete))
	assert.Nil(t, pub.artifacts, "incomplete reports are not published")
}

func TestPrepare_UnknownWriter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analyzer.Writers = []config.WriterDef{{Type: "parquet", Enabled: true}}

	_, err := newPipeline(t, cfg).Prepare(context.Background(), writeSample(t), t.TempDir())
	assert.ErrorContains(t, err, "unknown writer type")
}

func TestPreconditions(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	garbage := filepath.Join(dir, "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a capture file"), 0644))
	headerOnly := filepath.Join(dir, "header_only.pcap")
	testutil.WriteCapture(t, headerOnly)
	sample := writeSample(t)

	small := config.DefaultConfig()
	small.Analyzer.MaxCaptureSize = 64 * datasize.B

	tests := []struct {
		name string
		cfg  *config.Config
		in   string
		want error
	}{
		{"missing", config.DefaultConfig(), filepath.Join(dir, "missing.pcap"), ErrInputNotFound},
		{"directory", config.DefaultConfig(), dir, ErrInvalidCapture},
		{"empty", config.DefaultConfig(), empty, ErrInputEmpty},
		{"no packets", config.DefaultConfig(), headerOnly, ErrInputEmpty},
		{"garbage", config.DefaultConfig(), garbage, ErrInvalidCapture},
		{"too large", small, sample, ErrCaptureTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.cfg)

			_, err := p.Sanitize(context.Background(), tt.in, filepath.Join(t.TempDir(), "out.pcap"))
			assert.ErrorIs(t, err, tt.want)

			out := filepath.Join(t.TempDir(), "report")
			_, err = p.Prepare(context.Background(), tt.in, out)
			assert.ErrorIs(t, err, tt.want)
			assert.NoDirExists(t, out, "nothing is written before preconditions pass")
		})
	}
}

func TestPreconditions_TooLargeMentionsEditcap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analyzer.MaxCaptureSize = 64 * datasize.B

	_, err := newPipeline(t, cfg).Prepare(context.Background(), writeSample(t), t.TempDir())
	assert.ErrorContains(t, err, "editcap")
}

func TestPreconditions_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	in := writeSample(t)
	require.NoError(t, os.Chmod(in, 0))

	_, err := newPipeline(t, config.DefaultConfig()).Prepare(context.Background(), in, t.TempDir())
	assert.ErrorIs(t, err, ErrInputPermission)
}

func TestSanitize_OutputChecks(t *testing.T) {
	in := writeSample(t)
	p := newPipeline(t, config.DefaultConfig())

	_, err := p.Sanitize(context.Background(), in, in)
	assert.ErrorIs(t, err, ErrOutput)

	_, err = p.Sanitize(context.Background(), in, filepath.Join(t.TempDir(), "missing", "out.pcap"))
	assert.ErrorIs(t, err, ErrOutput)
}

func TestSanitize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "out.pcap")

	_, err := newPipeline(t, config.DefaultConfig()).Sanitize(ctx, writeSample(t), out)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}
