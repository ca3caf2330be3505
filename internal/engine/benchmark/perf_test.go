package benchmark

import (
	"context"
	"fmt"
	"testing"

	"PcapLens/internal/anonymizer"
	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/classifier"
	"PcapLens/internal/engine/manager"
	"PcapLens/internal/engine/protocol"
	"PcapLens/internal/testutil"

	"github.com/google/gopacket/layers"
)

var records []*model.Record

func init() {
	var frames [][]byte
	for i := 0; i < 2000; i++ {
		client := fmt.Sprintf("10.0.%d.%d", i%8, 1+i%200)
		port := uint16(40000 + i%500)
		frames = append(frames,
			testutil.TCP(testutil.Frame{SrcIP: client, DstIP: "93.184.216.34", SrcPort: port, DstPort: 80, Seq: uint32(i), SYN: i%10 == 0}),
			testutil.TCP(testutil.Frame{
				SrcIP: client, DstIP: "93.184.216.34", SrcPort: port, DstPort: 80, Seq: uint32(i), ACK: true, PSH: true,
				Payload: []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nCookie: id=42\r\n\r\n"),
			}),
			testutil.TCP(testutil.Frame{SrcIP: "93.184.216.34", DstIP: client, SrcPort: 80, DstPort: port, ACK: true, RST: i%50 == 0}),
		)
		if i%20 == 0 {
			frames = append(frames, testutil.DNS(
				testutil.Frame{SrcIP: "10.0.0.53", DstIP: client, SrcPort: 53, DstPort: port},
				testutil.DNSResponse(uint16(i), "missing.example.com", layers.DNSResponseCodeNXDomain),
			))
		}
	}
	records = testutil.Records(frames...)
}

func BenchmarkDecode(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, rec := range records {
			protocol.Decode(rec, layers.LinkTypeEthernet)
		}
	}
}

func BenchmarkClassify(b *testing.B) {
	thresholds := config.DefaultConfig().Analyzer.Thresholds
	decoded := make([]*model.DecodedPacket, len(records))
	for i, rec := range records {
		decoded[i] = protocol.Decode(rec, layers.LinkTypeEthernet)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := classifier.New(thresholds)
		for _, p := range decoded {
			c.Classify(p)
		}
	}
}

func BenchmarkManager(b *testing.B) {
	for _, workers := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			cfg := config.DefaultConfig().Analyzer
			cfg.NumWorkers = workers

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				in := make(chan *model.Record, cfg.SizeOfPacketChannel)
				go func() {
					defer close(in)
					for _, rec := range records {
						in <- rec
					}
				}()
				if _, err := manager.NewManager(&cfg).Run(context.Background(), layers.LinkTypeEthernet, in); err != nil {
					b.Fatalf("Run failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkSanitize_Parallel(b *testing.B) {
	redactor, err := anonymizer.NewRedactor(config.DefaultConfig().Sanitizer)
	if err != nil {
		b.Fatalf("Failed to build redactor: %v", err)
	}
	s := anonymizer.NewSanitizer(anonymizer.New(true), redactor)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for _, rec := range records {
				s.Rewrite(rec, layers.LinkTypeEthernet)
			}
		}
	})
}
