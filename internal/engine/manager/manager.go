// Package manager runs the classifier over a capture on several partitions.
package manager

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/classifier"
	"PcapLens/internal/engine/protocol"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager orchestrates a set of classifier partitions. Every packet of a
// connection goes to the same partition, in capture order, so per-connection
// state never needs locking.
type Manager struct {
	numWorkers          int
	sizeOfPacketChannel int
	progressEvery       int
	thresholds          config.ThresholdConfig
	log                 *zap.SugaredLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a new Manager.
func NewManager(cfg *config.AnalyzerConfig, options ...Option) *Manager {
	m := &Manager{
		numWorkers:          max(cfg.NumWorkers, 1),
		sizeOfPacketChannel: max(cfg.SizeOfPacketChannel, 0),
		progressEvery:       cfg.ProgressEvery,
		thresholds:          cfg.Thresholds,
		log:                 zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

type partition struct {
	in         chan *model.DecodedPacket
	classifier *classifier.Classifier
}

// Run decodes the records read from in, classifies them and returns the
// merged state once in is closed. The result does not depend on the number
// of workers.
func (m *Manager) Run(ctx context.Context, linkType layers.LinkType, in <-chan *model.Record) (*classifier.State, error) {
	partitions := make([]*partition, m.numWorkers)
	for i := range partitions {
		partitions[i] = &partition{
			in:         make(chan *model.DecodedPacket, m.sizeOfPacketChannel),
			classifier: classifier.New(m.thresholds, classifier.WithLog(m.log)),
		}
	}

	wg, ctx := errgroup.WithContext(ctx)
	for _, p := range partitions {
		wg.Go(func() error {
			for pkt := range p.in {
				p.classifier.Classify(pkt)
			}
			return nil
		})
	}

	wg.Go(func() error {
		defer func() {
			for _, p := range partitions {
				close(p.in)
			}
		}()
		return m.dispatch(ctx, linkType, in, partitions)
	})

	if err := wg.Wait(); err != nil {
		return nil, err
	}

	states := make([]*classifier.State, len(partitions))
	for i, p := range partitions {
		states[i] = p.classifier.State()
	}
	state := classifier.Merge(states...)
	m.log.Infow("Analysis complete", "packets", state.Packets, "events", len(state.Events), "partitions", len(partitions))
	return state, nil
}

func (m *Manager) dispatch(ctx context.Context, linkType layers.LinkType, in <-chan *model.Record, partitions []*partition) error {
	processed := 0
	for {
		var rec *model.Record
		select {
		case <-ctx.Done():
			return fmt.Errorf("analysis interrupted after %d packets: %w", processed, ctx.Err())
		case r, ok := <-in:
			if !ok {
				return nil
			}
			rec = r
		}

		pkt := protocol.Decode(rec, linkType)
		target := partitions[partitionOf(pkt, len(partitions))]
		select {
		case <-ctx.Done():
			return fmt.Errorf("analysis interrupted after %d packets: %w", processed, ctx.Err())
		case target.in <- pkt:
		}

		processed++
		if m.progressEvery > 0 && processed%m.progressEvery == 0 {
			m.log.Infof("Processed %d packets...", processed)
		}
	}
}

// partitionOf hashes the connection key of pkt. Packets without a key go to
// the first partition.
func partitionOf(pkt *model.DecodedPacket, n int) int {
	key, ok := pkt.Key()
	if !ok || n == 1 {
		return 0
	}

	hasher := fnv.New32a()
	hasher.Write(key.SrcIP.AsSlice())
	hasher.Write(key.DstIP.AsSlice())
	var ports [4]byte
	binary.BigEndian.PutUint16(ports[0:], key.SrcPort)
	binary.BigEndian.PutUint16(ports[2:], key.DstPort)
	hasher.Write(ports[:])
	hasher.Write([]byte(key.Transport))
	return int(hasher.Sum32() % uint32(n))
}
