package publisher

import (
	"fmt"
	"os"
	"path/filepath"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscriber stores published artifacts below a reports root, one directory
// per report.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	root    string
	log     *zap.SugaredLogger
}

// NewSubscriber creates a new NATS subscriber writing into root.
func NewSubscriber(cfg config.PublisherConfig, root string, log *zap.SugaredLogger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("pcaplens-ingest"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject, root: root, log: log}, nil
}

// Start subscribes to every artifact subject.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject+".>", func(msg *nats.Msg) {
		if err := Store(s.root, msg.Header.Get(HeaderReport), msg.Header.Get(HeaderArtifact), msg.Data); err != nil {
			s.log.Warnw("dropping published artifact", "subject", msg.Subject, "error", err)
			return
		}
		s.log.Debugw("stored published artifact", "report", msg.Header.Get(HeaderReport), "artifact", msg.Header.Get(HeaderArtifact))
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.Infof("Subscribed to '%s.>'. Waiting for reports...", s.subject)
	return nil
}

// Store decodes one published artifact and writes it to
// root/report/artifact.
func Store(root, report, artifact string, payload []byte) error {
	if !model.ValidReportName(report) {
		return fmt.Errorf("invalid report name %q", report)
	}
	if !model.IsArtifact(artifact) {
		return fmt.Errorf("unknown artifact %q", artifact)
	}

	data, err := DecodeArtifact(artifact, payload)
	if err != nil {
		return err
	}

	dir := filepath.Join(root, report)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, artifact), data, 0644)
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.log.Info("NATS connection closed.")
	}
}
