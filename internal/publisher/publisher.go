package publisher

import (
	"context"
	"fmt"
	"slices"

	"PcapLens/internal/config"
	"PcapLens/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher publishes report artifacts to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     *zap.SugaredLogger
}

var _ model.Publisher = (*Publisher)(nil)

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.PublisherConfig, log *zap.SugaredLogger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("pcaplens-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject, log: log}, nil
}

// Publish sends every artifact of a report as its own message and waits
// until the server has received them.
func (p *Publisher) Publish(ctx context.Context, report string, artifacts map[string][]byte) error {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		data, err := EncodeArtifact(name, artifacts[name])
		if err != nil {
			return err
		}
		msg := nats.NewMsg(Subject(p.subject, name))
		msg.Header.Set(HeaderReport, report)
		msg.Header.Set(HeaderArtifact, name)
		msg.Data = data
		if err := p.nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("failed to publish %s: %w", name, err)
		}
	}

	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	p.log.Infof("Published %d artifacts of report '%s' to %s.>", len(names), report, p.subject)
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	p.log.Info("NATS connection drained and closed.")
	return nil
}
