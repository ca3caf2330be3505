package model

import "context"

// Publisher hands the artifacts of a finished report directory to the
// downstream analysis stage.
type Publisher interface {
	Publish(ctx context.Context, report string, artifacts map[string][]byte) error
	Close() error
}
