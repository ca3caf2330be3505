package model

import (
	"context"

	coremodel "PcapLens/internal/core/model"
)

// Writer defines a generic interface for exporting the report bundle of one
// capture.
type Writer interface {
	// Name returns the configured writer type.
	Name() string

	// Write persists the bundle. File based writers place their artifacts in
	// outDir.
	Write(ctx context.Context, bundle *coremodel.Bundle, outDir string) error
}
