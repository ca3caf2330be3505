package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"PcapLens/internal/core/model"
	writermodel "PcapLens/internal/model"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Export runs every writer over the bundle. All writers are attempted even
// when one fails; on any failure an INCOMPLETE marker is left in outDir and
// the combined error is returned.
func Export(ctx context.Context, bundle *model.Bundle, outDir string, writers []writermodel.Writer, log *zap.SugaredLogger) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	// A previous failed run may have left a marker behind.
	if err := os.Remove(filepath.Join(outDir, model.MarkerIncomplete)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear incomplete marker: %w", err)
	}

	var result *multierror.Error
	for _, w := range writers {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := w.Write(ctx, bundle, outDir); err != nil {
			log.Errorw("report writer failed", "writer", w.Name(), "error", err)
			result = multierror.Append(result, fmt.Errorf("writer %s: %w", w.Name(), err))
			continue
		}
		log.Debugw("report writer finished", "writer", w.Name())
	}

	if err := result.ErrorOrNil(); err != nil {
		marker := filepath.Join(outDir, model.MarkerIncomplete)
		if werr := os.WriteFile(marker, []byte(err.Error()+"\n"), 0644); werr != nil {
			return multierror.Append(err, fmt.Errorf("failed to write incomplete marker: %w", werr))
		}
		return err
	}
	return nil
}

// writeFile writes an artifact through a temporary file so readers never
// observe a partially written artifact.
func writeFile(outDir, name string, data []byte) error {
	tmp, err := os.CreateTemp(outDir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(outDir, name)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}
