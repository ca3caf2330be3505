package report

import (
	"context"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/factory"
	writermodel "PcapLens/internal/model"

	"go.uber.org/zap"
)

func init() {
	factory.RegisterWriter("json", func(_ config.WriterDef, _ *config.Config, log *zap.SugaredLogger) (writermodel.Writer, error) {
		return NewJSONWriter(log), nil
	})
}

// JSONWriter writes summary.json, errors_detailed.json and conversations.json.
type JSONWriter struct {
	log *zap.SugaredLogger
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(log *zap.SugaredLogger) *JSONWriter {
	return &JSONWriter{log: log}
}

func (w *JSONWriter) Name() string { return "json" }

func (w *JSONWriter) Write(_ context.Context, bundle *model.Bundle, outDir string) error {
	artifacts, err := JSONArtifacts(bundle)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if err := writeFile(outDir, a.Name, a.Data); err != nil {
			return err
		}
		w.log.Infof("Created %s", a.Name)
	}
	return nil
}
