package factory

import (
	"context"
	"testing"

	"PcapLens/internal/config"
	coremodel "PcapLens/internal/core/model"
	"PcapLens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubWriter struct{ name string }

func (w *stubWriter) Name() string { return w.name }

func (w *stubWriter) Write(context.Context, *coremodel.Bundle, string) error { return nil }

func init() {
	RegisterWriter("stub", func(def config.WriterDef, _ *config.Config, _ *zap.SugaredLogger) (model.Writer, error) {
		return &stubWriter{name: def.Type}, nil
	})
}

func TestCreate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analyzer.Writers = []config.WriterDef{
		{Type: "stub", Enabled: true},
		{Type: "missing", Enabled: false},
	}

	writers, err := Create(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, "stub", writers[0].Name())
	assert.True(t, Registered("stub"))
	assert.False(t, Registered("missing"))
}

func TestCreate_UnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analyzer.Writers = []config.WriterDef{{Type: "missing", Enabled: true}}

	_, err := Create(cfg, zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "unknown writer type")
}

func TestRegisterWriter_Duplicate(t *testing.T) {
	assert.Panics(t, func() {
		RegisterWriter("stub", nil)
	})
}
