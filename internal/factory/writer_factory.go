package factory

import (
	"fmt"

	"PcapLens/internal/config"
	"PcapLens/internal/model"

	"go.uber.org/zap"
)

// WriterFactory defines a function that creates a report writer from its
// definition.
type WriterFactory func(def config.WriterDef, cfg *config.Config, log *zap.SugaredLogger) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered reports whether a writer type is known.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Create creates the enabled writers of the analyzer config, in config order.
func Create(cfg *config.Config, log *zap.SugaredLogger) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range cfg.Analyzer.Writers {
		if !def.Enabled {
			continue
		}
		log.Debugf("Creating report writer of type '%s'", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(def, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}
