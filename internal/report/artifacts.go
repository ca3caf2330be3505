package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"PcapLens/internal/core/model"
)

// Artifact is one serialized report file.
type Artifact struct {
	Name string
	Data []byte
}

// EncodeJSON serializes v the way every JSON artifact is written.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONArtifacts serializes the three JSON artifacts of a bundle.
func JSONArtifacts(bundle *model.Bundle) ([]Artifact, error) {
	parts := []struct {
		name string
		v    any
	}{
		{model.ArtifactSummary, bundle.Summary},
		{model.ArtifactErrors, bundle.Errors},
		{model.ArtifactConversations, bundle.Conversations},
	}

	artifacts := make([]Artifact, 0, len(parts))
	for _, p := range parts {
		data, err := EncodeJSON(p.v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", p.name, err)
		}
		artifacts = append(artifacts, Artifact{Name: p.name, Data: data})
	}
	return artifacts, nil
}
