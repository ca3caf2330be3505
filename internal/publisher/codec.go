// Package publisher hands finished reports to the downstream analysis stage
// over NATS and ingests them on the receiving side.
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// HeaderReport names the report directory a message belongs to.
	HeaderReport = "Pcaplens-Report"
	// HeaderArtifact names the artifact carried by a message.
	HeaderArtifact = "Pcaplens-Artifact"
)

// Subject returns the subject an artifact is published on. Dots of the
// artifact name would split the subject into extra tokens.
func Subject(base, artifact string) string {
	return base + "." + strings.ReplaceAll(artifact, ".", "_")
}

// EncodeArtifact wraps an artifact into a protobuf string Value. The bytes
// are carried unchanged, so JSON objects keep their key order. JSON artifacts
// are checked before they are sent.
func EncodeArtifact(name string, data []byte) ([]byte, error) {
	if isJSON(name) && !json.Valid(data) {
		return nil, fmt.Errorf("artifact %s is not valid JSON", name)
	}
	return proto.Marshal(structpb.NewStringValue(string(data)))
}

// DecodeArtifact is the inverse of EncodeArtifact.
func DecodeArtifact(name string, payload []byte) ([]byte, error) {
	var value structpb.Value
	if err := proto.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	s, ok := value.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("artifact %s is not a string value", name)
	}
	data := []byte(s.StringValue)
	if isJSON(name) && !json.Valid(data) {
		return nil, fmt.Errorf("artifact %s is not valid JSON", name)
	}
	return data, nil
}

func isJSON(name string) bool {
	return strings.HasSuffix(name, ".json")
}
