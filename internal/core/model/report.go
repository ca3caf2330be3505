package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// RankedEntry is one entry of a Ranked object.
type RankedEntry struct {
	Name  string
	Count int
}

// Ranked is a name→count mapping whose JSON object keeps the entry order,
// so descending-count order survives serialization.
type Ranked []RankedEntry

// MarshalJSON writes the entries as a JSON object in slice order.
func (r Ranked) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		fmt.Fprintf(&buf, ":%d", e.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order.
func (r *Ranked) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ranked: expected object, got %v", tok)
	}
	out := Ranked{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("ranked: unexpected key %v", tok)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("ranked: value of %q: %w", name, err)
		}
		out = append(out, RankedEntry{Name: name, Count: count})
	}
	*r = out
	return nil
}

// Get returns the count stored under name.
func (r Ranked) Get(name string) (int, bool) {
	for _, e := range r {
		if e.Name == name {
			return e.Count, true
		}
	}
	return 0, false
}

// Metadata describes the capture a report was built from.
type Metadata struct {
	SourceFile    string  `json:"source_file"`
	TotalPackets  int     `json:"total_packets"`
	TotalBytes    int     `json:"total_bytes"`
	FileSizeBytes int64   `json:"file_size_bytes"`
	FileSizeMB    float64 `json:"file_size_mb"`
	LinkType      string  `json:"link_type"`
	CaptureStart  float64 `json:"capture_start"`
	CaptureEnd    float64 `json:"capture_end"`
	DecodeErrors  int     `json:"decode_errors"`
}

// AddressCount is one entry of a top talkers list.
type AddressCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// PortCount is one entry of a top ports list.
type PortCount struct {
	Port  uint16 `json:"port"`
	Count int    `json:"count"`
}

// DomainCount is one entry of a top names list.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// TopPorts groups the source and destination port rankings.
type TopPorts struct {
	Source      []PortCount `json:"source"`
	Destination []PortCount `json:"destination"`
}

// ErrorSummary holds the error totals of a capture.
type ErrorSummary struct {
	TotalErrors        int    `json:"total_errors"`
	ErrorTypes         Ranked `json:"error_types"`
	TCPResets          int    `json:"tcp_resets"`
	TCPRetransmissions int    `json:"tcp_retransmissions"`
	DNSFailures        int    `json:"dns_failures"`
	HTTPErrors         int    `json:"http_errors"`
	ConnectionFailures int    `json:"connection_failures"`
	OversizedFrames    int    `json:"oversized_frames"`
	ICMPUnreachable    int    `json:"icmp_unreachable"`
}

// Summary is the content of summary.json.
type Summary struct {
	Metadata             Metadata       `json:"metadata"`
	ProtocolDistribution Ranked         `json:"protocol_distribution"`
	TopSources           []AddressCount `json:"top_sources"`
	TopDestinations      []AddressCount `json:"top_destinations"`
	TopPorts             TopPorts       `json:"top_ports"`
	TCPFlagsDistribution Ranked         `json:"tcp_flags_distribution"`
	ErrorSummary         ErrorSummary   `json:"error_summary"`
	TopDNSQueries        []DomainCount  `json:"top_dns_queries"`
	TopTLSServerNames    []DomainCount  `json:"top_tls_server_names"`
}

// ErrorDetails is the content of errors_detailed.json. Every list is a
// prefix of the detection stream.
type ErrorDetails struct {
	TCPResets          []TCPReset          `json:"tcp_resets"`
	TCPRetransmissions []TCPRetransmission `json:"tcp_retransmissions"`
	DNSFailures        []DNSFailure        `json:"dns_failures"`
	HTTPErrors         []HTTPError         `json:"http_errors"`
	ConnectionFailures []ConnectionFailure `json:"connection_failures"`
	LargePackets       []OversizedFrame    `json:"large_packets"`
}

// FlagCount is one entry of a conversation's flag histogram.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// Conversation is one element of conversations.json.
type Conversation struct {
	Conversation    string      `json:"conversation"`
	Packets         int         `json:"packets"`
	Bytes           int         `json:"bytes"`
	DurationSeconds float64     `json:"duration_seconds"`
	FlagsSummary    []FlagCount `json:"flags_summary"`
}

// Bundle groups the report artifacts of one capture.
type Bundle struct {
	Summary       *Summary
	Errors        *ErrorDetails
	Conversations []Conversation
}

// Artifact names shared by writers, the publisher and the API.
const (
	ArtifactSummary       = "summary.json"
	ArtifactErrors        = "errors_detailed.json"
	ArtifactConversations = "conversations.json"
	ArtifactQuickStats    = "quick_stats.txt"
	ArtifactTokenEstimate = "token_estimate.txt"
	MarkerIncomplete      = "INCOMPLETE"
)

// Artifacts lists every artifact a report directory may hold.
var Artifacts = []string{
	ArtifactSummary,
	ArtifactErrors,
	ArtifactConversations,
	ArtifactQuickStats,
	ArtifactTokenEstimate,
}

// IsArtifact reports whether name is a known artifact.
func IsArtifact(name string) bool {
	return slices.Contains(Artifacts, name)
}

// ValidReportName reports whether name can be used as a single directory
// below a reports root.
func ValidReportName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
