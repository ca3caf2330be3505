// Package report turns the classifier state into bounded report artifacts
// and exports them.
package report

import (
	"cmp"
	"math"
	"slices"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/classifier"
)

// Meta describes the capture file a state was built from.
type Meta struct {
	SourceFile string
	FileSize   int64
	LinkType   string
}

// Build derives the report bundle from a finished state. It does not modify
// the state and its output only depends on the state, meta and limits.
func Build(state *classifier.State, meta Meta, limits config.LimitConfig) *model.Bundle {
	return &model.Bundle{
		Summary:       buildSummary(state, meta, limits),
		Errors:        buildErrorDetails(state, limits),
		Conversations: buildConversations(state, limits),
	}
}

func buildSummary(s *classifier.State, meta Meta, limits config.LimitConfig) *model.Summary {
	md := model.Metadata{
		SourceFile:    meta.SourceFile,
		TotalPackets:  s.Packets,
		TotalBytes:    s.Bytes,
		FileSizeBytes: meta.FileSize,
		FileSizeMB:    float64(meta.FileSize) / (1024 * 1024),
		LinkType:      meta.LinkType,
		DecodeErrors:  s.DecodeErrors,
	}
	if !s.FirstSeen.IsZero() {
		md.CaptureStart = model.Seconds(s.FirstSeen)
		md.CaptureEnd = model.Seconds(s.LastSeen)
	}

	return &model.Summary{
		Metadata:             md,
		ProtocolDistribution: ranked(s.Protocols.MostCommon(0)),
		TopSources:           addresses(s.SrcIPs.MostCommon(limits.TopTalkers)),
		TopDestinations:      addresses(s.DstIPs.MostCommon(limits.TopTalkers)),
		TopPorts: model.TopPorts{
			Source:      ports(s.SrcPorts.MostCommon(limits.TopTalkers)),
			Destination: ports(s.DstPorts.MostCommon(limits.TopTalkers)),
		},
		TCPFlagsDistribution: ranked(s.TCPFlags.MostCommon(limits.TopFlags)),
		ErrorSummary: model.ErrorSummary{
			TotalErrors:        s.ErrorTypes.Total(),
			ErrorTypes:         ranked(s.ErrorTypes.MostCommon(0)),
			TCPResets:          s.CountOf(model.KindTCPReset),
			TCPRetransmissions: s.CountOf(model.KindTCPRetransmission),
			DNSFailures:        s.CountOf(model.KindDNSFailure),
			HTTPErrors:         s.CountOf(model.KindHTTPError),
			ConnectionFailures: s.CountOf(model.KindConnectionFailure),
			OversizedFrames:    s.CountOf(model.KindOversizedFrame),
			ICMPUnreachable:    s.CountOf(model.KindICMPUnreachable),
		},
		TopDNSQueries:     domains(s.DNSQueries.MostCommon(limits.TopDNSQueries)),
		TopTLSServerNames: domains(s.TLSServerNames.MostCommon(limits.TopServerNames)),
	}
}

func buildErrorDetails(s *classifier.State, limits config.LimitConfig) *model.ErrorDetails {
	return &model.ErrorDetails{
		TCPResets:          firstN(classifier.EventsOf[model.TCPReset](s), limits.TCPResets),
		TCPRetransmissions: firstN(classifier.EventsOf[model.TCPRetransmission](s), limits.TCPRetransmissions),
		DNSFailures:        firstN(classifier.EventsOf[model.DNSFailure](s), limits.DNSFailures),
		HTTPErrors:         firstN(classifier.EventsOf[model.HTTPError](s), limits.HTTPErrors),
		ConnectionFailures: firstN(classifier.EventsOf[model.ConnectionFailure](s), limits.ConnectionFailures),
		LargePackets:       firstN(classifier.EventsOf[model.OversizedFrame](s), limits.LargePackets),
	}
}

// buildConversations ranks conversations by packet count, earlier
// conversations first on ties.
func buildConversations(s *classifier.State, limits config.LimitConfig) []model.Conversation {
	convs := make([]*classifier.Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		convs = append(convs, c)
	}
	slices.SortFunc(convs, func(a, b *classifier.Conversation) int {
		if a.Packets != b.Packets {
			return cmp.Compare(b.Packets, a.Packets)
		}
		return cmp.Compare(a.FirstOrdinal, b.FirstOrdinal)
	})
	convs = convs[:min(len(convs), max(limits.Conversations, 0))]

	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		flags := make([]model.FlagCount, 0)
		for _, e := range c.Flags.MostCommon(limits.ConversationFlags) {
			flags = append(flags, model.FlagCount{Flag: e.Key, Count: e.Count})
		}
		out = append(out, model.Conversation{
			Conversation:    c.Key.String(),
			Packets:         c.Packets,
			Bytes:           c.Bytes,
			DurationSeconds: math.Round(c.Duration().Seconds()*1000) / 1000,
			FlagsSummary:    flags,
		})
	}
	return out
}

// firstN returns the prefix of at most n events, never nil.
func firstN[T any](events []T, n int) []T {
	n = min(len(events), max(n, 0))
	out := make([]T, n)
	copy(out, events)
	return out
}

func ranked(entries []classifier.Entry[string]) model.Ranked {
	out := make(model.Ranked, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.RankedEntry{Name: e.Key, Count: e.Count})
	}
	return out
}

func addresses(entries []classifier.Entry[string]) []model.AddressCount {
	out := make([]model.AddressCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.AddressCount{IP: e.Key, Count: e.Count})
	}
	return out
}

func ports(entries []classifier.Entry[uint16]) []model.PortCount {
	out := make([]model.PortCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.PortCount{Port: e.Key, Count: e.Count})
	}
	return out
}

func domains(entries []classifier.Entry[string]) []model.DomainCount {
	out := make([]model.DomainCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.DomainCount{Domain: e.Key, Count: e.Count})
	}
	return out
}
