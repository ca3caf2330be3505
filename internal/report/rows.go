package report

import (
	"math"
	"strconv"
	"time"

	"PcapLens/internal/core/model"
)

// ConversationRow is one conversation as stored by the database writers.
type ConversationRow struct {
	Capture         string
	Rank            uint32
	Conversation    string
	Packets         uint64
	Bytes           uint64
	DurationSeconds float64
	TopFlag         string
}

// ErrorEventRow is one reported error event as stored by the database
// writers.
type ErrorEventRow struct {
	Capture   string    `json:"capture"`
	Kind      string    `json:"kind"`
	PacketNum uint64    `json:"packet_num"`
	Timestamp time.Time `json:"timestamp"`
	Src       string    `json:"src"`
	Dst       string    `json:"dst"`
	Detail    string    `json:"detail"`
}

// ConversationRows flattens the conversations of a bundle in report order.
func ConversationRows(bundle *model.Bundle) []ConversationRow {
	capture := bundle.Summary.Metadata.SourceFile
	rows := make([]ConversationRow, 0, len(bundle.Conversations))
	for i, c := range bundle.Conversations {
		row := ConversationRow{
			Capture:         capture,
			Rank:            uint32(i + 1),
			Conversation:    c.Conversation,
			Packets:         uint64(c.Packets),
			Bytes:           uint64(c.Bytes),
			DurationSeconds: c.DurationSeconds,
		}
		if len(c.FlagsSummary) > 0 {
			row.TopFlag = c.FlagsSummary[0].Flag
		}
		rows = append(rows, row)
	}
	return rows
}

// ErrorEventRows flattens the reported error events of a bundle, grouped by
// kind in report order.
func ErrorEventRows(bundle *model.Bundle) []ErrorEventRow {
	capture := bundle.Summary.Metadata.SourceFile
	e := bundle.Errors
	var rows []ErrorEventRow
	add := func(kind model.EventKind, base model.EventBase, src, dst, detail string) {
		rows = append(rows, ErrorEventRow{
			Capture:   capture,
			Kind:      kind.String(),
			PacketNum: uint64(base.PacketNum),
			Timestamp: fromSeconds(base.Timestamp),
			Src:       src,
			Dst:       dst,
			Detail:    detail,
		})
	}

	for _, ev := range e.TCPResets {
		add(model.KindTCPReset, ev.EventBase, ev.Src, ev.Dst, "seq="+strconv.FormatUint(uint64(ev.Seq), 10))
	}
	for _, ev := range e.TCPRetransmissions {
		add(model.KindTCPRetransmission, ev.EventBase, ev.Src, ev.Dst, "len="+strconv.Itoa(ev.Length))
	}
	for _, ev := range e.DNSFailures {
		add(model.KindDNSFailure, ev.EventBase, ev.Src, ev.Dst, ev.Query+" "+ev.RCodeName)
	}
	for _, ev := range e.HTTPErrors {
		add(model.KindHTTPError, ev.EventBase, ev.Src, ev.Dst, ev.StatusCode)
	}
	for _, ev := range e.ConnectionFailures {
		add(model.KindConnectionFailure, ev.EventBase, ev.Src, ev.Dst, ev.Type)
	}
	for _, ev := range e.LargePackets {
		add(model.KindOversizedFrame, ev.EventBase, ev.Src, ev.Dst, "size="+strconv.Itoa(ev.Size))
	}
	return rows
}

func fromSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
