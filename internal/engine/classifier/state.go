package classifier

import (
	"slices"
	"time"

	"PcapLens/internal/core/model"
)

// State is everything a classifier accumulates over a run.
type State struct {
	Packets      int
	Bytes        int
	DecodeErrors int
	FirstSeen    time.Time
	LastSeen     time.Time

	Protocols      *Counter[string]
	SrcIPs         *Counter[string]
	DstIPs         *Counter[string]
	SrcPorts       *Counter[uint16]
	DstPorts       *Counter[uint16]
	TCPFlags       *Counter[string]
	DNSQueries     *Counter[string]
	TLSServerNames *Counter[string]
	ErrorTypes     *Counter[string]

	Conversations map[model.ConnectionKey]*Conversation

	// Events is the detection stream in packet order.
	Events []model.Event
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		Protocols:      NewCounter[string](),
		SrcIPs:         NewCounter[string](),
		DstIPs:         NewCounter[string](),
		SrcPorts:       NewCounter[uint16](),
		DstPorts:       NewCounter[uint16](),
		TCPFlags:       NewCounter[string](),
		DNSQueries:     NewCounter[string](),
		TLSServerNames: NewCounter[string](),
		ErrorTypes:     NewCounter[string](),
		Conversations:  make(map[model.ConnectionKey]*Conversation),
	}
}

func (s *State) observeTime(ts time.Time) {
	if s.FirstSeen.IsZero() || ts.Before(s.FirstSeen) {
		s.FirstSeen = ts
	}
	if ts.After(s.LastSeen) {
		s.LastSeen = ts
	}
}

// Merge combines partition states into one. Counters are summed, events are
// ordered by packet ordinal keeping the rule order within a packet, and
// conversations are unioned.
func Merge(states ...*State) *State {
	out := NewState()
	for _, s := range states {
		out.Packets += s.Packets
		out.Bytes += s.Bytes
		out.DecodeErrors += s.DecodeErrors
		if !s.FirstSeen.IsZero() {
			out.observeTime(s.FirstSeen)
			out.observeTime(s.LastSeen)
		}

		out.Protocols.Merge(s.Protocols)
		out.SrcIPs.Merge(s.SrcIPs)
		out.DstIPs.Merge(s.DstIPs)
		out.SrcPorts.Merge(s.SrcPorts)
		out.DstPorts.Merge(s.DstPorts)
		out.TCPFlags.Merge(s.TCPFlags)
		out.DNSQueries.Merge(s.DNSQueries)
		out.TLSServerNames.Merge(s.TLSServerNames)
		out.ErrorTypes.Merge(s.ErrorTypes)

		for key, conv := range s.Conversations {
			if existing, ok := out.Conversations[key]; ok {
				existing.merge(conv)
				continue
			}
			c := newConversation(key, conv.FirstOrdinal, conv.FirstSeen)
			c.merge(conv)
			out.Conversations[key] = c
		}

		out.Events = append(out.Events, s.Events...)
	}

	slices.SortStableFunc(out.Events, func(a, b model.Event) int {
		return a.Ordinal() - b.Ordinal()
	})
	return out
}

// EventsOf returns the events of one kind in detection order.
func EventsOf[T model.Event](s *State) []T {
	var out []T
	for _, e := range s.Events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// CountOf returns the number of events of kind k.
func (s *State) CountOf(k model.EventKind) int {
	n := 0
	for _, e := range s.Events {
		if e.Kind() == k {
			n++
		}
	}
	return n
}
