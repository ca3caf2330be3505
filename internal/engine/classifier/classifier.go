// Package classifier turns decoded packets into error events and running
// traffic aggregates.
package classifier

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"PcapLens/internal/config"
	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/protocol"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
)

const unknownEndpoint = "unknown"

// httpErrorCodes are checked in this order; the first match wins.
var httpErrorCodes = []string{"400", "401", "403", "404", "500", "502", "503", "504"}

// Classifier applies the detection rules to packets of one partition. It is
// not safe for concurrent use; per-connection state requires the packets of
// a connection to arrive in capture order.
type Classifier struct {
	thresholds config.ThresholdConfig
	state      *State
	tracker    *RetransmissionTracker
	log        *zap.SugaredLogger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(c *Classifier) {
		c.log = log
	}
}

// New creates a Classifier with an empty state.
func New(thresholds config.ThresholdConfig, options ...Option) *Classifier {
	c := &Classifier{
		thresholds: thresholds,
		state:      NewState(),
		tracker:    NewRetransmissionTracker(thresholds.HeaderOnlyCutoff),
		log:        zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// State returns the accumulated state.
func (c *Classifier) State() *State {
	return c.state
}

// Classify updates the aggregates with p and returns the events it raised,
// in rule order.
func (c *Classifier) Classify(p *model.DecodedPacket) []model.Event {
	s := c.state
	s.Packets++
	s.Bytes += p.Length
	s.observeTime(p.Timestamp)
	if p.DecodeErr != nil {
		s.DecodeErrors++
		c.log.Debugw("Packet only partially decoded", "error", p.DecodeErr)
	}

	c.countProtocols(p)

	var events []model.Event
	key, hasKey := p.Key()
	if hasKey {
		events = c.classifyIP(p, key, events)
	}
	events = c.classifyDNS(p, key, hasKey, events)
	events = c.classifyHTTP(p, key, events)

	if p.Length > c.thresholds.OversizedFrame {
		src, dst := unknownEndpoint, unknownEndpoint
		if hasKey {
			src, dst = key.SrcIP.String(), key.DstIP.String()
		}
		events = append(events, model.OversizedFrame{
			EventBase: model.NewEventBase(p.Index, p.Timestamp),
			Size:      p.Length,
			Src:       src,
			Dst:       dst,
		})
	}

	for _, e := range events {
		if t := e.ErrorType(); t != "" {
			s.ErrorTypes.Add(t, p.Index)
		}
	}
	s.Events = append(s.Events, events...)
	return events
}

func (c *Classifier) countProtocols(p *model.DecodedPacket) {
	s := c.state
	switch {
	case p.IPv4 != nil:
		s.Protocols.Add("IPv4", p.Index)
	case p.IPv6 != nil:
		s.Protocols.Add("IPv6", p.Index)
	case p.EtherType != "":
		s.Protocols.Add(p.EtherType, p.Index)
	}

	switch {
	case p.TCP != nil:
		s.Protocols.Add("TCP", p.Index)
	case p.UDP != nil:
		s.Protocols.Add("UDP", p.Index)
	case p.ICMPv4 != nil:
		s.Protocols.Add("ICMP", p.Index)
	case p.ICMPv6 != nil:
		s.Protocols.Add("ICMPv6", p.Index)
	}

	switch {
	case p.DNS != nil:
		s.Protocols.Add("DNS", p.Index)
	case p.TLS != nil:
		s.Protocols.Add("TLS", p.Index)
	case p.HTTP != nil:
		s.Protocols.Add("HTTP", p.Index)
	}
}

func (c *Classifier) classifyIP(p *model.DecodedPacket, key model.ConnectionKey, events []model.Event) []model.Event {
	s := c.state
	s.SrcIPs.Add(key.SrcIP.String(), p.Index)
	s.DstIPs.Add(key.DstIP.String(), p.Index)
	if key.HasPorts {
		s.SrcPorts.Add(key.SrcPort, p.Index)
		s.DstPorts.Add(key.DstPort, p.Index)
	}

	flags := ""
	if p.TCP != nil {
		flags = protocol.FlagCombo(p.TCP)
		s.TCPFlags.Add(flags, p.Index)
	}

	conv, ok := s.Conversations[key]
	if !ok {
		conv = newConversation(key, p.Index, p.Timestamp)
		s.Conversations[key] = conv
	}
	conv.add(p, flags)

	if p.TLS != nil && p.TLS.ServerName != "" {
		s.TLSServerNames.Add(p.TLS.ServerName, p.Index)
	}

	switch {
	case p.TCP != nil:
		events = c.classifyTCP(p, key, events)
	case p.ICMPv4 != nil:
		if p.ICMPv4.TypeCode.Type() == layers.ICMPv4TypeDestinationUnreachable {
			events = append(events, c.unreachable(p, key, p.ICMPv4.TypeCode.Code()))
		}
	case p.ICMPv6 != nil:
		if p.ICMPv6.TypeCode.Type() == layers.ICMPv6TypeDestinationUnreachable {
			events = append(events, c.unreachable(p, key, p.ICMPv6.TypeCode.Code()))
		}
	}
	return events
}

func (c *Classifier) unreachable(p *model.DecodedPacket, key model.ConnectionKey, code uint8) model.Event {
	return model.ICMPUnreachable{
		EventBase: model.NewEventBase(p.Index, p.Timestamp),
		Src:       key.SrcIP.String(),
		Dst:       key.DstIP.String(),
		Code:      code,
	}
}

func (c *Classifier) classifyTCP(p *model.DecodedPacket, key model.ConnectionKey, events []model.Event) []model.Event {
	tcp := p.TCP
	base := model.NewEventBase(p.Index, p.Timestamp)

	if tcp.RST {
		events = append(events, model.TCPReset{
			EventBase: base,
			Src:       key.Src(),
			Dst:       key.Dst(),
			Seq:       tcp.Seq,
			Ack:       tcp.Ack,
		})
	}

	if c.tracker.Observe(key, tcp.Seq, p.Length) {
		events = append(events, model.TCPRetransmission{
			EventBase: base,
			Src:       key.Src(),
			Dst:       key.Dst(),
			Seq:       tcp.Seq,
			Length:    p.Length,
		})
	}

	if tcp.SYN && !tcp.ACK {
		events = append(events, model.ConnectionFailure{
			EventBase: base,
			Src:       key.Src(),
			Dst:       key.Dst(),
			Type:      model.ConnectionFailureSynNoResponse,
		})
	}
	return events
}

func (c *Classifier) classifyDNS(p *model.DecodedPacket, key model.ConnectionKey, hasKey bool, events []model.Event) []model.Event {
	dns := p.DNS
	if dns == nil {
		return events
	}

	name := protocol.QueryName(dns)
	if !dns.QR {
		if name != "" {
			c.state.DNSQueries.Add(name, p.Index)
		}
		return events
	}
	if dns.ResponseCode == layers.DNSResponseCodeNoErr {
		return events
	}

	if name == "" {
		name = unknownEndpoint
	}
	src, dst := unknownEndpoint, unknownEndpoint
	if hasKey {
		src, dst = key.Src(), key.Dst()
	}
	return append(events, model.DNSFailure{
		EventBase: model.NewEventBase(p.Index, p.Timestamp),
		Src:       src,
		Dst:       dst,
		Query:     name,
		RCode:     uint8(dns.ResponseCode),
		RCodeName: protocol.RCodeName(uint8(dns.ResponseCode)),
	})
}

func (c *Classifier) classifyHTTP(p *model.DecodedPacket, key model.ConnectionKey, events []model.Event) []model.Event {
	if p.DNS != nil || !bytes.Contains(p.Payload, []byte("HTTP/")) {
		return events
	}

	for _, code := range httpErrorCodes {
		if !bytes.Contains(p.Payload, []byte("HTTP/1.1 "+code)) && !bytes.Contains(p.Payload, []byte("HTTP/1.0 "+code)) {
			continue
		}
		src, dst := unknownEndpoint, unknownEndpoint
		if p.TCP != nil {
			src, dst = key.Src(), key.Dst()
		}
		return append(events, model.HTTPError{
			EventBase:  model.NewEventBase(p.Index, p.Timestamp),
			Src:        src,
			Dst:        dst,
			StatusCode: code,
			Preview:    preview(p.Payload, c.thresholds.PreviewLength),
		})
	}
	return events
}

// preview returns the first n characters of payload read as UTF-8, dropping
// invalid bytes.
func preview(payload []byte, n int) string {
	text := strings.ToValidUTF8(string(payload), "")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
