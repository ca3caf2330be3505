package anonymizer

import (
	"encoding/binary"
	"net"
	"net/netip"

	"PcapLens/internal/core/model"
	"PcapLens/internal/engine/protocol"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
)

// Stats counts what the sanitizer changed.
type Stats struct {
	TotalPackets         int `json:"total_packets"`
	IPAnonymized         int `json:"ip_anonymized"`
	MACAnonymized        int `json:"mac_anonymized"`
	DNSSanitized         int `json:"dns_sanitized"`
	HTTPSanitized        int `json:"http_sanitized"`
	TLSSanitized         int `json:"tls_sanitized"`
	SensitiveDataRemoved int `json:"sensitive_data_removed"`
	RewriteFailures      int `json:"rewrite_failures"`
	DecodeErrors         int `json:"decode_errors"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.TotalPackets += other.TotalPackets
	s.IPAnonymized += other.IPAnonymized
	s.MACAnonymized += other.MACAnonymized
	s.DNSSanitized += other.DNSSanitized
	s.HTTPSanitized += other.HTTPSanitized
	s.TLSSanitized += other.TLSSanitized
	s.SensitiveDataRemoved += other.SensitiveDataRemoved
	s.RewriteFailures += other.RewriteFailures
	s.DecodeErrors += other.DecodeErrors
}

// Result is the rewritten form of one record.
type Result struct {
	Data []byte
	// WireLength is the original wire length adjusted by the size change of
	// the rewritten payload.
	WireLength int
	Stats      Stats
}

// Sanitizer rewrites whole frames. It is safe for concurrent use: the only
// shared state is the Anonymizer's identity maps.
type Sanitizer struct {
	anon     *Anonymizer
	redactor *Redactor
	log      *zap.SugaredLogger
}

// SanitizerOption configures a Sanitizer.
type SanitizerOption func(*Sanitizer)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) SanitizerOption {
	return func(s *Sanitizer) {
		s.log = log
	}
}

// NewSanitizer creates a Sanitizer.
func NewSanitizer(anon *Anonymizer, redactor *Redactor, options ...SanitizerOption) *Sanitizer {
	s := &Sanitizer{
		anon:     anon,
		redactor: redactor,
		log:      zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Rewrite returns an anonymized copy of rec. The record itself is not
// modified. Layers that cannot be decoded are copied through unchanged.
func (s *Sanitizer) Rewrite(rec *model.Record, linkType layers.LinkType) Result {
	data := append([]byte(nil), rec.Data...)
	p := protocol.Decode(&model.Record{Index: rec.Index, CaptureInfo: rec.CaptureInfo, Data: data}, linkType)

	st := Stats{TotalPackets: 1}
	if p.DecodeErr != nil {
		st.DecodeErrors++
		s.log.Debugw("Packet only partially decoded", "error", p.DecodeErr)
	}

	s.rewriteLink(p, &st)
	s.rewriteNetwork(p, &st)
	frame := s.rewritePayload(p, data, &st)
	if p.IPv4 != nil {
		fixIPv4Checksum(frame, p.Offsets.Network)
	}

	return Result{
		Data:       frame,
		WireLength: rec.CaptureInfo.Length + len(frame) - len(data),
		Stats:      st,
	}
}

func (s *Sanitizer) rewriteMAC(b []byte, st *Stats) {
	if len(b) != 6 {
		return
	}
	anon := s.anon.MAC(net.HardwareAddr(b))
	if &anon[0] == &b[0] {
		return
	}
	copy(b, anon)
	st.MACAnonymized++
}

// rewriteAddr replaces the address stored in b (4 or 16 bytes) in place.
func (s *Sanitizer) rewriteAddr(b []byte, st *Stats) {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return
	}
	anon := s.anon.IP(addr.Unmap())
	if len(b) == 4 {
		v := anon.As4()
		copy(b, v[:])
	} else {
		v := anon.As16()
		copy(b, v[:])
	}
	st.IPAnonymized++
}

func (s *Sanitizer) rewriteLink(p *model.DecodedPacket, st *Stats) {
	if p.Ethernet != nil {
		s.rewriteMAC(p.Ethernet.SrcMAC, st)
		s.rewriteMAC(p.Ethernet.DstMAC, st)
	}
	if p.ARP != nil && p.ARP.AddrType == layers.LinkTypeEthernet {
		s.rewriteMAC(p.ARP.SourceHwAddress, st)
		s.rewriteMAC(p.ARP.DstHwAddress, st)
		if p.ARP.Protocol == layers.EthernetTypeIPv4 {
			s.rewriteAddr(p.ARP.SourceProtAddress, st)
			s.rewriteAddr(p.ARP.DstProtAddress, st)
		}
	}
}

func (s *Sanitizer) rewriteNetwork(p *model.DecodedPacket, st *Stats) {
	switch {
	case p.IPv4 != nil:
		s.rewriteAddr(p.IPv4.SrcIP, st)
		s.rewriteAddr(p.IPv4.DstIP, st)
	case p.IPv6 != nil:
		s.rewriteAddr(p.IPv6.SrcIP, st)
		s.rewriteAddr(p.IPv6.DstIP, st)
	default:
		return
	}

	for _, inner := range p.Inner {
		switch ip := inner.(type) {
		case *layers.IPv4:
			s.rewriteAddr(ip.SrcIP, st)
			s.rewriteAddr(ip.DstIP, st)
			if len(ip.Contents) >= 20 {
				binary.BigEndian.PutUint16(ip.Contents[10:], checksum(ip.Contents, 10))
			}
		case *layers.IPv6:
			s.rewriteAddr(ip.SrcIP, st)
			s.rewriteAddr(ip.DstIP, st)
		}
	}

	if p.ICMPv4 != nil {
		s.rewriteICMPv4(p.ICMPv4, st)
	}
	if p.ICMPv6 != nil {
		s.rewriteICMPv6(p.ICMPv6, st)
	}

	// The pseudo-header changed; transport checksums are left unset.
	if p.TCP != nil && len(p.TCP.Contents) >= 18 {
		binary.BigEndian.PutUint16(p.TCP.Contents[16:], 0)
	}
	if p.UDP != nil && len(p.UDP.Contents) >= 8 {
		binary.BigEndian.PutUint16(p.UDP.Contents[6:], 0)
	}
}

// rewriteICMPv4 anonymizes the IPv4 header quoted by ICMP error messages.
func (s *Sanitizer) rewriteICMPv4(icmp *layers.ICMPv4, st *Stats) {
	switch icmp.TypeCode.Type() {
	case layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4TypeSourceQuench,
		layers.ICMPv4TypeRedirect, layers.ICMPv4TypeTimeExceeded, layers.ICMPv4TypeParameterProblem:
	default:
		return
	}
	quoted := icmp.Payload
	if len(quoted) < 20 || quoted[0]>>4 != 4 {
		return
	}
	s.rewriteAddr(quoted[12:16], st)
	s.rewriteAddr(quoted[16:20], st)
	fixIPv4Checksum(quoted, 0)

	if len(icmp.Contents) >= 4 {
		msg := make([]byte, 0, len(icmp.Contents)+len(quoted))
		msg = append(msg, icmp.Contents...)
		msg = append(msg, quoted...)
		binary.BigEndian.PutUint16(icmp.Contents[2:], checksum(msg, 2))
	}
}

// rewriteICMPv6 anonymizes the IPv6 header quoted by ICMPv6 error messages
// and unsets the checksum, which covers the rewritten pseudo-header.
func (s *Sanitizer) rewriteICMPv6(icmp *layers.ICMPv6, st *Stats) {
	if len(icmp.Contents) >= 4 {
		binary.BigEndian.PutUint16(icmp.Contents[2:], 0)
	}
	if icmp.TypeCode.Type() > layers.ICMPv6TypeParameterProblem {
		return
	}
	// 4 bytes of type specific data precede the quoted header.
	quoted := icmp.Payload
	if len(quoted) < 4+40 || quoted[4]>>4 != 6 {
		return
	}
	s.rewriteAddr(quoted[4+8:4+24], st)
	s.rewriteAddr(quoted[4+24:4+40], st)
}

// rewritePayload rewrites DNS, TLS and HTTP payloads and splices the result
// back into the frame, fixing the IP and UDP length fields.
func (s *Sanitizer) rewritePayload(p *model.DecodedPacket, data []byte, st *Stats) []byte {
	if len(p.Inner) > 0 || p.Offsets.Payload < 0 || len(p.Payload) == 0 {
		return data
	}

	old := p.Payload
	payload := old
	changed := false

	if p.DNS != nil {
		msg, err := s.anon.rewriteDNS(p.DNS)
		if err != nil {
			st.RewriteFailures++
			s.log.Debugw("Skipping DNS rewrite", "packet", p.Index, "error", err)
			return data
		}
		if p.DNSOverTCP {
			payload = binary.BigEndian.AppendUint16(nil, uint16(len(msg)))
			payload = append(payload, msg...)
		} else {
			payload = msg
		}
		changed = true
		st.DNSSanitized++
	} else {
		if p.TLS != nil {
			if out, ok := s.anon.rewriteSNI(payload, p.TLS); ok {
				payload = out
				changed = true
				st.TLSSanitized++
			} else {
				st.RewriteFailures++
			}
		}
		if p.HTTP != nil {
			out, res := s.redactor.Redact(payload)
			if res.Headers > 0 || res.Sensitive > 0 {
				payload = out
				changed = true
				st.HTTPSanitized += res.Headers
				st.SensitiveDataRemoved += res.Sensitive
			}
		}
	}
	if !changed {
		return data
	}

	delta := len(payload) - len(old)
	off := p.Offsets.Payload
	tail := data[off+len(old):]

	frame := make([]byte, 0, off+len(payload)+len(tail))
	frame = append(frame, data[:off]...)
	frame = append(frame, payload...)
	frame = append(frame, tail...)

	if delta != 0 && !adjustFrameLengths(frame, p, delta) {
		st.RewriteFailures++
		s.log.Debugw("Rewritten payload does not fit the length fields", "packet", p.Index)
		return data
	}
	return frame
}

// adjustFrameLengths shifts the IP and UDP length fields by delta.
func adjustFrameLengths(frame []byte, p *model.DecodedPacket, delta int) bool {
	var fields []model.LengthField
	switch {
	case p.IPv4 != nil:
		fields = append(fields, model.LengthField{Offset: p.Offsets.Network + 2, Width: 2})
	case p.IPv6 != nil && p.IPv6.Length != 0:
		fields = append(fields, model.LengthField{Offset: p.Offsets.Network + 4, Width: 2})
	}
	if p.UDP != nil {
		fields = append(fields, model.LengthField{Offset: p.Offsets.Transport + 4, Width: 2})
	}

	for _, f := range fields {
		if !adjustLength(frame, f, delta) {
			return false
		}
	}
	return true
}
