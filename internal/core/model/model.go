package model

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Record is one timestamped raw frame read from a capture file.
type Record struct {
	// Index is the 1-based position of the record in the capture.
	Index       int
	CaptureInfo gopacket.CaptureInfo
	Data        []byte
}

// HTTPView is the text hint attached to payloads framed like HTTP.
type HTTPView struct {
	// IsResponse is set when the payload starts with a status line.
	IsResponse bool
	Payload    []byte
}

// TLSHello is the part of a TLS ClientHello the pipeline cares about.
// Offsets are relative to the start of the transport payload.
type TLSHello struct {
	ServerName string
	// NameStart and NameEnd delimit the SNI host name bytes.
	NameStart, NameEnd int
	// LengthFields are the offsets of the nested length fields that enclose
	// the host name, paired with their width in bytes.
	LengthFields []LengthField
}

// LengthField locates a big-endian length field inside a payload.
type LengthField struct {
	Offset int
	Width  int
}

// Offsets records where the decoded layers start inside the frame.
// A negative value means the layer is absent.
type Offsets struct {
	Network   int
	Transport int
	Payload   int
}

// DecodedPacket is the typed layer stack of one capture record. Views are
// nil when the layer is absent or could not be decoded.
type DecodedPacket struct {
	Index     int
	Timestamp time.Time
	// Length is the number of captured bytes of the frame.
	Length int
	// WireLength is the original length of the frame on the wire.
	WireLength int
	Data       []byte
	Offsets    Offsets

	Ethernet *layers.Ethernet
	ARP      *layers.ARP
	IPv4     *layers.IPv4
	IPv6     *layers.IPv6
	TCP      *layers.TCP
	UDP      *layers.UDP
	ICMPv4   *layers.ICMPv4
	ICMPv6   *layers.ICMPv6
	DNS      *layers.DNS
	// DNSOverTCP is set when DNS was decoded behind a TCP length prefix.
	DNSOverTCP bool
	HTTP       *HTTPView
	TLS        *TLSHello

	// Inner holds network layers found below the outermost one (tunnels).
	Inner []gopacket.NetworkLayer

	// Payload is the transport payload, aliasing Data.
	Payload []byte
	// EtherType names the link payload for frames without an IP layer.
	EtherType string

	// DecodeErr is set when a layer failed to decode. Views decoded before the
	// failing layer remain valid.
	DecodeErr error
}

// HasNetwork reports whether an IPv4 or IPv6 layer was decoded.
func (p *DecodedPacket) HasNetwork() bool {
	return p.IPv4 != nil || p.IPv6 != nil
}

// SrcAddr returns the network source address, if any.
func (p *DecodedPacket) SrcAddr() (netip.Addr, bool) {
	switch {
	case p.IPv4 != nil:
		return addrFromSlice(p.IPv4.SrcIP)
	case p.IPv6 != nil:
		return addrFromSlice(p.IPv6.SrcIP)
	}
	return netip.Addr{}, false
}

// DstAddr returns the network destination address, if any.
func (p *DecodedPacket) DstAddr() (netip.Addr, bool) {
	switch {
	case p.IPv4 != nil:
		return addrFromSlice(p.IPv4.DstIP)
	case p.IPv6 != nil:
		return addrFromSlice(p.IPv6.DstIP)
	}
	return netip.Addr{}, false
}

// Ports returns the transport ports for TCP and UDP packets.
func (p *DecodedPacket) Ports() (src, dst uint16, ok bool) {
	switch {
	case p.TCP != nil:
		return uint16(p.TCP.SrcPort), uint16(p.TCP.DstPort), true
	case p.UDP != nil:
		return uint16(p.UDP.SrcPort), uint16(p.UDP.DstPort), true
	}
	return 0, 0, false
}

// Key returns the directional connection key of the packet. Packets without
// a network layer have no key.
func (p *DecodedPacket) Key() (ConnectionKey, bool) {
	src, ok := p.SrcAddr()
	if !ok {
		return ConnectionKey{}, false
	}
	dst, _ := p.DstAddr()
	key := ConnectionKey{SrcIP: src, DstIP: dst}
	if sp, dp, ok := p.Ports(); ok {
		key.SrcPort, key.DstPort, key.HasPorts = sp, dp, true
		if p.TCP != nil {
			key.Transport = "TCP"
		} else {
			key.Transport = "UDP"
		}
	}
	return key, true
}

func addrFromSlice(ip []byte) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// ConnectionKey identifies one direction of a conversation. The reverse tuple
// is a different key.
type ConnectionKey struct {
	SrcIP     netip.Addr
	DstIP     netip.Addr
	SrcPort   uint16
	DstPort   uint16
	HasPorts  bool
	Transport string
}

// Src formats the source endpoint, "ip:port" when ports are known.
func (k ConnectionKey) Src() string {
	if !k.HasPorts {
		return k.SrcIP.String()
	}
	return netip.AddrPortFrom(k.SrcIP, k.SrcPort).String()
}

// Dst formats the destination endpoint.
func (k ConnectionKey) Dst() string {
	if !k.HasPorts {
		return k.DstIP.String()
	}
	return netip.AddrPortFrom(k.DstIP, k.DstPort).String()
}

// String returns "src -> dst".
func (k ConnectionKey) String() string {
	return fmt.Sprintf("%s -> %s", k.Src(), k.Dst())
}

// Reverse returns the key of the opposite direction.
func (k ConnectionKey) Reverse() ConnectionKey {
	return ConnectionKey{
		SrcIP:     k.DstIP,
		DstIP:     k.SrcIP,
		SrcPort:   k.DstPort,
		DstPort:   k.SrcPort,
		HasPorts:  k.HasPorts,
		Transport: k.Transport,
	}
}
