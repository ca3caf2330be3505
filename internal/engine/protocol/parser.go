package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"PcapLens/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const dnsPort = 53

// Decode uses gopacket to project a capture record onto a typed layer stack.
// Layers are decoded without copying, so every view aliases rec.Data. A layer
// that fails to decode is reported in DecodeErr and stops the projection at
// that layer; everything decoded before it stays available.
func Decode(rec *model.Record, linkType layers.LinkType) *model.DecodedPacket {
	packet := gopacket.NewPacket(rec.Data, linkType, gopacket.DecodeOptions{NoCopy: true})

	info := &model.DecodedPacket{
		Index:      rec.Index,
		Timestamp:  rec.CaptureInfo.Timestamp,
		Length:     len(rec.Data),
		WireLength: rec.CaptureInfo.Length,
		Data:       rec.Data,
		Offsets:    model.Offsets{Network: -1, Transport: -1, Payload: -1},
	}

	failed := failedLayer(packet)
	offset := 0
	for _, l := range packet.Layers() {
		if failed != nil && l == failed {
			break
		}
		switch v := l.(type) {
		case *layers.Ethernet:
			if info.Ethernet == nil {
				info.Ethernet = v
			}
		case *layers.ARP:
			info.ARP = v
		case *layers.IPv4:
			if info.HasNetwork() {
				info.Inner = append(info.Inner, v)
			} else {
				info.IPv4 = v
				info.Offsets.Network = offset
			}
		case *layers.IPv6:
			if info.HasNetwork() {
				info.Inner = append(info.Inner, v)
			} else {
				info.IPv6 = v
				info.Offsets.Network = offset
			}
		case *layers.TCP:
			if info.TCP == nil && info.UDP == nil {
				info.TCP = v
				info.Offsets.Transport = offset
				info.Offsets.Payload = offset + len(v.Contents)
				info.Payload = v.Payload
			}
		case *layers.UDP:
			if info.TCP == nil && info.UDP == nil {
				info.UDP = v
				info.Offsets.Transport = offset
				info.Offsets.Payload = offset + len(v.Contents)
				info.Payload = v.Payload
			}
		case *layers.ICMPv4:
			if info.ICMPv4 == nil {
				info.ICMPv4 = v
				info.Payload = v.Payload
			}
		case *layers.ICMPv6:
			if info.ICMPv6 == nil {
				info.ICMPv6 = v
				info.Payload = v.Payload
			}
		case *layers.DNS:
			if info.DNS == nil {
				info.DNS = v
			}
		}
		offset += len(l.LayerContents())
	}

	if errLayer := packet.ErrorLayer(); errLayer != nil {
		info.DecodeErr = fmt.Errorf("packet %d: %s: %w", rec.Index, errLayer.LayerType(), errLayer.Error())
	}

	if !info.HasNetwork() && info.Ethernet != nil {
		info.EtherType = info.Ethernet.EthernetType.String()
	}

	decodeApplication(info)
	return info
}

// failedLayer returns the layer whose decoder failed after adding it to the
// packet. gopacket adds IPv4, IPv6, TCP and UDP layers before checking the
// decode error, leaving zero-valued headers in Layers(). Such a failure
// carries no bytes of its own, while a decoder that added nothing leaves the
// undecoded bytes in the failure.
func failedLayer(packet gopacket.Packet) gopacket.Layer {
	errLayer := packet.ErrorLayer()
	if errLayer == nil || len(errLayer.LayerContents()) > 0 {
		return nil
	}
	ls := packet.Layers()
	for i := len(ls) - 1; i > 0; i-- {
		if ls[i].LayerType() == gopacket.LayerTypeDecodeFailure {
			return ls[i-1]
		}
	}
	return nil
}

// decodeApplication attaches the application hints gopacket does not decode
// on its own: DNS over TCP, HTTP text framing and the TLS ClientHello.
func decodeApplication(p *model.DecodedPacket) {
	if len(p.Payload) == 0 || (p.TCP == nil && p.UDP == nil) {
		return
	}

	if p.TCP != nil && p.DNS == nil && (p.TCP.SrcPort == dnsPort || p.TCP.DstPort == dnsPort) {
		if dns, ok := decodeTCPDNS(p.Payload); ok {
			p.DNS = dns
			p.DNSOverTCP = true
		}
	}
	if p.DNS != nil {
		return
	}

	if LooksLikeHTTP(p.Payload) {
		p.HTTP = &model.HTTPView{
			IsResponse: bytes.HasPrefix(p.Payload, []byte("HTTP/")),
			Payload:    p.Payload,
		}
	}
	if p.TCP != nil {
		if hello, ok := ParseClientHello(p.Payload); ok {
			p.TLS = hello
		}
	}
}

// decodeTCPDNS decodes a DNS message behind its 2-byte length prefix. Only
// messages fully contained in the segment are accepted.
func decodeTCPDNS(payload []byte) (*layers.DNS, bool) {
	if len(payload) < 2+12 {
		return nil, false
	}
	if int(binary.BigEndian.Uint16(payload)) != len(payload)-2 {
		return nil, false
	}
	dns := &layers.DNS{}
	if err := dns.DecodeFromBytes(payload[2:], gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}
	return dns, true
}

var httpMarkers = [][]byte{[]byte("HTTP/"), []byte("GET "), []byte("POST ")}

// LooksLikeHTTP reports whether payload carries one of the HTTP markers.
func LooksLikeHTTP(payload []byte) bool {
	for _, m := range httpMarkers {
		if bytes.Contains(payload, m) {
			return true
		}
	}
	return false
}
