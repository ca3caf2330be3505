// Package testutil builds synthetic frames and captures for tests.
package testutil

import (
	"net"
	"os"
	"testing"
	"time"

	"PcapLens/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// BaseTime is the timestamp of the first record in generated captures.
var BaseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Frame describes a synthetic Ethernet frame.
type Frame struct {
	SrcMAC, DstMAC   string
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	SYN, ACK, RST    bool
	FIN, PSH         bool
	Payload          []byte
}

func (f Frame) ethernet(next layers.EthernetType) *layers.Ethernet {
	src, dst := f.SrcMAC, f.DstMAC
	if src == "" {
		src = "00:11:22:33:44:55"
	}
	if dst == "" {
		dst = "00:66:77:88:99:aa"
	}
	srcMAC, _ := net.ParseMAC(src)
	dstMAC, _ := net.ParseMAC(dst)
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: next}
}

func (f Frame) network(proto layers.IPProtocol) (gopacket.SerializableLayer, gopacket.NetworkLayer, layers.EthernetType) {
	src, dst := net.ParseIP(f.SrcIP), net.ParseIP(f.DstIP)
	if src.To4() != nil {
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src.To4(), DstIP: dst.To4()}
		return ip, ip, layers.EthernetTypeIPv4
	}
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: proto, SrcIP: src, DstIP: dst}
	return ip, ip, layers.EthernetTypeIPv6
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

// TCP builds an Ethernet/IP/TCP frame.
func TCP(f Frame) []byte {
	ip, nl, et := f.network(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(f.SrcPort),
		DstPort: layers.TCPPort(f.DstPort),
		Seq:     f.Seq,
		Ack:     f.Ack,
		SYN:     f.SYN,
		ACK:     f.ACK,
		RST:     f.RST,
		FIN:     f.FIN,
		PSH:     f.PSH,
		Window:  14600,
	}
	tcp.SetNetworkLayerForChecksum(nl)
	return serialize(f.ethernet(et), ip, tcp, gopacket.Payload(f.Payload))
}

// UDP builds an Ethernet/IP/UDP frame.
func UDP(f Frame) []byte {
	ip, nl, et := f.network(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
	udp.SetNetworkLayerForChecksum(nl)
	return serialize(f.ethernet(et), ip, udp, gopacket.Payload(f.Payload))
}

// DNS builds an Ethernet/IP/UDP/DNS frame.
func DNS(f Frame, dns *layers.DNS) []byte {
	ip, nl, et := f.network(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
	udp.SetNetworkLayerForChecksum(nl)
	return serialize(f.ethernet(et), ip, udp, dns)
}

// DNSQuery returns a query for name.
func DNSQuery(id uint16, name string) *layers.DNS {
	return &layers.DNS{
		ID:        id,
		RD:        true,
		Questions: []layers.DNSQuestion{{Name: []byte(name), Type: layers.DNSTypeA, Class: layers.DNSClassIN}},
	}
}

// DNSResponse returns a response for name with the given rcode and answers.
func DNSResponse(id uint16, name string, rcode layers.DNSResponseCode, answers ...layers.DNSResourceRecord) *layers.DNS {
	dns := DNSQuery(id, name)
	dns.QR = true
	dns.RA = true
	dns.ResponseCode = rcode
	dns.Answers = answers
	return dns
}

// ICMPv4 builds an Ethernet/IPv4/ICMPv4 frame.
func ICMPv4(f Frame, typ, code uint8) []byte {
	ip, _, et := f.network(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(typ, code)}
	return serialize(f.ethernet(et), ip, icmp, gopacket.Payload(f.Payload))
}

// ARP builds an ARP request frame.
func ARP(f Frame) []byte {
	eth := f.ethernet(layers.EthernetTypeARP)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(eth.SrcMAC),
		SourceProtAddress: []byte(net.ParseIP(f.SrcIP).To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(net.ParseIP(f.DstIP).To4()),
	}
	return serialize(eth, arp)
}

// Records wraps frames into records spaced one millisecond apart.
func Records(frames ...[]byte) []*model.Record {
	records := make([]*model.Record, len(frames))
	for i, data := range frames {
		records[i] = &model.Record{
			Index: i + 1,
			CaptureInfo: gopacket.CaptureInfo{
				Timestamp:     BaseTime.Add(time.Duration(i) * time.Millisecond),
				CaptureLength: len(data),
				Length:        len(data),
			},
			Data: data,
		}
	}
	return records
}

// WriteCapture writes frames to a classic pcap file at path.
func WriteCapture(t testing.TB, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create capture: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("Failed to write pcap header: %v", err)
	}
	for _, rec := range Records(frames...) {
		if err := w.WritePacket(rec.CaptureInfo, rec.Data); err != nil {
			t.Fatalf("Failed to write packet: %v", err)
		}
	}
}

// Padded returns a payload of n bytes.
func Padded(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte('a' + i%26)
	}
	return p
}
