package anonymizer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// rewriteDNS anonymizes the names and addresses of a DNS message and returns
// it re-serialized. The message is modified in place. Messages holding record
// types gopacket cannot serialize are encoded by encodeDNS instead.
func (a *Anonymizer) rewriteDNS(dns *layers.DNS) ([]byte, error) {
	for i := range dns.Questions {
		dns.Questions[i].Name = a.domainBytes(dns.Questions[i].Name)
	}
	for _, rrs := range [][]layers.DNSResourceRecord{dns.Answers, dns.Authorities, dns.Additionals} {
		for i := range rrs {
			a.rewriteRecord(&rrs[i])
		}
	}

	buf := gopacket.NewSerializeBuffer()
	if err := dns.SerializeTo(buf, gopacket.SerializeOptions{FixLengths: true}); err == nil {
		return append([]byte(nil), buf.Bytes()...), nil
	}
	msg, err := encodeDNS(dns)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize DNS message: %w", err)
	}
	return msg, nil
}

func (a *Anonymizer) rewriteRecord(rr *layers.DNSResourceRecord) {
	rr.Name = a.domainBytes(rr.Name)

	switch rr.Type {
	case layers.DNSTypeA, layers.DNSTypeAAAA:
		if addr, ok := netip.AddrFromSlice(rr.IP); ok {
			anon := a.IP(addr.Unmap())
			if rr.Type == layers.DNSTypeA && anon.Is4() {
				b := anon.As4()
				rr.IP = net.IP(b[:])
			} else {
				b := anon.As16()
				rr.IP = net.IP(b[:])
			}
		}
	case layers.DNSTypeNS:
		rr.NS = a.domainBytes(rr.NS)
	case layers.DNSTypeCNAME:
		rr.CNAME = a.domainBytes(rr.CNAME)
	case layers.DNSTypePTR:
		rr.PTR = a.domainBytes(rr.PTR)
	case layers.DNSTypeMX:
		rr.MX.Name = a.domainBytes(rr.MX.Name)
	case layers.DNSTypeSRV:
		rr.SRV.Name = a.domainBytes(rr.SRV.Name)
	case layers.DNSTypeSOA:
		rr.SOA.MName = a.domainBytes(rr.SOA.MName)
		rr.SOA.RName = a.domainBytes(rr.SOA.RName)
	}
}

func (a *Anonymizer) domainBytes(name []byte) []byte {
	if len(name) == 0 {
		return name
	}
	return []byte(a.Domain(string(name)))
}

var errDNSHeader = errors.New("dns message shorter than its header")

// encodeDNS writes a DNS message without name compression. The header flags
// are copied from the decoded message. Record data of the types rewriteRecord
// handles is rebuilt from the decoded fields, any other record data is copied
// verbatim.
func encodeDNS(dns *layers.DNS) ([]byte, error) {
	if len(dns.Contents) < 12 {
		return nil, errDNSHeader
	}
	msg := append([]byte(nil), dns.Contents[:12]...)
	binary.BigEndian.PutUint16(msg[4:], uint16(len(dns.Questions)))
	binary.BigEndian.PutUint16(msg[6:], uint16(len(dns.Answers)))
	binary.BigEndian.PutUint16(msg[8:], uint16(len(dns.Authorities)))
	binary.BigEndian.PutUint16(msg[10:], uint16(len(dns.Additionals)))

	var err error
	for _, q := range dns.Questions {
		if msg, err = appendName(msg, q.Name); err != nil {
			return nil, err
		}
		msg = binary.BigEndian.AppendUint16(msg, uint16(q.Type))
		msg = binary.BigEndian.AppendUint16(msg, uint16(q.Class))
	}
	for _, rrs := range [][]layers.DNSResourceRecord{dns.Answers, dns.Authorities, dns.Additionals} {
		for i := range rrs {
			if msg, err = appendRecord(msg, &rrs[i]); err != nil {
				return nil, err
			}
		}
	}
	return msg, nil
}

func appendRecord(msg []byte, rr *layers.DNSResourceRecord) ([]byte, error) {
	msg, err := appendName(msg, rr.Name)
	if err != nil {
		return nil, err
	}
	msg = binary.BigEndian.AppendUint16(msg, uint16(rr.Type))
	msg = binary.BigEndian.AppendUint16(msg, uint16(rr.Class))
	msg = binary.BigEndian.AppendUint32(msg, rr.TTL)

	lengthAt := len(msg)
	msg = append(msg, 0, 0)

	switch rr.Type {
	case layers.DNSTypeA:
		ip := rr.IP.To4()
		if ip == nil {
			return nil, fmt.Errorf("A record without an IPv4 address")
		}
		msg = append(msg, ip...)
	case layers.DNSTypeAAAA:
		ip := rr.IP.To16()
		if ip == nil {
			return nil, fmt.Errorf("AAAA record without an address")
		}
		msg = append(msg, ip...)
	case layers.DNSTypeNS:
		msg, err = appendName(msg, rr.NS)
	case layers.DNSTypeCNAME:
		msg, err = appendName(msg, rr.CNAME)
	case layers.DNSTypePTR:
		msg, err = appendName(msg, rr.PTR)
	case layers.DNSTypeMX:
		msg = binary.BigEndian.AppendUint16(msg, rr.MX.Preference)
		msg, err = appendName(msg, rr.MX.Name)
	case layers.DNSTypeSRV:
		msg = binary.BigEndian.AppendUint16(msg, rr.SRV.Priority)
		msg = binary.BigEndian.AppendUint16(msg, rr.SRV.Weight)
		msg = binary.BigEndian.AppendUint16(msg, rr.SRV.Port)
		msg, err = appendName(msg, rr.SRV.Name)
	case layers.DNSTypeSOA:
		if msg, err = appendName(msg, rr.SOA.MName); err != nil {
			return nil, err
		}
		if msg, err = appendName(msg, rr.SOA.RName); err != nil {
			return nil, err
		}
		for _, v := range []uint32{rr.SOA.Serial, rr.SOA.Refresh, rr.SOA.Retry, rr.SOA.Expire, rr.SOA.Minimum} {
			msg = binary.BigEndian.AppendUint32(msg, v)
		}
	default:
		msg = append(msg, rr.Data...)
	}
	if err != nil {
		return nil, err
	}

	rdlen := len(msg) - lengthAt - 2
	if rdlen > 0xffff {
		return nil, fmt.Errorf("record data of %d bytes", rdlen)
	}
	binary.BigEndian.PutUint16(msg[lengthAt:], uint16(rdlen))
	return msg, nil
}

// appendName writes name as uncompressed labels.
func appendName(msg, name []byte) ([]byte, error) {
	trimmed := strings.TrimSuffix(string(name), ".")
	if len(trimmed) > 253 {
		return nil, fmt.Errorf("name of %d bytes", len(trimmed))
	}
	if trimmed != "" {
		for _, label := range strings.Split(trimmed, ".") {
			if len(label) == 0 || len(label) > 63 {
				return nil, fmt.Errorf("invalid label %q", label)
			}
			msg = append(msg, byte(len(label)))
			msg = append(msg, label...)
		}
	}
	return append(msg, 0), nil
}
