// Package anonymizer replaces identifying data in captured frames with
// consistent, digest-derived stand-ins.
package anonymizer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Anonymizer maps addresses and names to their replacements. Mappings are
// memoized for the lifetime of the Anonymizer, which should be one run.
type Anonymizer struct {
	preservePrivate bool

	ips     *IdentityMap[netip.Addr]
	macs    *IdentityMap[[6]byte]
	domains *IdentityMap[string]
}

// New creates an Anonymizer. With preservePrivate set, private addresses stay
// inside their own range; otherwise every address maps into the public
// documentation ranges.
func New(preservePrivate bool) *Anonymizer {
	return &Anonymizer{
		preservePrivate: preservePrivate,
		ips:             NewIdentityMap[netip.Addr](0),
		macs:            NewIdentityMap[[6]byte](0),
		domains:         NewIdentityMap[string](0),
	}
}

// digest returns the hex SHA-256 digest of value.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// octet reads the byte encoded by the two hex digits at h[i:i+2].
func octet(h string, i int) byte {
	v, _ := strconv.ParseUint(h[i:i+2], 16, 8)
	return byte(v)
}

// privateV4 lists the IPv4 ranges treated as internal: RFC 1918 plus the
// special-purpose ranges that are not globally reachable.
var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// globalV4 are the globally reachable anycast addresses inside 192.0.0.0/24.
var globalV4 = []netip.Addr{
	netip.MustParseAddr("192.0.0.9"),
	netip.MustParseAddr("192.0.0.10"),
}

func isPrivate(addr netip.Addr) bool {
	if !addr.Is4() {
		return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
	}
	for _, g := range globalV4 {
		if addr == g {
			return false
		}
	}
	for _, p := range privateV4 {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IP returns the replacement of addr. IPv4 input yields IPv4 output and IPv6
// input yields IPv6 output. Invalid addresses are returned unchanged.
func (a *Anonymizer) IP(addr netip.Addr) netip.Addr {
	if !addr.IsValid() {
		return addr
	}
	addr = addr.WithZone("")
	key := addr.String()
	return a.ips.GetOrCreate(key, func() netip.Addr {
		return a.deriveIP(addr, digest(key))
	})
}

func (a *Anonymizer) deriveIP(addr netip.Addr, h string) netip.Addr {
	if addr.Is4() {
		if a.preservePrivate && isPrivate(addr) {
			b := addr.As4()
			switch {
			case b[0] == 10:
				return netip.AddrFrom4([4]byte{10, octet(h, 0), octet(h, 2), octet(h, 4)})
			case b[0] == 172 && b[1]&0xf0 == 16:
				return netip.AddrFrom4([4]byte{172, 16 + octet(h, 0)%16, octet(h, 2), octet(h, 4)})
			case b[0] == 192 && b[1] == 168:
				return netip.AddrFrom4([4]byte{192, 168, octet(h, 0), octet(h, 2)})
			default:
				return netip.AddrFrom4([4]byte{10, octet(h, 0), octet(h, 2), octet(h, 4)})
			}
		}
		return netip.AddrFrom4([4]byte{203, 0, 113, octet(h, 0)})
	}

	var b [16]byte
	if a.preservePrivate && isPrivate(addr) {
		b[0] = 0xfd
	} else {
		b[0], b[1], b[2], b[3] = 0x20, 0x01, 0x0d, 0xb8
	}
	b[12], b[13], b[14], b[15] = octet(h, 0), octet(h, 2), octet(h, 4), octet(h, 6)
	return netip.AddrFrom16(b)
}

// MAC returns the replacement of mac: a zeroed OUI followed by three digest
// bytes. The all-zero and broadcast addresses are kept as they are.
func (a *Anonymizer) MAC(mac net.HardwareAddr) net.HardwareAddr {
	if len(mac) != 6 || isZero(mac) || bytes.Equal(mac, broadcastMAC) {
		return mac
	}
	key := mac.String()
	v := a.macs.GetOrCreate(key, func() [6]byte {
		h := digest(key)
		return [6]byte{0, 0, 0, octet(h, 0), octet(h, 2), octet(h, 4)}
	})
	return net.HardwareAddr(v[:])
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Domain returns "anon-<digest prefix>.<tld>" for name, keeping only the last
// label. Single-label names get the "local" TLD and the empty name is kept.
func (a *Anonymizer) Domain(name string) string {
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return name
	}
	return a.domains.GetOrCreate(trimmed, func() string {
		tld := "local"
		if i := strings.LastIndexByte(trimmed, '.'); i >= 0 && i < len(trimmed)-1 {
			tld = trimmed[i+1:]
		}
		return "anon-" + digest(trimmed)[:12] + "." + tld
	})
}

// Mappings returns how many distinct addresses, MACs and names were mapped.
func (a *Anonymizer) Mappings() (ips, macs, domains int) {
	return a.ips.Len(), a.macs.Len(), a.domains.Len()
}
