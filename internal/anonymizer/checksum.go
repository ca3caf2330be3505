package anonymizer

import "encoding/binary"

// checksum computes the Internet checksum of b, treating the two bytes at
// skip as zero.
func checksum(b []byte, skip int) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		if i == skip {
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// fixIPv4Checksum recomputes the header checksum of the IPv4 header that
// starts at off.
func fixIPv4Checksum(b []byte, off int) {
	if off < 0 || off+20 > len(b) {
		return
	}
	ihl := int(b[off]&0x0f) * 4
	if ihl < 20 || off+ihl > len(b) {
		return
	}
	hdr := b[off : off+ihl]
	binary.BigEndian.PutUint16(hdr[10:], checksum(hdr, 10))
}
