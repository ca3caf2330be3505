package testutil

import "encoding/binary"

// ClientHello returns a minimal TLS 1.2 ClientHello record carrying serverName
// in the SNI extension, followed by one unrelated extension.
func ClientHello(serverName string) []byte {
	name := []byte(serverName)

	sni := make([]byte, 0, 9+len(name))
	sni = binary.BigEndian.AppendUint16(sni, 0x0000)
	sni = binary.BigEndian.AppendUint16(sni, uint16(5+len(name)))
	sni = binary.BigEndian.AppendUint16(sni, uint16(3+len(name)))
	sni = append(sni, 0x00)
	sni = binary.BigEndian.AppendUint16(sni, uint16(len(name)))
	sni = append(sni, name...)

	// ec_point_formats
	other := []byte{0x00, 0x0b, 0x00, 0x02, 0x01, 0x00}

	exts := append(sni, other...)

	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)                   // session id
	body = append(body, 0x00, 0x02, 0x13, 0x01) // cipher suites
	body = append(body, 0x01, 0x00)             // compression
	body = binary.BigEndian.AppendUint16(body, uint16(len(exts)))
	body = append(body, exts...)

	hs := []byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	hs = append(hs, body...)

	rec := []byte{0x16, 0x03, 0x01}
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(hs)))
	return append(rec, hs...)
}
