package anonymizer

import (
	"encoding/binary"

	"PcapLens/internal/core/model"
)

// rewriteSNI replaces the SNI host name of a ClientHello with its anonymized
// form and adjusts every enclosing length field. It returns false when a
// length field would overflow.
func (a *Anonymizer) rewriteSNI(payload []byte, hello *model.TLSHello) ([]byte, bool) {
	name := a.Domain(hello.ServerName)
	delta := len(name) - (hello.NameEnd - hello.NameStart)

	out := make([]byte, 0, len(payload)+delta)
	out = append(out, payload[:hello.NameStart]...)
	out = append(out, name...)
	out = append(out, payload[hello.NameEnd:]...)

	for _, f := range hello.LengthFields {
		if !adjustLength(out, f, delta) {
			return nil, false
		}
	}
	return out, true
}

// adjustLength adds delta to the big-endian length field f of b.
func adjustLength(b []byte, f model.LengthField, delta int) bool {
	if f.Offset+f.Width > len(b) {
		return false
	}
	field := b[f.Offset : f.Offset+f.Width]

	var v int
	for _, c := range field {
		v = v<<8 | int(c)
	}
	v += delta
	if v < 0 || v >= 1<<(8*f.Width) {
		return false
	}

	switch f.Width {
	case 2:
		binary.BigEndian.PutUint16(field, uint16(v))
	case 3:
		field[0], field[1], field[2] = byte(v>>16), byte(v>>8), byte(v)
	default:
		return false
	}
	return true
}
