package protocol

import (
	"encoding/binary"

	"PcapLens/internal/core/model"
)

const (
	tlsRecordHandshake  = 0x16
	tlsClientHello      = 0x01
	tlsExtServerName    = 0x0000
	tlsServerNameHost   = 0x00
	tlsRecordHeaderSize = 5
)

// ParseClientHello extracts the SNI host name from a TLS ClientHello that is
// fully contained in payload. The returned offsets cover the host name and
// every length field enclosing it.
func ParseClientHello(p []byte) (*model.TLSHello, bool) {
	if len(p) < tlsRecordHeaderSize+4 || p[0] != tlsRecordHandshake || p[1] != 0x03 {
		return nil, false
	}
	recEnd := tlsRecordHeaderSize + int(binary.BigEndian.Uint16(p[3:5]))
	if recEnd > len(p) {
		return nil, false
	}

	hs := tlsRecordHeaderSize
	if p[hs] != tlsClientHello {
		return nil, false
	}
	end := hs + 4 + int(uint32(p[hs+1])<<16|uint32(p[hs+2])<<8|uint32(p[hs+3]))
	if end > recEnd {
		return nil, false
	}

	// client_version + random
	pos := hs + 4 + 2 + 32
	if pos+1 > end {
		return nil, false
	}
	pos += 1 + int(p[pos])
	if pos+2 > end {
		return nil, false
	}
	pos += 2 + int(binary.BigEndian.Uint16(p[pos:]))
	if pos+1 > end {
		return nil, false
	}
	pos += 1 + int(p[pos])
	if pos+2 > end {
		return nil, false
	}

	extsLenOff := pos
	extEnd := pos + 2 + int(binary.BigEndian.Uint16(p[pos:]))
	if extEnd > end {
		return nil, false
	}
	pos += 2

	for pos+4 <= extEnd {
		typ := binary.BigEndian.Uint16(p[pos:])
		extLenOff := pos + 2
		dataStart := pos + 4
		dataEnd := dataStart + int(binary.BigEndian.Uint16(p[extLenOff:]))
		if dataEnd > extEnd {
			return nil, false
		}
		if typ != tlsExtServerName {
			pos = dataEnd
			continue
		}

		if dataStart+2 > dataEnd {
			return nil, false
		}
		listEnd := dataStart + 2 + int(binary.BigEndian.Uint16(p[dataStart:]))
		if listEnd > dataEnd {
			return nil, false
		}
		for q := dataStart + 2; q+3 <= listEnd; {
			nameEnd := q + 3 + int(binary.BigEndian.Uint16(p[q+1:]))
			if nameEnd > listEnd {
				return nil, false
			}
			if p[q] == tlsServerNameHost {
				return &model.TLSHello{
					ServerName: string(p[q+3 : nameEnd]),
					NameStart:  q + 3,
					NameEnd:    nameEnd,
					LengthFields: []model.LengthField{
						{Offset: 3, Width: 2},
						{Offset: hs + 1, Width: 3},
						{Offset: extsLenOff, Width: 2},
						{Offset: extLenOff, Width: 2},
						{Offset: dataStart, Width: 2},
						{Offset: q + 1, Width: 2},
					},
				}, true
			}
			q = nameEnd
		}
		return nil, false
	}
	return nil, false
}
