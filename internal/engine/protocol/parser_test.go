package protocol

import (
	"testing"

	"PcapLens/internal/core/model"
	"PcapLens/internal/testutil"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, frame []byte) *model.DecodedPacket {
	t.Helper()
	return Decode(testutil.Records(frame)[0], layers.LinkTypeEthernet)
}

func TestDecode_TCP(t *testing.T) {
	frame := testutil.TCP(testutil.Frame{
		SrcIP: "10.0.0.1", DstIP: "93.184.216.34",
		SrcPort: 40000, DstPort: 80,
		Seq: 100, ACK: true, PSH: true,
		Payload: []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"),
	})
	pkt := decodeOne(t, frame)

	require.NoError(t, pkt.DecodeErr)
	require.NotNil(t, pkt.Ethernet)
	require.NotNil(t, pkt.IPv4)
	require.NotNil(t, pkt.TCP)
	assert.Nil(t, pkt.UDP)
	assert.Equal(t, 1, pkt.Index)
	assert.Equal(t, len(frame), pkt.Length)
	assert.Equal(t, 14, pkt.Offsets.Network)
	assert.Equal(t, 34, pkt.Offsets.Transport)
	assert.Equal(t, 54, pkt.Offsets.Payload)
	require.NotNil(t, pkt.HTTP)
	assert.False(t, pkt.HTTP.IsResponse)

	key, ok := pkt.Key()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:40000 -> 93.184.216.34:80", key.String())
	assert.Equal(t, "93.184.216.34:80 -> 10.0.0.1:40000", key.Reverse().String())
}

func TestDecode_IPv6Key(t *testing.T) {
	pkt := decodeOne(t, testutil.UDP(testutil.Frame{
		SrcIP: "2001:db8::1", DstIP: "2001:db8::2", SrcPort: 5000, DstPort: 6000,
		Payload: []byte("x"),
	}))
	require.NotNil(t, pkt.IPv6)
	key, ok := pkt.Key()
	require.True(t, ok)
	assert.Equal(t, "[2001:db8::1]:5000 -> [2001:db8::2]:6000", key.String())
}

func TestDecode_DNSOverUDP(t *testing.T) {
	pkt := decodeOne(t, testutil.DNS(testutil.Frame{
		SrcIP: "10.0.0.53", DstIP: "10.0.0.2", SrcPort: 53, DstPort: 33000,
	}, testutil.DNSResponse(7, "internal.example.com", layers.DNSResponseCodeNXDomain)))

	require.NotNil(t, pkt.DNS)
	assert.False(t, pkt.DNSOverTCP)
	assert.True(t, pkt.DNS.QR)
	assert.Equal(t, "internal.example.com", QueryName(pkt.DNS))
	assert.Equal(t, "NXDOMAIN", RCodeName(uint8(pkt.DNS.ResponseCode)))
}

func TestDecode_DNSOverTCP(t *testing.T) {
	dnsFrame := testutil.DNS(testutil.Frame{SrcIP: "10.0.0.2", DstIP: "10.0.0.53", SrcPort: 33000, DstPort: 53},
		testutil.DNSQuery(9, "db.corp.example"))
	msg := decodeOne(t, dnsFrame).DNS.Contents

	payload := append([]byte{byte(len(msg) >> 8), byte(len(msg))}, msg...)
	pkt := decodeOne(t, testutil.TCP(testutil.Frame{
		SrcIP: "10.0.0.2", DstIP: "10.0.0.53", SrcPort: 33001, DstPort: 53,
		ACK: true, PSH: true, Payload: payload,
	}))
	require.NotNil(t, pkt.DNS)
	assert.True(t, pkt.DNSOverTCP)
	assert.Equal(t, "db.corp.example", QueryName(pkt.DNS))
}

func TestDecode_TruncatedTransport(t *testing.T) {
	frame := testutil.TCP(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2, SYN: true})
	pkt := decodeOne(t, frame[:14+20+8])

	require.NotNil(t, pkt.IPv4, "layers before the failing one stay decoded")
	assert.Nil(t, pkt.TCP)
	assert.Equal(t, -1, pkt.Offsets.Transport)
	assert.Empty(t, pkt.Payload)
	assert.Error(t, pkt.DecodeErr)

	key, ok := pkt.Key()
	require.True(t, ok)
	assert.False(t, key.HasPorts)
	assert.Equal(t, "10.0.0.1 -> 10.0.0.2", key.String())
}

func TestDecode_TruncatedUDP(t *testing.T) {
	frame := testutil.DNS(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "10.0.0.53", SrcPort: 40001, DstPort: 53},
		testutil.DNSQuery(1, "example.com"))
	pkt := decodeOne(t, frame[:14+20+4])

	require.NotNil(t, pkt.IPv4)
	assert.Nil(t, pkt.UDP)
	assert.Nil(t, pkt.DNS)
	assert.Equal(t, -1, pkt.Offsets.Transport)
	assert.Error(t, pkt.DecodeErr)
}

func TestDecode_TruncatedIPv4Header(t *testing.T) {
	frame := testutil.TCP(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1, DstPort: 2, SYN: true})
	pkt := decodeOne(t, frame[:14+16])

	require.NotNil(t, pkt.Ethernet)
	assert.Nil(t, pkt.IPv4)
	assert.Nil(t, pkt.TCP)
	assert.False(t, pkt.HasNetwork())
	assert.Equal(t, "IPv4", pkt.EtherType)
	assert.Error(t, pkt.DecodeErr)
}

func TestDecode_NonIP(t *testing.T) {
	pkt := decodeOne(t, testutil.ARP(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "10.0.0.254"}))
	require.NotNil(t, pkt.ARP)
	assert.False(t, pkt.HasNetwork())
	assert.Equal(t, "ARP", pkt.EtherType)
	_, ok := pkt.Key()
	assert.False(t, ok)
}

func TestDecode_ICMPv4(t *testing.T) {
	pkt := decodeOne(t, testutil.ICMPv4(testutil.Frame{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Payload: make([]byte, 28)}, 3, 1))
	require.NotNil(t, pkt.ICMPv4)
	assert.EqualValues(t, 3, pkt.ICMPv4.TypeCode.Type())
	assert.EqualValues(t, 1, pkt.ICMPv4.TypeCode.Code())
	key, ok := pkt.Key()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1 -> 10.0.0.2", key.String())
}

func TestParseClientHello(t *testing.T) {
	hello := testutil.ClientHello("api.internal.example.com")

	parsed, ok := ParseClientHello(hello)
	require.True(t, ok)
	assert.Equal(t, "api.internal.example.com", parsed.ServerName)
	assert.Equal(t, "api.internal.example.com", string(hello[parsed.NameStart:parsed.NameEnd]))
	assert.Len(t, parsed.LengthFields, 6)

	_, ok = ParseClientHello(hello[:len(hello)-3])
	assert.False(t, ok, "a hello split across segments is ignored")

	_, ok = ParseClientHello([]byte("GET / HTTP/1.1\r\n"))
	assert.False(t, ok)
}

func TestDecode_TLS(t *testing.T) {
	pkt := decodeOne(t, testutil.TCP(testutil.Frame{
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 50000, DstPort: 443,
		ACK: true, PSH: true, Payload: testutil.ClientHello("secret.example.org"),
	}))
	require.NotNil(t, pkt.TLS)
	assert.Equal(t, "secret.example.org", pkt.TLS.ServerName)
}

func TestRCodeName(t *testing.T) {
	assert.Equal(t, "NOERROR", RCodeName(0))
	assert.Equal(t, "SERVFAIL", RCodeName(2))
	assert.Equal(t, "REFUSED", RCodeName(5))
	assert.Equal(t, "UNKNOWN(9)", RCodeName(9))
}

func TestFlagCombo(t *testing.T) {
	assert.Equal(t, "NONE", FlagCombo(&layers.TCP{}))
	assert.Equal(t, "SYN|ACK", FlagCombo(&layers.TCP{SYN: true, ACK: true}))
	assert.Equal(t, "ACK|FIN|PSH", FlagCombo(&layers.TCP{ACK: true, FIN: true, PSH: true, URG: true}))
}

func TestLooksLikeHTTP(t *testing.T) {
	assert.True(t, LooksLikeHTTP([]byte("GET /index.html HTTP/1.1\r\n")))
	assert.True(t, LooksLikeHTTP([]byte("HTTP/1.1 503 Service Unavailable\r\n")))
	assert.True(t, LooksLikeHTTP([]byte("\r\nPOST /login")))
	assert.False(t, LooksLikeHTTP([]byte{0x16, 0x03, 0x01, 0x00}))
	assert.False(t, LooksLikeHTTP([]byte("get lowercase")))
}
