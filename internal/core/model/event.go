package model

import "time"

// EventKind tags the variants of Event.
type EventKind int

const (
	KindTCPReset EventKind = iota
	KindTCPRetransmission
	KindConnectionFailure
	KindDNSFailure
	KindHTTPError
	KindOversizedFrame
	KindICMPUnreachable
)

var kindNames = [...]string{
	KindTCPReset:          "TCP_RESET",
	KindTCPRetransmission: "TCP_RETRANSMISSION",
	KindConnectionFailure: "CONNECTION_FAILURE",
	KindDNSFailure:        "DNS_FAILURE",
	KindHTTPError:         "HTTP_ERROR",
	KindOversizedFrame:    "OVERSIZED_FRAME",
	KindICMPUnreachable:   "ICMP_DEST_UNREACHABLE",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Event is one detected error or anomaly.
type Event interface {
	Kind() EventKind
	// Ordinal is the 1-based index of the packet that produced the event.
	Ordinal() int
	// ErrorType is the key the event is counted under in the error summary.
	// Events that are only reported in their own subtotal return "".
	ErrorType() string
}

// EventBase carries the fields shared by every event.
type EventBase struct {
	PacketNum int     `json:"packet_num"`
	Timestamp float64 `json:"timestamp"`
}

// NewEventBase builds the shared part of an event.
func NewEventBase(index int, ts time.Time) EventBase {
	return EventBase{PacketNum: index, Timestamp: Seconds(ts)}
}

// Ordinal implements Event.
func (b EventBase) Ordinal() int { return b.PacketNum }

// Seconds converts a capture timestamp to fractional Unix seconds.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// TCPReset is emitted for every segment carrying RST.
type TCPReset struct {
	EventBase
	Src string `json:"src"`
	Dst string `json:"dst"`
	Seq uint32 `json:"seq"`
	Ack uint32 `json:"ack"`
}

func (TCPReset) Kind() EventKind   { return KindTCPReset }
func (TCPReset) ErrorType() string { return KindTCPReset.String() }

// TCPRetransmission is emitted for a repeated (seq, length) pair.
type TCPRetransmission struct {
	EventBase
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Seq    uint32 `json:"seq"`
	Length int    `json:"length"`
}

func (TCPRetransmission) Kind() EventKind   { return KindTCPRetransmission }
func (TCPRetransmission) ErrorType() string { return KindTCPRetransmission.String() }

// ConnectionFailureSynNoResponse is the only connection failure type.
const ConnectionFailureSynNoResponse = "SYN_NO_RESPONSE"

// ConnectionFailure flags a handshake-initiation segment (SYN without ACK).
type ConnectionFailure struct {
	EventBase
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Type string `json:"type"`
}

func (ConnectionFailure) Kind() EventKind   { return KindConnectionFailure }
func (ConnectionFailure) ErrorType() string { return "" }

// DNSFailure is a DNS response with a non-zero response code.
type DNSFailure struct {
	EventBase
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Query     string `json:"query"`
	RCode     uint8  `json:"rcode"`
	RCodeName string `json:"rcode_name"`
}

func (DNSFailure) Kind() EventKind   { return KindDNSFailure }
func (DNSFailure) ErrorType() string { return KindDNSFailure.String() }

// HTTPError is a payload carrying an HTTP error status line.
type HTTPError struct {
	EventBase
	Src        string `json:"src"`
	Dst        string `json:"dst"`
	StatusCode string `json:"status_code"`
	Preview    string `json:"preview"`
}

func (HTTPError) Kind() EventKind     { return KindHTTPError }
func (e HTTPError) ErrorType() string { return "HTTP_" + e.StatusCode }

// OversizedFrame flags frames above the fragmentation-risk threshold.
type OversizedFrame struct {
	EventBase
	Size int    `json:"size"`
	Src  string `json:"src"`
	Dst  string `json:"dst"`
}

func (OversizedFrame) Kind() EventKind   { return KindOversizedFrame }
func (OversizedFrame) ErrorType() string { return "" }

// ICMPUnreachable is an ICMP destination-unreachable message.
type ICMPUnreachable struct {
	EventBase
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Code uint8  `json:"code"`
}

func (ICMPUnreachable) Kind() EventKind   { return KindICMPUnreachable }
func (ICMPUnreachable) ErrorType() string { return KindICMPUnreachable.String() }
