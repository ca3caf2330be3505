package protocol

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
)

var rcodeNames = map[uint8]string{
	0: "NOERROR",
	1: "FORMERR",
	2: "SERVFAIL",
	3: "NXDOMAIN",
	4: "NOTIMP",
	5: "REFUSED",
}

// RCodeName converts a DNS response code to its mnemonic.
func RCodeName(code uint8) string {
	if name, ok := rcodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", code)
}

// FlagCombo names the combination of SYN, ACK, FIN, RST and PSH set on a
// segment, "NONE" when none of them is set.
func FlagCombo(tcp *layers.TCP) string {
	var flags []string
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if len(flags) == 0 {
		return "NONE"
	}
	return strings.Join(flags, "|")
}

// QueryName returns the first question of a DNS message without the
// trailing dot, or "" when there is none.
func QueryName(dns *layers.DNS) string {
	if len(dns.Questions) == 0 {
		return ""
	}
	return strings.TrimSuffix(string(dns.Questions[0].Name), ".")
}
