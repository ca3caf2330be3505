package classifier

import (
	"time"

	"PcapLens/internal/core/model"
)

// Conversation accumulates the packets of one directional connection.
type Conversation struct {
	Key       model.ConnectionKey
	Packets   int
	Bytes     int
	FirstSeen time.Time
	LastSeen  time.Time
	// FirstOrdinal is the ordinal of the first packet of the conversation.
	FirstOrdinal int
	Flags        *Counter[string]
}

func newConversation(key model.ConnectionKey, ordinal int, ts time.Time) *Conversation {
	return &Conversation{
		Key:          key,
		FirstSeen:    ts,
		LastSeen:     ts,
		FirstOrdinal: ordinal,
		Flags:        NewCounter[string](),
	}
}

func (c *Conversation) add(p *model.DecodedPacket, flags string) {
	c.Packets++
	c.Bytes += p.Length
	c.LastSeen = p.Timestamp
	if flags != "" {
		c.Flags.Add(flags, p.Index)
	}
}

// Duration returns the time between the first and the last packet.
func (c *Conversation) Duration() time.Duration {
	return c.LastSeen.Sub(c.FirstSeen)
}

func (c *Conversation) merge(other *Conversation) {
	c.Packets += other.Packets
	c.Bytes += other.Bytes
	if other.FirstOrdinal < c.FirstOrdinal {
		c.FirstOrdinal = other.FirstOrdinal
		c.FirstSeen = other.FirstSeen
	}
	if other.LastSeen.After(c.LastSeen) {
		c.LastSeen = other.LastSeen
	}
	c.Flags.Merge(other.Flags)
}
