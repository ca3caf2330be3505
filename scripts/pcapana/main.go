package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"PcapLens/internal/engine/protocol"
	"PcapLens/internal/pkg/logging"
	"PcapLens/pkg/pcap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go <path_to_pcap_file> [count]")
		os.Exit(1)
	}
	pcapFilePath := os.Args[1]
	limit := 5
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid count: %v", err)
		}
		limit = n
	}

	logger, err := logging.New("warn")
	if err != nil {
		log.Fatal(err)
	}

	reader, err := pcap.NewReader(pcapFilePath, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()
	fmt.Printf("format=%s linktype=%s snaplen=%d\n", reader.Format(), reader.LinkType(), reader.Snaplen())

	for i := 0; i < limit; i++ {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatal(err)
		}

		p := protocol.Decode(rec, reader.LinkType())
		line := fmt.Sprintf("[%s] #%d len=%d", p.Timestamp.Format("15:04:05.000"), rec.Index, p.Length)
		if key, ok := p.Key(); ok {
			line += " " + key.String()
		} else if p.EtherType != "" {
			line += " " + p.EtherType
		}
		if p.TCP != nil {
			line += " flags=" + protocol.FlagCombo(p.TCP)
		}
		if p.DNS != nil {
			line += fmt.Sprintf(" dns=%s rcode=%s", protocol.QueryName(p.DNS), protocol.RCodeName(uint8(p.DNS.ResponseCode)))
		}
		if p.TLS != nil {
			line += " sni=" + p.TLS.ServerName
		}
		if p.DecodeErr != nil {
			line += " decode_error=" + p.DecodeErr.Error()
		}
		fmt.Println(line)
	}
}
