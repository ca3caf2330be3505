package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"PcapLens/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

// Capture container formats.
const (
	FormatPcap   = "pcap"
	FormatPcapNG = "pcapng"
)

const defaultSnaplen = 262144

var (
	// ErrEmptyCapture is returned for zero-length capture files.
	ErrEmptyCapture = errors.New("capture file is empty")
	// ErrUnknownFormat is returned when the file is neither pcap nor pcapng.
	ErrUnknownFormat = errors.New("unknown capture file format")
)

type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	file     *os.File
	source   packetDataSource
	linkType layers.LinkType
	snaplen  uint32
	nanos    bool
	format   string
	next     int
	log      *zap.SugaredLogger
}

// NewReader creates a new capture reader for the given file path. The
// container format is chosen from the file's magic number.
func NewReader(filePath string, log *zap.SugaredLogger) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, log)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	r.file = file
	return r, nil
}

func newReader(file io.Reader, log *zap.SugaredLogger) (*Reader, error) {
	buffered := bufio.NewReaderSize(file, 1<<16)
	magic, err := buffered.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) && len(magic) == 0 {
			return nil, ErrEmptyCapture
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}

	r := &Reader{log: log, next: 1}
	switch {
	case isNgMagic(magic):
		ng, err := pcapgo.NewNgReader(buffered, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
		}
		r.source = ng
		r.linkType = ng.LinkType()
		r.snaplen = defaultSnaplen
		if iface, err := ng.Interface(0); err == nil && iface.SnapLength > 0 {
			r.snaplen = iface.SnapLength
		}
		r.format = FormatPcapNG
	default:
		classic, err := pcapgo.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
		}
		r.source = classic
		r.linkType = classic.LinkType()
		r.snaplen = classic.Snaplen()
		r.nanos = isNanoMagic(magic)
		r.format = FormatPcap
	}
	return r, nil
}

func isNgMagic(m []byte) bool {
	return m[0] == 0x0a && m[1] == 0x0d && m[2] == 0x0d && m[3] == 0x0a
}

func isNanoMagic(m []byte) bool {
	return (m[0] == 0x4d && m[1] == 0x3c && m[2] == 0xb2 && m[3] == 0xa1) ||
		(m[0] == 0xa1 && m[1] == 0xb2 && m[2] == 0x3c && m[3] == 0x4d)
}

// LinkType returns the link layer type of the capture.
func (r *Reader) LinkType() layers.LinkType { return r.linkType }

// Snaplen returns the snapshot length declared by the capture.
func (r *Reader) Snaplen() uint32 { return r.snaplen }

// Nanos reports whether timestamps have nanosecond resolution.
func (r *Reader) Nanos() bool { return r.nanos }

// Format returns FormatPcap or FormatPcapNG.
func (r *Reader) Format() string { return r.format }

// Close closes the underlying file.
func (r *Reader) Close() {
	if r.file != nil {
		r.file.Close()
	}
}

// Next returns the next record, or io.EOF after the last one. A truncated
// trailing record is reported as io.EOF after a warning.
func (r *Reader) Next() (*model.Record, error) {
	data, ci, err := r.source.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.log.Warnw("capture ends with a truncated record, ignoring it", "records", r.next-1)
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read record %d: %w", r.next, err)
	}
	rec := &model.Record{Index: r.next, CaptureInfo: ci, Data: data}
	r.next++
	return rec, nil
}

// ReadAll reads every remaining record in capture order.
func (r *Reader) ReadAll() ([]*model.Record, error) {
	var records []*model.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// ReadPackets reads all records and sends them to the provided channel in
// capture order. It closes the channel when done.
func (r *Reader) ReadPackets(ctx context.Context, out chan<- *model.Record) error {
	defer close(out)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
