package pcap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Writer writes records to a classic pcap file. Data goes to a temporary
// file next to the destination which is renamed into place by Close.
type Writer struct {
	path    string
	tmp     *os.File
	buf     *bufio.Writer
	w       *pcapgo.Writer
	written int
}

// NewWriter creates the temporary output file and writes the file header.
func NewWriter(path string, linkType layers.LinkType, snaplen uint32, nanos bool) (*Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	buf := bufio.NewWriterSize(tmp, 1<<16)
	var w *pcapgo.Writer
	if nanos {
		w = pcapgo.NewWriterNanos(buf)
	} else {
		w = pcapgo.NewWriter(buf)
	}
	if snaplen == 0 {
		snaplen = defaultSnaplen
	}
	if err := w.WriteFileHeader(snaplen, linkType); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{path: path, tmp: tmp, buf: buf, w: w}, nil
}

// WritePacket appends one record.
func (w *Writer) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	ci.CaptureLength = len(data)
	if ci.Length < ci.CaptureLength {
		ci.Length = ci.CaptureLength
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet %d: %w", w.written+1, err)
	}
	w.written++
	return nil
}

// Written returns the number of records written so far.
func (w *Writer) Written() int { return w.written }

// Close flushes the data and moves the file to its final path.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
