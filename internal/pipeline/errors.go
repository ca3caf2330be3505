package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"PcapLens/pkg/pcap"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
)

// Precondition and output failures. Every error returned by a pipeline wraps
// one of these, so callers can tell them apart with errors.Is.
var (
	ErrInputNotFound   = errors.New("input capture not found")
	ErrInputPermission = errors.New("input capture is not readable")
	ErrInputEmpty      = errors.New("input capture is empty")
	ErrInvalidCapture  = errors.New("input is not a valid pcap or pcapng capture")
	ErrCaptureTooLarge = errors.New("capture exceeds the configured size limit")
	ErrOutput          = errors.New("failed to write output")
	ErrPublish         = errors.New("failed to publish report")
)

// checkInput validates the input capture in the order: exists, readable,
// non-empty, size. It returns the file size.
func checkInput(path string, maxSize datasize.ByteSize) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		if os.IsPermission(err) {
			return 0, fmt.Errorf("%w: %s", ErrInputPermission, path)
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrInvalidCapture, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return 0, fmt.Errorf("%w: %s", ErrInputPermission, path)
		}
		return 0, fmt.Errorf("%w: %v", ErrInputPermission, err)
	}
	f.Close()

	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrInputEmpty, path)
	}
	if maxSize > 0 && uint64(info.Size()) > maxSize.Bytes() {
		return 0, fmt.Errorf("%w: %s is %s, limit is %s; pre-split it with `editcap -c 1000000`",
			ErrCaptureTooLarge, path, datasize.ByteSize(info.Size()).HR(), maxSize.HR())
	}
	return info.Size(), nil
}

// openCapture opens the capture and maps reader errors onto the sentinels.
func openCapture(path string, log *zap.SugaredLogger) (*pcap.Reader, error) {
	r, err := pcap.NewReader(path, log)
	if err != nil {
		switch {
		case errors.Is(err, pcap.ErrEmptyCapture):
			return nil, fmt.Errorf("%w: %v", ErrInputEmpty, err)
		case os.IsPermission(err):
			return nil, fmt.Errorf("%w: %v", ErrInputPermission, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidCapture, err)
		}
	}
	return r, nil
}

// checkOutputPath rejects outputs that would overwrite the input or land in
// a missing directory.
func checkOutputPath(in, out string) error {
	absIn, err := filepath.Abs(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutput, err)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutput, err)
	}
	if absIn == absOut {
		return fmt.Errorf("%w: output %s would overwrite the input", ErrOutput, out)
	}
	info, err := os.Stat(filepath.Dir(absOut))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: output directory %s does not exist", ErrOutput, filepath.Dir(out))
	}
	return nil
}
