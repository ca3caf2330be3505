package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOutput(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)
	got := defaultOutput(filepath.Join("captures", "in.pcapng"), now)
	assert.Equal(t, filepath.Join("captures", "sanitized_capture_20250301_090507.cap"), got)
}
