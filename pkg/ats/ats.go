// Package ats reads single-channel ATS time series recorded by MT loggers.
//
// A file is a fixed 1024 byte header followed by little-endian int32
// samples. The header is kept as raw bytes.
package ats

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// HeaderSize is the length of the ATS file header in bytes
const HeaderSize = 1024

const sampleSize = 4

var ErrShortHeader = errors.New("file is shorter than the ATS header")

// Series is one channel of samples
type Series struct {
	Header  []byte
	Samples []int32
}

// Open reads the series stored at path
func Open(path string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	s, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read parses a series from r. A trailing partial sample is ignored.
func Read(r io.Reader) (*Series, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	samples := make([]int32, len(body)/sampleSize)
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(body[i*sampleSize:]))
	}

	return &Series{Header: header, Samples: samples}, nil
}

// Write encodes the series in ATS layout. A missing header is written as zeros.
func (s *Series) Write(w io.Writer) error {
	header := make([]byte, HeaderSize)
	copy(header, s.Header)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, s.Samples); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

// Len returns the number of samples
func (s *Series) Len() int { return len(s.Samples) }

// Slice returns samples [start, end) clamped to the series bounds
func (s *Series) Slice(start, end int) []int32 {
	if start < 0 {
		start = 0
	}
	if end > len(s.Samples) {
		end = len(s.Samples)
	}
	if start >= end {
		return nil
	}
	return s.Samples[start:end]
}

// Segments returns how many windows of the given length cover the series
func (s *Series) Segments(window int) int {
	if window <= 0 {
		return 0
	}
	return (len(s.Samples) + window - 1) / window
}

// Segment returns the n-th window. The last window may be short.
func (s *Series) Segment(n, window int) []int32 {
	if window <= 0 || n < 0 {
		return nil
	}
	return s.Slice(n*window, (n+1)*window)
}
