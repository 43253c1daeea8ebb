// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	segmentHeaderSize = 4

	// The 16-bit length field counts itself.
	maxSegmentPayload = 0xFFFF - 2
)

// Segment is one marker unit of a JPEG stream: the marker and its payload.
// The header is always big-endian.
type Segment struct {
	marker Marker
	data   *Region
}

// ReadSegment reads the segment header at off in r.
// The payload is read when asked for.
func ReadSegment(r io.ReaderAt, off int64) (*Segment, error) {
	header, err := NewFileRegion(r, off, segmentHeaderSize).Bytes()
	if err != nil {
		return nil, err
	}
	marker, length, err := parseSegmentHeader(header)
	if err != nil {
		return nil, fmt.Errorf("segment at offset %d: %w", off, err)
	}
	return &Segment{
		marker: marker,
		data:   NewFileRegion(r, off+segmentHeaderSize, length),
	}, nil
}

// ParseSegment creates a segment from b, which must start with the marker.
// Bytes in b after the payload are ignored.
func ParseSegment(b []byte) (*Segment, error) {
	if len(b) < segmentHeaderSize {
		return nil, fmt.Errorf("%w: segment header needs %d bytes, got %d", ErrBounds, segmentHeaderSize, len(b))
	}
	marker, length, err := parseSegmentHeader(b[:segmentHeaderSize])
	if err != nil {
		return nil, err
	}
	data, err := NewMemRegion(b[segmentHeaderSize:]).Section(0, length)
	if err != nil {
		return nil, err
	}
	return &Segment{marker: marker, data: data}, nil
}

// NewSegment creates a segment with the given marker and payload.
func NewSegment(marker Marker, payload []byte) *Segment {
	return &Segment{marker: marker, data: NewMemRegion(payload)}
}

// parseSegmentHeader parses the 4 byte header into marker and payload length.
func parseSegmentHeader(header []byte) (Marker, int64, error) {
	if header[0] != 0xFF {
		return 0, 0, fmt.Errorf("%w: expected 0xFF, got 0x%02X: not a JPEG segment", ErrMalformedHeader, header[0])
	}
	marker := Marker(header[1])
	if marker == 0 || marker.isStandalone() {
		return 0, 0, fmt.Errorf("%w: unexpected marker %s in segment header", ErrMalformedHeader, marker)
	}
	// The length includes the 2 bytes for the length itself.
	length := int64(binary.BigEndian.Uint16(header[2:4]))
	if length < 2 {
		return 0, 0, fmt.Errorf("%w: %s segment length %d", ErrMalformedHeader, marker, length)
	}
	return marker, length - 2, nil
}

// Marker returns the segment's marker.
func (s *Segment) Marker() Marker {
	return s.marker
}

// Len returns the payload length.
func (s *Segment) Len() int64 {
	return s.data.Len()
}

// DataOffset returns the payload offset in the source, or -1 if the payload is held in memory.
func (s *Segment) DataOffset() int64 {
	return s.data.Offset()
}

// Region returns the payload region.
func (s *Segment) Region() *Region {
	return s.data
}

// Read reads n payload bytes starting at off.
func (s *Segment) Read(n, off int64) ([]byte, error) {
	return s.data.Read(n, off)
}

// Data returns the payload.
func (s *Segment) Data() ([]byte, error) {
	return s.data.Bytes()
}

// SetData replaces the payload.
func (s *Segment) SetData(b []byte) {
	s.data.Replace(b)
}

// hasPrefix reports whether the payload starts with prefix.
func (s *Segment) hasPrefix(prefix string) bool {
	b, err := s.Read(int64(len(prefix)), 0)
	if err != nil {
		return false
	}
	return string(b) == prefix
}

// Bytes returns the segment with its header.
func (s *Segment) Bytes() ([]byte, error) {
	if s.Len() > maxSegmentPayload {
		return nil, fmt.Errorf("%w: %s segment payload is too long (%d), max %d", ErrBounds, s.marker, s.Len(), maxSegmentPayload)
	}
	data, err := s.Data()
	if err != nil {
		return nil, err
	}
	b := make([]byte, segmentHeaderSize, segmentHeaderSize+len(data))
	b[0] = 0xFF
	b[1] = byte(s.marker)
	binary.BigEndian.PutUint16(b[2:4], uint16(len(data)+2))
	return append(b, data...), nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("%s, %d bytes", s.marker, s.Len())
}
