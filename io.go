// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Region is a byte range that is either backed by an io.ReaderAt at a known
// offset, or held in memory.
// Replacing the content of a reader backed Region moves it into memory.
type Region struct {
	r      io.ReaderAt
	offset int64
	length int64

	b []byte
}

// NewFileRegion creates a Region of length bytes starting at offset in r.
// Nothing is read until asked for.
func NewFileRegion(r io.ReaderAt, offset, length int64) *Region {
	return &Region{r: r, offset: offset, length: length}
}

// NewMemRegion creates a Region holding b.
func NewMemRegion(b []byte) *Region {
	return &Region{offset: -1, length: int64(len(b)), b: b}
}

// Len returns the length of the region.
func (r *Region) Len() int64 {
	return r.length
}

// Offset returns the offset of the region in its backing reader,
// or -1 if the region is held in memory.
func (r *Region) Offset() int64 {
	if r.r == nil {
		return -1
	}
	return r.offset
}

// InMemory reports whether the region content is held in memory.
func (r *Region) InMemory() bool {
	return r.r == nil
}

// Read reads n bytes at off, relative to the start of the region.
// For in memory regions the returned slice shares the region's storage and
// must not be modified.
func (r *Region) Read(n, off int64) ([]byte, error) {
	if n < 0 || off < 0 || off+n > r.length {
		return nil, fmt.Errorf("%w: %d bytes at offset %d in region of %d bytes", ErrBounds, n, off, r.length)
	}
	if r.r == nil {
		return r.b[off : off+n : off+n], nil
	}
	b := make([]byte, n)
	m, err := r.r.ReadAt(b, r.offset+off)
	if m == len(b) {
		return b, nil
	}
	if err == nil || err == io.EOF {
		return nil, fmt.Errorf("%w: source ends at %d bytes into a %d byte read at offset %d", ErrBounds, m, n, r.offset+off)
	}
	return nil, err
}

// Bytes returns the full content of the region.
func (r *Region) Bytes() ([]byte, error) {
	return r.Read(r.length, 0)
}

// Replace replaces the content of the region with b.
func (r *Region) Replace(b []byte) {
	r.r = nil
	r.offset = -1
	r.b = b
	r.length = int64(len(b))
}

// Section returns the n bytes at off as a new Region sharing the same backing.
func (r *Region) Section(off, n int64) (*Region, error) {
	if n < 0 || off < 0 || off+n > r.length {
		return nil, fmt.Errorf("%w: section of %d bytes at offset %d in region of %d bytes", ErrBounds, n, off, r.length)
	}
	if r.r == nil {
		return NewMemRegion(r.b[off : off+n : off+n]), nil
	}
	return NewFileRegion(r.r, r.offset+off, n), nil
}

// seekReaderAt implements io.ReaderAt on top of an io.ReadSeeker.
// Note that this is not thread safe.
type seekReaderAt struct {
	r io.ReadSeeker
}

func (s seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.r, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func toReaderAt(r io.ReadSeeker) io.ReaderAt {
	if ra, ok := r.(io.ReaderAt); ok {
		return ra
	}
	return seekReaderAt{r: r}
}

func newStreamReader(r io.Reader, byteOrder binary.ByteOrder) *streamReader {
	return &streamReader{
		r:         r,
		byteOrder: byteOrder,
	}
}

// streamReader is a wrapper around a Reader that provides methods to read binary data.
// A failed read records the error and panics with errStop, to be recovered
// by the caller with errFromRecover.
// Note that this is not thread safe.
type streamReader struct {
	r         io.Reader
	byteOrder binary.ByteOrder

	buf []byte

	isEOF   bool
	readErr error
}

func (e *streamReader) allocateBuf(length int) {
	if length > cap(e.buf) {
		e.buf = make([]byte, length)
	}
}

func (e *streamReader) read1() uint8 {
	const n = 1
	e.readNIntoBuf(n)
	return e.buf[0]
}

// read1E reads one byte, returning io.EOF without panicking at a clean end of stream.
func (e *streamReader) read1E() (uint8, error) {
	const n = 1
	if err := e.readNIntoBufE(n); err != nil {
		return 0, err
	}
	return e.buf[0], nil
}

func (e *streamReader) read2() uint16 {
	const n = 2
	e.readNIntoBuf(n)
	return e.byteOrder.Uint16(e.buf[:n])
}

func (e *streamReader) readUint(n int) uint64 {
	e.readNIntoBuf(n)
	var v uint64
	for _, b := range e.buf[:n] {
		v = v<<8 | uint64(b)
	}
	return v
}

// readBytes reads n bytes into a new slice.
func (e *streamReader) readBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(e.r, b); err != nil {
		e.stop(err)
	}
	return b
}

func (e *streamReader) readNIntoBuf(n int) {
	if err := e.readNIntoBufE(n); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) readNIntoBufE(n int) error {
	e.allocateBuf(n)
	n2, err := io.ReadFull(e.r, e.buf[:n])
	if err != nil {
		return err
	}
	if n != n2 {
		return errShortRead
	}
	return nil
}

func (e *streamReader) stop(err error) {
	if err == io.EOF {
		e.isEOF = true
	}
	if err != nil {
		e.readErr = err
	}
	panic(errStop)
}
