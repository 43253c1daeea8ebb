// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var entriesEq = qt.CmpEquals(cmp.AllowUnexported(ResourceEntry{}))

func testResourceBlock() []byte {
	var b []byte
	b = append(b, testResource(0x03ED, "", make([]byte, 16))...)
	b = append(b, testResource(IPTCResourceID, "abcd", []byte("12345"))...)
	b = append(b, testResource(0x0425, "x", []byte{1, 2, 3})...)
	return b
}

func TestScanResources(t *testing.T) {
	c := qt.New(t)

	block := testResourceBlock()
	c.Assert(block, qt.HasLen, 66)

	res, err := ScanResources(NewMemRegion(block))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stopped(), qt.IsFalse)
	c.Assert(res.End(), qt.Equals, int64(66))

	// An empty name takes 2 bytes, "abcd" 6 bytes and "x" 2 bytes.
	c.Assert(res.Entries(), entriesEq, []ResourceEntry{
		{ID: 0x03ED, Offset: 12, Length: 16, start: 0},
		{ID: 0x0404, Offset: 44, Length: 5, start: 28},
		{ID: 0x0425, Offset: 62, Length: 3, start: 50},
	})

	e, found := res.Entry(IPTCResourceID)
	c.Assert(found, qt.IsTrue)
	c.Assert(e.Offset, qt.Equals, int64(44))
	_, found = res.Entry(0x0001)
	c.Assert(found, qt.IsFalse)

	payload, err := res.Payload(IPTCResourceID)
	c.Assert(err, qt.IsNil)
	b, err := payload.Bytes()
	c.Assert(err, qt.IsNil)
	c.Assert(string(b), qt.Equals, "12345")

	_, err = res.Payload(0x0001)
	c.Assert(err, qt.IsNotNil)
}

func TestScanResourcesSoftStop(t *testing.T) {
	c := qt.New(t)

	block := append(testResourceBlock(), "junk data"...)
	res, err := ScanResources(NewMemRegion(block))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stopped(), qt.IsTrue)
	c.Assert(res.Entries(), qt.HasLen, 3)
	c.Assert(res.End(), qt.Equals, int64(66))

	// Trailing bytes are kept.
	b, err := res.Bytes(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(b, qt.DeepEquals, block)
}

func TestScanResourcesUnpadded(t *testing.T) {
	c := qt.New(t)

	var block []byte
	block = append(block, "8BIM\x04\x04\x00\x00"...)
	block = append(block, 0, 0, 0, 3, 'a', 'b', 'c')
	block = append(block, "8BIM\x04\x25\x00\x00"...)
	block = append(block, 0, 0, 0, 1, 'd')

	res, err := scanResources(NewMemRegion(block), false)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stopped(), qt.IsFalse)
	c.Assert(res.Entries(), entriesEq, []ResourceEntry{
		{ID: 0x0404, Offset: 12, Length: 3, start: 0},
		{ID: 0x0425, Offset: 27, Length: 1, start: 15},
	})

	b, err := res.Bytes(map[uint16][]byte{IPTCResourceID: []byte("xyz")})
	c.Assert(err, qt.IsNil)
	c.Assert(string(b[12:15]), qt.Equals, "xyz")
	c.Assert(b, qt.HasLen, len(block))

	// Read as padded, the second signature is missed.
	res, err = ScanResources(NewMemRegion(block))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stopped(), qt.IsTrue)
	c.Assert(res.Entries(), qt.HasLen, 1)
}

func TestScanResourcesTruncated(t *testing.T) {
	c := qt.New(t)

	block := testResourceBlock()

	for _, n := range []int{5, 10, 30} {
		_, err := ScanResources(NewMemRegion(block[:n]))
		c.Assert(err, qt.ErrorIs, ErrBounds, qt.Commentf("%d", n))
	}

	// A payload running past the end of the block.
	_, err := ScanResources(NewMemRegion(block[:46]))
	c.Assert(err, qt.ErrorIs, ErrBounds)
}

func TestResourcesBytes(t *testing.T) {
	c := qt.New(t)

	block := testResourceBlock()
	res, err := ScanResources(NewMemRegion(block))
	c.Assert(err, qt.IsNil)

	c.Run("Unchanged", func(c *qt.C) {
		b, err := res.Bytes(nil)
		c.Assert(err, qt.IsNil)
		c.Assert(b, qt.DeepEquals, block)
	})

	c.Run("Replace", func(c *qt.C) {
		b, err := res.Bytes(map[uint16][]byte{IPTCResourceID: []byte("123456")})
		c.Assert(err, qt.IsNil)

		var want []byte
		want = append(want, testResource(0x03ED, "", make([]byte, 16))...)
		want = append(want, testResource(IPTCResourceID, "abcd", []byte("123456"))...)
		want = append(want, testResource(0x0425, "x", []byte{1, 2, 3})...)
		c.Assert(b, qt.DeepEquals, want)

		res2, err := ScanResources(NewMemRegion(b))
		c.Assert(err, qt.IsNil)
		payload, err := res2.Payload(IPTCResourceID)
		c.Assert(err, qt.IsNil)
		pb, err := payload.Bytes()
		c.Assert(err, qt.IsNil)
		c.Assert(string(pb), qt.Equals, "123456")
	})

	c.Run("Add", func(c *qt.C) {
		b, err := res.Bytes(map[uint16][]byte{0x0001: []byte("a")})
		c.Assert(err, qt.IsNil)
		c.Assert(b, qt.DeepEquals, append(block, testResource(0x0001, "", []byte("a"))...))
	})
}
