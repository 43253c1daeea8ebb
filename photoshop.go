// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	photoshopHeader   = "Photoshop 3.0\x00"
	resourceSignature = "8BIM"

	// IPTCResourceID is the resource holding IPTC-NAA records.
	IPTCResourceID uint16 = 0x0404
)

// ResourceEntry describes one "8BIM" resource in a Photoshop resource block.
// Offsets are relative to the start of the block.
type ResourceEntry struct {
	ID     uint16
	Offset int64 // Of the payload.
	Length int64 // Of the payload, without padding.

	start int64 // Of the signature.
}

// Resources is the index of a Photoshop resource block.
// No payload is copied when building it.
type Resources struct {
	block   *Region
	entries []ResourceEntry
	index   map[uint16]int

	padded  bool
	stopped bool
	end     int64
}

// ScanResources indexes the "8BIM" resources in block.
// Scanning stops without error at the first position not starting with the
// "8BIM" signature; see Stopped.
// Payloads are padded to an even length.
func ScanResources(block *Region) (*Resources, error) {
	return scanResources(block, true)
}

func scanResources(block *Region, padded bool) (*Resources, error) {
	res := &Resources{
		block:  block,
		index:  make(map[uint16]int),
		padded: padded,
	}

	var pos int64
	for pos < block.Len() {
		sig, err := block.Read(4, pos)
		if err != nil {
			return nil, err
		}
		if string(sig) != resourceSignature {
			res.stopped = true
			break
		}
		b, err := block.Read(3, pos+4)
		if err != nil {
			return nil, err
		}
		id := binary.BigEndian.Uint16(b[:2])

		// The name is a Pascal string padded so that the length byte
		// and the name together take an even number of bytes.
		nameLen := int64(b[2])
		if nameLen%2 == 0 {
			nameLen++
		}
		lenPos := pos + 7 + nameLen
		b, err = block.Read(4, lenPos)
		if err != nil {
			return nil, err
		}
		length := int64(binary.BigEndian.Uint32(b))
		dataPos := lenPos + 4
		if dataPos+length > block.Len() {
			return nil, fmt.Errorf("%w: resource 0x%04X of %d bytes at offset %d in block of %d bytes", ErrBounds, id, length, dataPos, block.Len())
		}

		res.index[id] = len(res.entries)
		res.entries = append(res.entries, ResourceEntry{ID: id, Offset: dataPos, Length: length, start: pos})

		pos = dataPos + length
		if padded && length%2 == 1 {
			pos++
		}
	}

	res.end = min(pos, block.Len())

	return res, nil
}

// Entry returns the resource with the given ID.
// If the ID occurs more than once, the last one wins.
func (r *Resources) Entry(id uint16) (ResourceEntry, bool) {
	i, ok := r.index[id]
	if !ok {
		return ResourceEntry{}, false
	}
	return r.entries[i], true
}

// Entries returns all resources in block order.
func (r *Resources) Entries() []ResourceEntry {
	return r.entries
}

// Stopped reports whether scanning ended on bytes not starting with the
// "8BIM" signature rather than at the end of the block.
func (r *Resources) Stopped() bool {
	return r.stopped
}

// End returns the offset where scanning ended.
// Any bytes from End to the end of the block are not resources.
func (r *Resources) End() int64 {
	return r.end
}

// Payload returns the payload of the resource with the given ID.
func (r *Resources) Payload(id uint16) (*Region, error) {
	e, ok := r.Entry(id)
	if !ok {
		return nil, fmt.Errorf("resource 0x%04X not found", id)
	}
	return r.block.Section(e.Offset, e.Length)
}

// Bytes re-encodes the resource block with the payloads in replace swapped in.
// Resources in replace not in the block are appended with an empty name.
// Bytes after End are kept as is.
func (r *Resources) Bytes(replace map[uint16][]byte) ([]byte, error) {
	var buf bytes.Buffer

	writePayload := func(b []byte) {
		var lenb [4]byte
		binary.BigEndian.PutUint32(lenb[:], uint32(len(b)))
		buf.Write(lenb[:])
		buf.Write(b)
		if r.padded && len(b)%2 == 1 {
			buf.WriteByte(0)
		}
	}

	for i, e := range r.entries {
		// Signature, ID and name.
		header, err := r.block.Read(e.Offset-4-e.start, e.start)
		if err != nil {
			return nil, err
		}
		buf.Write(header)

		payload, found := replace[e.ID]
		if !found || r.index[e.ID] != i {
			payload, err = r.block.Read(e.Length, e.Offset)
			if err != nil {
				return nil, err
			}
		}
		writePayload(payload)
	}

	var ids []uint16
	for id := range replace {
		if _, found := r.index[id]; !found {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		buf.WriteString(resourceSignature)
		var idb [2]byte
		binary.BigEndian.PutUint16(idb[:], id)
		buf.Write(idb[:])
		// Empty name, padded.
		buf.Write([]byte{0, 0})
		writePayload(replace[id])
	}

	if r.end < r.block.Len() {
		trailing, err := r.block.Read(r.block.Len()-r.end, r.end)
		if err != nil {
			return nil, err
		}
		buf.Write(trailing)
	}

	return buf.Bytes(), nil
}
