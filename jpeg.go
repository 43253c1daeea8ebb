// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/rwcarlsen/goexif/tiff"
	"go4.org/wkfs"
)

// segmentKey points to one segment in JPEG.segments.
type segmentKey struct {
	marker Marker
	index  int
}

// JPEG is a parsed JPEG segment stream.
//
// Segments are read up to and including the first start of scan.
// Everything after it is copied as is on Write, from the source reader.
type JPEG struct {
	opts   Options
	src    io.ReaderAt
	size   int64
	closer io.Closer
	name   string

	segments   map[Marker][]*Segment
	order      []segmentKey // Stream order.
	unknown    []Marker     // Markers not in canonicalOrder, in order of first appearance.
	tailOffset int64
	valid      bool

	// Carriers of the Exif and IPTC data.
	exifKey *segmentKey
	iptcKey *segmentKey

	meta       *MetaInfo
	iptc       *IPTCBlock
	resources  *Resources
	iptcInTIFF bool
}

func (j *JPEG) warnf(format string, args ...any) {
	j.opts.Warnf(format, args...)
}

func (j *JPEG) parse() error {
	j.segments = make(map[Marker][]*Segment)

	pos := j.opts.Offset
	b, err := NewFileRegion(j.src, pos, 2).Bytes()
	if err != nil {
		return err
	}
	j.valid = b[0] == 0xFF && Marker(b[1]) == SOI
	if !j.valid {
		j.warnf("expected SOI marker at offset %d, got 0x%02X%02X", pos, b[0], b[1])
	}
	pos += 2

	for {
		b, err := NewFileRegion(j.src, pos, 2).Bytes()
		if err != nil {
			return err
		}
		if b[0] == 0xFF && b[1] == 0xFF {
			// Fill byte.
			j.warnf("skipping fill byte at offset %d", pos)
			pos++
			continue
		}
		if b[0] == 0xFF && Marker(b[1]) == EOI {
			j.warnf("end of image at offset %d before any start of scan", pos)
			break
		}

		seg, err := ReadSegment(j.src, pos)
		if err != nil {
			return err
		}
		m := seg.Marker()
		j.order = append(j.order, segmentKey{marker: m, index: len(j.segments[m])})
		j.segments[m] = append(j.segments[m], seg)
		if !slices.Contains(canonicalOrder, m) && !slices.Contains(j.unknown, m) {
			j.warnf("segment type %s is written after the frame headers", m)
			j.unknown = append(j.unknown, m)
		}

		pos += segmentHeaderSize + seg.Len()
		if pos > j.size {
			return fmt.Errorf("%w: %s segment at offset %d runs past the end of the data", ErrBounds, m, pos-segmentHeaderSize-seg.Len())
		}
		if m == SOS {
			break
		}
	}
	j.tailOffset = pos

	if err := j.findExif(); err != nil {
		return err
	}
	return j.findIPTC()
}

// findExif decodes the first APP1 segment starting with "Exif\0\0".
func (j *JPEG) findExif() error {
	for i, seg := range j.segments[APP1] {
		if !seg.hasPrefix(exifHeader) {
			continue
		}
		b, err := seg.Data()
		if err != nil {
			return err
		}
		meta, err := decodeExifBlock(b[len(exifHeader):], j.opts.Warnf)
		if err != nil {
			return fmt.Errorf("Exif in %s segment %d: %w", APP1, i, err)
		}
		j.exifKey = &segmentKey{marker: APP1, index: i}
		j.meta = meta
		return nil
	}
	return nil
}

// findIPTC decodes the IPTC block stored in the IPTC-NAA tag of the tiff IFD,
// or else in the first APP13 Photoshop resource block holding it.
func (j *JPEG) findIPTC() error {
	if j.meta != nil {
		if e, found := j.meta.IFD(IFDTIFF).Tag(tagIPTCNAA); found {
			iptc, err := decodeIPTC(e.Value, j.opts.Warnf)
			if err != nil {
				return err
			}
			j.iptc = iptc
			j.iptcInTIFF = true
			return nil
		}
	}

	for i, seg := range j.segments[APP13] {
		if !seg.hasPrefix(photoshopHeader) {
			continue
		}
		block, err := seg.Region().Section(int64(len(photoshopHeader)), seg.Len()-int64(len(photoshopHeader)))
		if err != nil {
			return err
		}
		res, err := scanResources(block, !j.opts.UnpaddedResources)
		if err != nil {
			return fmt.Errorf("Photoshop resources in %s segment %d: %w", APP13, i, err)
		}
		if res.Stopped() {
			j.warnf("%d bytes after the last Photoshop resource in %s segment %d", block.Len()-res.End(), APP13, i)
		}
		if _, found := res.Entry(IPTCResourceID); !found {
			continue
		}
		payload, err := res.Payload(IPTCResourceID)
		if err != nil {
			return err
		}
		b, err := payload.Bytes()
		if err != nil {
			return err
		}
		iptc, err := decodeIPTC(b, j.opts.Warnf)
		if err != nil {
			return err
		}
		j.iptcKey = &segmentKey{marker: APP13, index: i}
		j.resources = res
		j.iptc = iptc
		return nil
	}

	return nil
}

func (j *JPEG) segment(k *segmentKey) *Segment {
	if k == nil {
		return nil
	}
	segs := j.segments[k.marker]
	if k.index >= len(segs) {
		return nil
	}
	return segs[k.index]
}

// Valid reports whether the stream started with the SOI marker.
func (j *JPEG) Valid() bool {
	return j.valid
}

// Segments returns the segments with the given marker, in stream order.
func (j *JPEG) Segments(m Marker) []*Segment {
	return j.segments[m]
}

// StreamSegments returns the segments read, in stream order.
func (j *JPEG) StreamSegments() []*Segment {
	segs := make([]*Segment, 0, len(j.order))
	for _, k := range j.order {
		if s := j.segment(&k); s != nil {
			segs = append(segs, s)
		}
	}
	return segs
}

// ExifSegment returns the APP1 segment carrying the Exif data, or nil.
func (j *JPEG) ExifSegment() *Segment {
	return j.segment(j.exifKey)
}

// IPTCSegment returns the APP13 segment carrying the IPTC data, or nil.
// It is nil also when the IPTC data is stored in the Exif data.
func (j *JPEG) IPTCSegment() *Segment {
	return j.segment(j.iptcKey)
}

// Meta returns the decoded Exif data, or nil if there is none.
func (j *JPEG) Meta() *MetaInfo {
	return j.meta
}

// ExifTagPayload returns the value of the named Exif tag.
// See MetaInfo.TagPayload.
func (j *JPEG) ExifTagPayload(name string) (any, bool) {
	if j.meta == nil {
		return nil, false
	}
	return j.meta.TagPayload(name)
}

// SetExifTag sets the value of the named Exif tag.
// See MetaInfo.SetTag.
func (j *JPEG) SetExifTag(name string, v any) error {
	if j.meta == nil {
		j.meta = NewMetaInfo(binary.BigEndian)
		j.meta.warnf = j.opts.Warnf
	}
	return j.meta.SetTag(name, v)
}

// IPTC returns the decoded IPTC data, or nil if there is none.
func (j *JPEG) IPTC() *IPTCBlock {
	return j.iptc
}

// SetIPTC sets the values of the named IPTC dataset.
// See IPTCBlock.Set.
func (j *JPEG) SetIPTC(name string, values ...string) error {
	if j.iptc == nil {
		j.iptc = NewIPTCBlock()
		j.iptc.warnf = j.opts.Warnf
	}
	return j.iptc.Set(name, values...)
}

// Resources returns the Photoshop resources of the IPTC carrier, or nil.
func (j *JPEG) Resources() *Resources {
	return j.resources
}

// Comments returns the payloads of the COM segments.
func (j *JPEG) Comments() ([]string, error) {
	var comments []string
	for _, seg := range j.segments[COM] {
		b, err := seg.Data()
		if err != nil {
			return nil, err
		}
		comments = append(comments, string(b))
	}
	return comments, nil
}

// SetComment replaces all COM segments with one holding s.
// If add is set, a new COM segment is added after the existing ones instead.
func (j *JPEG) SetComment(s string, add bool) error {
	if len(s) > maxSegmentPayload {
		return fmt.Errorf("%w: comment of %d bytes, max %d", ErrBounds, len(s), maxSegmentPayload)
	}
	seg := NewSegment(COM, []byte(s))
	if add {
		j.segments[COM] = append(j.segments[COM], seg)
		return nil
	}
	j.segments[COM] = []*Segment{seg}
	return nil
}

// Tags walks the Exif, IPTC and XMP tags, in that order.
func (j *JPEG) Tags(handle HandleTagFunc) error {
	var stopped bool
	h := func(ti TagInfo) error {
		err := handle(ti)
		if err == ErrStopWalking {
			stopped = true
		}
		return err
	}

	if j.meta != nil {
		if err := j.meta.Tags(h); err != nil || stopped {
			return err
		}
	}
	if j.iptc != nil {
		if err := j.iptc.Tags(h); err != nil || stopped {
			return err
		}
	}
	if err := j.XMP(h); err != nil && err != ErrStopWalking {
		return err
	}
	return nil
}

// prepareCarriers re-encodes modified Exif and IPTC data into their carriers.
func (j *JPEG) prepareCarriers() error {
	iptcModified := j.iptc != nil && j.iptc.Modified()

	if iptcModified && j.iptcInTIFF {
		if err := j.setIPTCInTIFF(); err != nil {
			return err
		}
	}

	if j.meta != nil && j.meta.Modified() {
		seg := j.ExifSegment()
		if seg == nil {
			return fmt.Errorf("%w: Exif data was modified but the source has no Exif segment", ErrMissingCarrier)
		}
		block, err := j.meta.ExifBlock()
		if err != nil {
			return err
		}
		seg.SetData(append([]byte(exifHeader), block...))
	}

	if iptcModified && !j.iptcInTIFF {
		seg := j.IPTCSegment()
		if seg == nil {
			return fmt.Errorf("%w: IPTC data was modified but the source has no Photoshop segment with IPTC", ErrMissingCarrier)
		}
		block, err := j.resources.Bytes(map[uint16][]byte{IPTCResourceID: j.iptc.Bytes()})
		if err != nil {
			return err
		}
		seg.SetData(append([]byte(photoshopHeader), block...))
	}

	return nil
}

// setIPTCInTIFF writes the IPTC block into the IPTC-NAA tag of the tiff IFD,
// keeping the tag's type.
func (j *JPEG) setIPTCInTIFF() error {
	ifd := j.meta.IFD(IFDTIFF)
	e, _ := ifd.Tag(tagIPTCNAA)
	b := j.iptc.Bytes()
	switch e.Type {
	case tiff.DTLong:
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		e.Count = uint32(len(b) / 4)
	default:
		e.Type = tiff.DTUndefined
		e.Count = uint32(len(b))
	}
	e.Value = b
	return ifd.SetEntry(e)
}

// orderedSegments returns the segments in the order they are written.
func (j *JPEG) orderedSegments() ([]*Segment, error) {
	if j.opts.PreserveSegmentOrder {
		return j.streamOrderedSegments(), nil
	}

	var segs []*Segment
	for _, m := range canonicalOrder {
		if m == SOS {
			for _, u := range j.unknown {
				segs = append(segs, j.segments[u]...)
			}
		}
		segs = append(segs, j.segments[m]...)
	}

	if err := checkMarkerOrder(segs); err != nil {
		return nil, err
	}

	return segs, nil
}

// streamOrderedSegments returns the segments in the order they were read.
// Segments added since then follow the last one of the same type that was
// read; segments of new types go right before the start of scan.
func (j *JPEG) streamOrderedSegments() []*Segment {
	last := make(map[Marker]int)
	for i, k := range j.order {
		last[k.marker] = i
	}

	var added []Marker
	for _, m := range canonicalOrder {
		if _, found := last[m]; !found && len(j.segments[m]) > 0 {
			added = append(added, m)
		}
	}

	var (
		segs   []*Segment
		cursor = make(map[Marker]int)
	)
	addNew := func() {
		for _, m := range added {
			segs = append(segs, j.segments[m]...)
		}
		added = nil
	}

	for i, k := range j.order {
		m := k.marker
		if m == SOS {
			addNew()
		}
		all := j.segments[m]
		if c := cursor[m]; c < len(all) {
			segs = append(segs, all[c])
			cursor[m] = c + 1
		}
		if last[m] == i && cursor[m] < len(all) {
			segs = append(segs, all[cursor[m]:]...)
			cursor[m] = len(all)
		}
	}
	addNew()

	return segs
}

// checkMarkerOrder verifies that segs is a frame the decoders will accept:
// at most one start of scan, last, and after a start of frame.
func checkMarkerOrder(segs []*Segment) error {
	var sawSOF bool
	for i, s := range segs {
		m := s.Marker()
		switch {
		case m.isSOF():
			sawSOF = true
		case m == SOS:
			if i != len(segs)-1 {
				return fmt.Errorf("%w: %s at position %d followed by %s", ErrMarkerOrder, m, i, segs[i+1].Marker())
			}
			if !sawSOF {
				return fmt.Errorf("%w: %s without a preceding start of frame", ErrMarkerOrder, m)
			}
		}
	}
	return nil
}

// Write writes the JPEG to w.
//
// Modified Exif and IPTC data is re-encoded into the segments that carried
// it in the source. All other segments and everything after the start of
// scan are copied unchanged.
func (j *JPEG) Write(w io.Writer) error {
	if err := j.prepareCarriers(); err != nil {
		return err
	}
	segs, err := j.orderedSegments()
	if err != nil {
		return err
	}

	if _, err := w.Write([]byte{0xFF, byte(SOI)}); err != nil {
		return err
	}
	for _, s := range segs {
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}

	tail := io.NewSectionReader(j.src, j.tailOffset, j.size-j.tailOffset)
	_, err = io.Copy(w, tail)
	return err
}

// WriteFile writes the JPEG to the named file, see Write.
// The file is created through go4.org/wkfs and must not be the file
// the JPEG was opened from.
func (j *JPEG) WriteFile(filename string) (err error) {
	if j.name != "" && filepath.Clean(filename) == filepath.Clean(j.name) {
		return fmt.Errorf("%w: %q is the source file", ErrUnsupportedConstruction, filename)
	}

	f, err := wkfs.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	bw := bufio.NewWriter(f)
	if err := j.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Close closes the file opened by Open.
func (j *JPEG) Close() error {
	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	return err
}
