// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rwcarlsen/goexif/tiff"
)

const (
	exifHeader = "Exif\x00\x00"

	tiffHeaderSize = 8
	tiffMagic      = 42

	byteOrderBigEndian    = "MM"
	byteOrderLittleEndian = "II"
)

// MetaInfo holds the tiff, exif and gps IFDs of an Exif block.
type MetaInfo struct {
	order binary.ByteOrder
	ifds  [3]*IFD

	warnf    func(string, ...any)
	modified bool
}

// NewMetaInfo creates an empty MetaInfo using the given byte order for new IFDs.
func NewMetaInfo(order binary.ByteOrder) *MetaInfo {
	return &MetaInfo{order: order, warnf: func(string, ...any) {}}
}

// decodeExifBlock decodes a TIFF structure, the part of an Exif APP1 payload
// after the "Exif\0\0" header.
func decodeExifBlock(b []byte, warnf func(string, ...any)) (*MetaInfo, error) {
	if len(b) < tiffHeaderSize {
		return nil, fmt.Errorf("%w: TIFF header needs %d bytes, got %d", ErrBounds, tiffHeaderSize, len(b))
	}

	var order binary.ByteOrder
	switch string(b[:2]) {
	case byteOrderBigEndian:
		order = binary.BigEndian
	case byteOrderLittleEndian:
		order = binary.LittleEndian
	default:
		return nil, fmt.Errorf("%w: invalid TIFF byte order %q", ErrMalformedHeader, b[:2])
	}
	if magic := order.Uint16(b[2:4]); magic != tiffMagic {
		return nil, fmt.Errorf("%w: invalid TIFF magic %d", ErrMalformedHeader, magic)
	}

	m := NewMetaInfo(order)
	if warnf != nil {
		m.warnf = warnf
	}

	tiffIFD, next, err := decodeIFD(IFDTIFF, b, order.Uint32(b[4:8]), order)
	if err != nil {
		return nil, err
	}
	m.ifds[IFDTIFF] = tiffIFD
	if next != 0 {
		m.warnf("IFD1 at offset %d is not kept when the Exif block is rewritten", next)
	}

	for _, sub := range []struct {
		kind IFDKind
		ptr  uint16
	}{
		{IFDExif, tagExifIFDPointer},
		{IFDGPS, tagGPSInfoIFDPointer},
	} {
		offset, ok, err := pointerValue(tiffIFD, sub.ptr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ifd, _, err := decodeIFD(sub.kind, b, offset, order)
		if err != nil {
			return nil, err
		}
		m.ifds[sub.kind] = ifd
	}

	if exif := m.ifds[IFDExif]; exif != nil {
		if _, found := exif.Tag(tagInteropIFDPointer); found {
			m.warnf("the Interoperability IFD is not kept when the Exif block is rewritten")
			exif.Delete(tagInteropIFDPointer)
			exif.modified = false
		}
	}

	return m, nil
}

func pointerValue(ifd *IFD, id uint16) (uint32, bool, error) {
	v, found := ifd.Value(id)
	if !found {
		return 0, false, nil
	}
	switch vv := v.(type) {
	case uint32:
		return vv, true, nil
	case uint16:
		return uint32(vv), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s has unexpected value %v", ErrMalformedHeader, TagName(ifd.kind, id), v)
	}
}

// IFD returns the IFD of the given kind, or nil if not present.
func (m *MetaInfo) IFD(kind IFDKind) *IFD {
	if kind < 0 || int(kind) >= len(m.ifds) {
		return nil
	}
	return m.ifds[kind]
}

// SetIFD sets or, if ifd is nil, removes the IFD of the given kind.
func (m *MetaInfo) SetIFD(kind IFDKind, ifd *IFD) {
	if ifd != nil && ifd.kind != kind {
		panic(fmt.Sprintf("IFD of kind %s set as %s", ifd.kind, kind))
	}
	m.ifds[kind] = ifd
	m.modified = true
}

// ByteOrder returns the byte order of the tiff IFD, which all IFDs are written in.
func (m *MetaInfo) ByteOrder() binary.ByteOrder {
	if tiffIFD := m.ifds[IFDTIFF]; tiffIFD != nil {
		return tiffIFD.order
	}
	return m.order
}

// Modified reports whether any IFD has changed since decoding.
func (m *MetaInfo) Modified() bool {
	if m.modified {
		return true
	}
	for _, ifd := range m.ifds {
		if ifd != nil && ifd.modified {
			return true
		}
	}
	return false
}

// lookup finds the first IFD, in tiff, exif, gps order, holding the named tag.
func (m *MetaInfo) lookup(name string) (*IFD, Entry, bool) {
	for _, kind := range ifdKinds {
		ifd := m.ifds[kind]
		if ifd == nil {
			continue
		}
		id, ok := TagID(kind, name)
		if !ok {
			continue
		}
		if e, found := ifd.Tag(id); found && len(e.Value) > 0 {
			return ifd, e, true
		}
	}
	return nil, Entry{}, false
}

// TagPayload returns the decoded value of the named tag.
// The tiff IFD is searched first, then exif, then gps; the first non-empty
// match wins. See IFD.Value for the value types.
func (m *MetaInfo) TagPayload(name string) (any, bool) {
	ifd, e, found := m.lookup(name)
	if !found {
		return nil, false
	}
	return ifd.decodeValue(e), true
}

// SetTag sets the value of the named tag, see IFD.SetValue for the supported types.
// The tag is set in the first IFD already holding it, else in the first IFD
// kind the tag belongs to, which is created if needed.
func (m *MetaInfo) SetTag(name string, v any) error {
	ifd, id, err := m.ifdForSet(name)
	if err != nil {
		return err
	}
	return ifd.SetValue(id, v)
}

// DeleteTag removes the named tag from the first IFD holding it.
func (m *MetaInfo) DeleteTag(name string) bool {
	ifd, e, found := m.lookup(name)
	if !found {
		return false
	}
	return ifd.Delete(e.ID)
}

// ParseTagValue parses s into a value for the named tag, typed after the
// existing tag or the tag's default type.
func (m *MetaInfo) ParseTagValue(name string, s string) (any, error) {
	typ := tiff.DTAscii
	if _, e, found := m.lookup(name); found {
		typ = e.Type
	} else if kind, id, ok := knownTag(name); ok {
		typ, _ = defaultTagType(kind, id)
	}
	return parseValue(typ, s)
}

func (m *MetaInfo) ifdForSet(name string) (*IFD, uint16, error) {
	if ifd, e, found := m.lookup(name); found {
		return ifd, e.ID, nil
	}
	if kind, id, ok := knownTag(name); ok {
		return m.ensureIFD(kind), id, nil
	}
	if id, ok := TagID(IFDTIFF, name); ok {
		return m.ensureIFD(IFDTIFF), id, nil
	}
	return nil, 0, fmt.Errorf("%w: unknown Exif tag %q", ErrUnsupportedConstruction, name)
}

// knownTag finds the first IFD kind, in tiff, exif, gps order, whose field
// table has the tag given by name or hexadecimal ID.
func knownTag(name string) (IFDKind, uint16, bool) {
	for _, kind := range ifdKinds {
		id, ok := TagID(kind, name)
		if !ok {
			continue
		}
		if _, known := exifFieldsByKind[kind][id]; known {
			return kind, id, true
		}
	}
	return 0, 0, false
}

func (m *MetaInfo) ensureIFD(kind IFDKind) *IFD {
	if m.ifds[kind] == nil {
		m.ifds[kind] = NewIFD(kind, m.ByteOrder())
		m.modified = true
	}
	return m.ifds[kind]
}

// ExifBlock assembles the TIFF header and the IFDs into one TIFF structure.
//
// The tiff IFD is placed right after the 8 byte header, followed by the exif
// and then the gps IFD. The pointer tags in the tiff IFD are set to the
// offsets, and removed for absent IFDs. All IFDs are written in the byte order
// of the tiff IFD.
func (m *MetaInfo) ExifBlock() ([]byte, error) {
	tiffIFD := m.ensureIFD(IFDTIFF)
	order := tiffIFD.order
	exif, gps := m.ifds[IFDExif], m.ifds[IFDGPS]

	for _, ifd := range []*IFD{exif, gps} {
		if ifd != nil {
			ifd.convertByteOrder(order)
		}
	}
	// The pointer tags must be in place before the sizes are computed.
	setPointer := func(id uint16, ifd *IFD, offset uint32) error {
		if ifd == nil {
			tiffIFD.Delete(id)
			return nil
		}
		return tiffIFD.SetValue(id, offset)
	}
	if err := setPointer(tagExifIFDPointer, exif, 0); err != nil {
		return nil, err
	}
	if err := setPointer(tagGPSInfoIFDPointer, gps, 0); err != nil {
		return nil, err
	}

	var exifOffset, gpsOffset uint32
	next := tiffHeaderSize + tiffIFD.Size()
	if exif != nil {
		exifOffset = next
		next += exif.Size()
	}
	if gps != nil {
		gpsOffset = next
		next += gps.Size()
	}
	if next+uint32(len(exifHeader)) > maxSegmentPayload {
		return nil, fmt.Errorf("%w: Exif block of %d bytes does not fit in a segment", ErrBounds, next)
	}

	if err := setPointer(tagExifIFDPointer, exif, exifOffset); err != nil {
		return nil, err
	}
	if err := setPointer(tagGPSInfoIFDPointer, gps, gpsOffset); err != nil {
		return nil, err
	}

	b := make([]byte, 0, next)
	if order == binary.BigEndian {
		b = append(b, byteOrderBigEndian...)
	} else {
		b = append(b, byteOrderLittleEndian...)
	}
	b = appendUint16(order, b, tiffMagic)
	b = appendUint32(order, b, tiffHeaderSize)
	b = append(b, tiffIFD.Encode(tiffHeaderSize)...)
	if exif != nil {
		b = append(b, exif.Encode(exifOffset)...)
	}
	if gps != nil {
		b = append(b, gps.Encode(gpsOffset)...)
	}

	return b, nil
}

// Tags walks all tags in the tiff, exif and gps IFDs, in that order.
// The pointer tags are not included.
func (m *MetaInfo) Tags(handle HandleTagFunc) error {
	for _, kind := range ifdKinds {
		ifd := m.ifds[kind]
		if ifd == nil {
			continue
		}
		for _, e := range ifd.entries {
			if e.ID == tagExifIFDPointer || e.ID == tagGPSInfoIFDPointer || (kind == IFDExif && e.ID == tagInteropIFDPointer) {
				continue
			}
			name := TagName(kind, e.ID)
			val := ifd.decodeValue(e)
			if convert, found := exifValueConverterMap[name]; found {
				val = convert(valueConverterContext{byteOrder: ifd.order, tagName: name, warnf: m.warnf}, val)
			} else {
				val = toPrintableValue(val)
			}
			if val == nil {
				val = ""
			}
			ti := TagInfo{
				Source:    EXIF,
				Tag:       name,
				Namespace: kind.namespace(),
				Value:     val,
			}
			if err := handle(ti); err != nil {
				if err == ErrStopWalking {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// LatLong returns the GPS position in decimal degrees.
// South and west are negative.
func (m *MetaInfo) LatLong() (lat, long float64, found bool) {
	gps := m.ifds[IFDGPS]
	if gps == nil {
		return
	}
	latv, ok1 := gps.Value(0x0002)
	longv, ok2 := gps.Value(0x0004)
	if !ok1 || !ok2 {
		return
	}
	var err error
	if lat, err = exifConverters.toDegrees(latv); err != nil {
		return 0, 0, false
	}
	if long, err = exifConverters.toDegrees(longv); err != nil {
		return 0, 0, false
	}
	if ref, _ := gps.Value(0x0001); ref == "S" {
		lat = -lat
	}
	if ref, _ := gps.Value(0x0003); ref == "W" {
		long = -long
	}
	if math.IsNaN(lat) || math.IsNaN(long) {
		return 0, 0, false
	}
	return lat, long, true
}
