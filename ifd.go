// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/tiff"
)

// IFDKind identifies one of the IFDs in an Exif block.
type IFDKind int

const (
	// IFDTIFF is the primary image IFD (IFD0).
	IFDTIFF IFDKind = iota
	// IFDExif is the IFD pointed to by the ExifIFDPointer tag.
	IFDExif
	// IFDGPS is the IFD pointed to by the GPSInfoIFDPointer tag.
	IFDGPS
)

var ifdKinds = []IFDKind{IFDTIFF, IFDExif, IFDGPS}

func (k IFDKind) String() string {
	switch k {
	case IFDTIFF:
		return "tiff"
	case IFDExif:
		return "exif"
	case IFDGPS:
		return "gps"
	default:
		return fmt.Sprintf("IFDKind(%d)", int(k))
	}
}

// namespace returns the path of the IFD as used in TagInfo.Namespace.
func (k IFDKind) namespace() string {
	switch k {
	case IFDExif:
		return "IFD0/ExifIFD"
	case IFDGPS:
		return "IFD0/GPSInfoIFD"
	default:
		return "IFD0"
	}
}

// Size in bytes of each type.
var exifTypeSize = map[tiff.DataType]uint32{
	tiff.DTByte:      1,
	tiff.DTAscii:     1,
	tiff.DTShort:     2,
	tiff.DTLong:      4,
	tiff.DTRational:  8,
	tiff.DTSByte:     1,
	tiff.DTUndefined: 1,
	tiff.DTSShort:    2,
	tiff.DTSLong:     4,
	tiff.DTSRational: 8,
	tiff.DTFloat:     4,
	tiff.DTDouble:    8,
}

// Size in bytes of each byte order dependent unit of a type.
// A rational is two 4 byte integers.
var exifTypeUnitSize = map[tiff.DataType]int{
	tiff.DTShort:     2,
	tiff.DTSShort:    2,
	tiff.DTLong:      4,
	tiff.DTSLong:     4,
	tiff.DTFloat:     4,
	tiff.DTRational:  4,
	tiff.DTSRational: 4,
	tiff.DTDouble:    8,
}

// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for a pointer to another location where the data may be found.
const (
	ifdEntrySize = 12
	ifdValueSize = 4
)

// Entry is one tag in an IFD.
type Entry struct {
	ID    uint16
	Type  tiff.DataType
	Count uint32
	// Value is the raw value in the IFD's byte order, without padding.
	Value []byte
}

// IFD is one Image File Directory, a table of tags.
type IFD struct {
	kind    IFDKind
	order   binary.ByteOrder
	entries []Entry // Sorted by ID.

	modified bool
}

// NewIFD creates an empty IFD.
func NewIFD(kind IFDKind, order binary.ByteOrder) *IFD {
	return &IFD{kind: kind, order: order}
}

// decodeIFD decodes the IFD at offset in the TIFF structure b.
// It returns the offset of the next IFD in the chain, 0 if none.
func decodeIFD(kind IFDKind, b []byte, offset uint32, order binary.ByteOrder) (*IFD, uint32, error) {
	if err := checkIFDBounds(kind, b, offset, order); err != nil {
		return nil, 0, err
	}
	r := bytes.NewReader(b)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, 0, err
	}
	dir, next, err := tiff.DecodeDir(r, order)
	if err != nil {
		return nil, 0, newInvalidFormatErrorf("%s IFD at offset %d: %w", kind, offset, err)
	}

	ifd := NewIFD(kind, order)
	for _, t := range dir.Tags {
		ifd.set(Entry{ID: t.Id, Type: t.Type, Count: t.Count, Value: t.Val})
	}
	ifd.modified = false
	if next < 0 {
		next = 0
	}
	return ifd, uint32(next), nil
}

// checkIFDBounds verifies that the table at offset and all values it
// points to are within b.
func checkIFDBounds(kind IFDKind, b []byte, offset uint32, order binary.ByteOrder) error {
	size := uint64(len(b))
	if uint64(offset)+2 > size {
		return fmt.Errorf("%w: %s IFD at offset %d in a block of %d bytes", ErrBounds, kind, offset, len(b))
	}
	n := uint64(order.Uint16(b[offset:]))
	if uint64(offset)+2+12*n+4 > size {
		return fmt.Errorf("%w: %s IFD at offset %d with %d entries in a block of %d bytes", ErrBounds, kind, offset, n, len(b))
	}
	for i := range n {
		e := b[uint64(offset)+2+12*i:]
		typ := tiff.DataType(order.Uint16(e[2:]))
		typeSize, ok := exifTypeSize[typ]
		if !ok {
			return newInvalidFormatErrorf("%s IFD: tag 0x%04x has unknown type %d", kind, order.Uint16(e), typ)
		}
		valSize := uint64(typeSize) * uint64(order.Uint32(e[4:]))
		if valSize <= 4 {
			continue
		}
		if uint64(order.Uint32(e[8:]))+valSize > size {
			return fmt.Errorf("%w: %s IFD: value of tag 0x%04x is out of bounds", ErrBounds, kind, order.Uint16(e))
		}
	}
	return nil
}

// Kind returns the kind of IFD.
func (d *IFD) Kind() IFDKind {
	return d.kind
}

// ByteOrder returns the byte order of the IFD's values.
func (d *IFD) ByteOrder() binary.ByteOrder {
	return d.order
}

// IsBigEndian reports whether the IFD's values are big-endian.
func (d *IFD) IsBigEndian() bool {
	return d.order == binary.BigEndian
}

// Entries returns the tags sorted by ID.
func (d *IFD) Entries() []Entry {
	return d.entries
}

// Len returns the number of tags.
func (d *IFD) Len() int {
	return len(d.entries)
}

func (d *IFD) find(id uint16) (int, bool) {
	return slices.BinarySearchFunc(d.entries, id, func(e Entry, id uint16) int {
		return int(e.ID) - int(id)
	})
}

// Tag returns the tag with the given ID.
func (d *IFD) Tag(id uint16) (Entry, bool) {
	i, found := d.find(id)
	if !found {
		return Entry{}, false
	}
	return d.entries[i], true
}

// SetEntry adds or replaces a tag.
// The value must be in the IFD's byte order.
func (d *IFD) SetEntry(e Entry) error {
	size, ok := exifTypeSize[e.Type]
	if !ok {
		return fmt.Errorf("%w: tag 0x%04x: unknown type %d", ErrUnsupportedConstruction, e.ID, e.Type)
	}
	if uint64(size)*uint64(e.Count) != uint64(len(e.Value)) {
		return fmt.Errorf("%w: tag 0x%04x: %d values of type %d do not fit in %d bytes", ErrUnsupportedConstruction, e.ID, e.Count, e.Type, len(e.Value))
	}
	d.set(e)
	return nil
}

func (d *IFD) set(e Entry) {
	d.modified = true
	i, found := d.find(e.ID)
	if found {
		d.entries[i] = e
		return
	}
	d.entries = slices.Insert(d.entries, i, e)
}

// Delete removes the tag with the given ID.
func (d *IFD) Delete(id uint16) bool {
	i, found := d.find(id)
	if !found {
		return false
	}
	d.entries = slices.Delete(d.entries, i, i+1)
	d.modified = true
	return true
}

// Value returns the decoded value of the tag with the given ID.
//
// ASCII values are returned as string, BYTE and UNDEFINED values as []byte.
// Other types are returned as a single value if the count is 1, else as []any.
// Rationals are returned as Rat[uint32] or Rat[int32].
func (d *IFD) Value(id uint16) (any, bool) {
	e, ok := d.Tag(id)
	if !ok {
		return nil, false
	}
	return d.decodeValue(e), true
}

func (d *IFD) decodeValue(e Entry) any {
	switch e.Type {
	case tiff.DTAscii:
		return string(trimBytesNulls(e.Value))
	case tiff.DTByte, tiff.DTUndefined:
		return e.Value
	}

	size := int(exifTypeSize[e.Type])
	if e.Count == 0 || size == 0 {
		return nil
	}
	values := make([]any, e.Count)
	for i := range values {
		b := e.Value[i*size : (i+1)*size]
		values[i] = d.decodeOne(e.Type, b)
	}
	if len(values) == 1 {
		return values[0]
	}
	return values
}

func (d *IFD) decodeOne(typ tiff.DataType, b []byte) any {
	switch typ {
	case tiff.DTShort:
		return d.order.Uint16(b)
	case tiff.DTLong:
		return d.order.Uint32(b)
	case tiff.DTSByte:
		return int8(b[0])
	case tiff.DTSShort:
		return int16(d.order.Uint16(b))
	case tiff.DTSLong:
		return int32(d.order.Uint32(b))
	case tiff.DTRational:
		return newRawRat(d.order.Uint32(b[:4]), d.order.Uint32(b[4:]))
	case tiff.DTSRational:
		return newRawRat(int32(d.order.Uint32(b[:4])), int32(d.order.Uint32(b[4:])))
	case tiff.DTFloat:
		return math.Float32frombits(d.order.Uint32(b))
	case tiff.DTDouble:
		return math.Float64frombits(d.order.Uint64(b))
	default:
		return b
	}
}

// SetValue encodes v and sets it as the value of the tag with the given ID.
//
// Supported values are string, []byte, uint8, uint16, uint32, int, int32,
// float64, Rat[uint32], Rat[int32] and slices of the numeric types.
// An int is written with the type of the existing tag, or the tag's default type.
func (d *IFD) SetValue(id uint16, v any) error {
	typ, hasType := d.currentType(id)

	var (
		e   Entry
		err error
	)
	e.ID = id

	switch vv := v.(type) {
	case string:
		e.Type = tiff.DTAscii
		e.Value = append([]byte(vv), 0)
		e.Count = uint32(len(e.Value))
	case []byte:
		e.Type = tiff.DTUndefined
		if hasType && typ == tiff.DTByte {
			e.Type = tiff.DTByte
		}
		e.Value = slices.Clone(vv)
		e.Count = uint32(len(vv))
	case uint8:
		e.Type = tiff.DTByte
		e.Value = []byte{vv}
		e.Count = 1
	case uint16:
		e, err = d.encodeInts(id, tiff.DTShort, []int64{int64(vv)})
	case []uint16:
		e, err = d.encodeInts(id, tiff.DTShort, toInt64s(vv))
	case uint32:
		e, err = d.encodeInts(id, tiff.DTLong, []int64{int64(vv)})
	case []uint32:
		e, err = d.encodeInts(id, tiff.DTLong, toInt64s(vv))
	case int32:
		e, err = d.encodeInts(id, tiff.DTSLong, []int64{int64(vv)})
	case []int32:
		e, err = d.encodeInts(id, tiff.DTSLong, toInt64s(vv))
	case int:
		e, err = d.encodeInts(id, d.intType(typ, hasType), []int64{int64(vv)})
	case []int:
		e, err = d.encodeInts(id, d.intType(typ, hasType), toInt64s(vv))
	case float64:
		e.Type = tiff.DTDouble
		e.Count = 1
		e.Value = appendUint64(d.order, nil, math.Float64bits(vv))
	case Rat[uint32]:
		e = d.encodeRats(id, tiff.DTRational, []uint32{vv.Num(), vv.Den()})
	case []Rat[uint32]:
		var nums []uint32
		for _, r := range vv {
			nums = append(nums, r.Num(), r.Den())
		}
		e = d.encodeRats(id, tiff.DTRational, nums)
	case Rat[int32]:
		e = d.encodeRats(id, tiff.DTSRational, []uint32{uint32(vv.Num()), uint32(vv.Den())})
	case []Rat[int32]:
		var nums []uint32
		for _, r := range vv {
			nums = append(nums, uint32(r.Num()), uint32(r.Den()))
		}
		e = d.encodeRats(id, tiff.DTSRational, nums)
	default:
		return fmt.Errorf("%w: tag %s: value of type %T", ErrUnsupportedConstruction, TagName(d.kind, id), v)
	}
	if err != nil {
		return err
	}

	d.set(e)
	return nil
}

func (d *IFD) currentType(id uint16) (tiff.DataType, bool) {
	if e, ok := d.Tag(id); ok {
		return e.Type, true
	}
	return defaultTagType(d.kind, id)
}

func (d *IFD) intType(typ tiff.DataType, ok bool) tiff.DataType {
	if !ok {
		return tiff.DTLong
	}
	switch typ {
	case tiff.DTByte, tiff.DTShort, tiff.DTLong, tiff.DTSByte, tiff.DTSShort, tiff.DTSLong:
		return typ
	default:
		return tiff.DTLong
	}
}

func (d *IFD) encodeInts(id uint16, typ tiff.DataType, vals []int64) (Entry, error) {
	e := Entry{ID: id, Type: typ, Count: uint32(len(vals))}
	for _, v := range vals {
		switch typ {
		case tiff.DTByte, tiff.DTSByte:
			if v < math.MinInt8 || v > math.MaxUint8 {
				return e, fmt.Errorf("%w: tag %s: %d overflows a byte", ErrUnsupportedConstruction, TagName(d.kind, id), v)
			}
			e.Value = append(e.Value, byte(v))
		case tiff.DTShort, tiff.DTSShort:
			if v < math.MinInt16 || v > math.MaxUint16 {
				return e, fmt.Errorf("%w: tag %s: %d overflows a short", ErrUnsupportedConstruction, TagName(d.kind, id), v)
			}
			e.Value = appendUint16(d.order, e.Value, uint16(v))
		default:
			if v < math.MinInt32 || v > math.MaxUint32 {
				return e, fmt.Errorf("%w: tag %s: %d overflows a long", ErrUnsupportedConstruction, TagName(d.kind, id), v)
			}
			e.Value = appendUint32(d.order, e.Value, uint32(v))
		}
	}
	return e, nil
}

func (d *IFD) encodeRats(id uint16, typ tiff.DataType, nums []uint32) Entry {
	e := Entry{ID: id, Type: typ, Count: uint32(len(nums) / 2)}
	for _, n := range nums {
		e.Value = appendUint32(d.order, e.Value, n)
	}
	return e
}

func appendUint16(order binary.ByteOrder, b []byte, v uint16) []byte {
	var x [2]byte
	order.PutUint16(x[:], v)
	return append(b, x[:]...)
}

func appendUint32(order binary.ByteOrder, b []byte, v uint32) []byte {
	var x [4]byte
	order.PutUint32(x[:], v)
	return append(b, x[:]...)
}

func appendUint64(order binary.ByteOrder, b []byte, v uint64) []byte {
	var x [8]byte
	order.PutUint64(x[:], v)
	return append(b, x[:]...)
}

func toInt64s[T uint16 | uint32 | int32 | int](vals []T) []int64 {
	res := make([]int64, len(vals))
	for i, v := range vals {
		res[i] = int64(v)
	}
	return res
}

// valueSize returns the number of bytes the value takes outside the
// tag table, word aligned. Values of up to 4 bytes are stored in the table.
func valueSize(e Entry) uint32 {
	n := uint32(len(e.Value))
	if n <= ifdValueSize {
		return 0
	}
	return n + n%2
}

func (d *IFD) tableSize() uint32 {
	return 2 + ifdEntrySize*uint32(len(d.entries)) + 4
}

// Size returns the number of bytes Encode will produce.
func (d *IFD) Size() uint32 {
	size := d.tableSize()
	for _, e := range d.entries {
		size += valueSize(e)
	}
	return size
}

// Encode encodes the IFD to be placed at offset base in a TIFF structure.
// Values that do not fit in the table follow it, in tag order.
// The next IFD offset is written as 0.
func (d *IFD) Encode(base uint32) []byte {
	b := make([]byte, 0, d.Size())
	b = appendUint16(d.order, b, uint16(len(d.entries)))

	dataOffset := base + d.tableSize()
	var data []byte
	for _, e := range d.entries {
		b = appendUint16(d.order, b, e.ID)
		b = appendUint16(d.order, b, uint16(e.Type))
		b = appendUint32(d.order, b, e.Count)
		if len(e.Value) <= ifdValueSize {
			var v [ifdValueSize]byte
			copy(v[:], e.Value)
			b = append(b, v[:]...)
			continue
		}
		b = appendUint32(d.order, b, dataOffset+uint32(len(data)))
		data = append(data, e.Value...)
		if len(e.Value)%2 == 1 {
			data = append(data, 0)
		}
	}
	b = appendUint32(d.order, b, 0)
	return append(b, data...)
}

// convertByteOrder rewrites all values in the given byte order.
func (d *IFD) convertByteOrder(order binary.ByteOrder) {
	if d.order == order {
		return
	}
	for i, e := range d.entries {
		unit := exifTypeUnitSize[e.Type]
		if unit == 0 {
			continue
		}
		v := slices.Clone(e.Value)
		for j := 0; j+unit <= len(v); j += unit {
			slices.Reverse(v[j : j+unit])
		}
		d.entries[i].Value = v
	}
	d.order = order
	d.modified = true
}

// parseValue parses s as a value of the given type, for use with SetValue.
// Multiple numeric values are separated by spaces or commas.
func parseValue(typ tiff.DataType, s string) (any, error) {
	if typ == tiff.DTAscii {
		return s, nil
	}
	if typ == tiff.DTUndefined || typ == tiff.DTByte {
		if !strings.ContainsAny(s, " ,") {
			if _, err := strconv.Atoi(s); err != nil {
				return []byte(s), nil
			}
		}
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrUnsupportedConstruction)
	}

	switch typ {
	case tiff.DTRational:
		rats := make([]Rat[uint32], len(fields))
		for i, f := range fields {
			r, err := parseRat[uint32](f)
			if err != nil {
				return nil, err
			}
			rats[i] = r
		}
		if len(rats) == 1 {
			return rats[0], nil
		}
		return rats, nil
	case tiff.DTSRational:
		rats := make([]Rat[int32], len(fields))
		for i, f := range fields {
			r, err := parseRat[int32](f)
			if err != nil {
				return nil, err
			}
			rats[i] = r
		}
		if len(rats) == 1 {
			return rats[0], nil
		}
		return rats, nil
	case tiff.DTFloat, tiff.DTDouble:
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case tiff.DTByte, tiff.DTUndefined:
		b := make([]byte, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return nil, err
			}
			b[i] = byte(n)
		}
		return b, nil
	default:
		ints := make([]int, len(fields))
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, err
			}
			ints[i] = n
		}
		if len(ints) == 1 {
			return ints[0], nil
		}
		return ints, nil
	}
}
