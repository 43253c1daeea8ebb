// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	_ "embed" // needed for the embedded IPTC fields JSON
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Source: https://exiftool.org/TagNames/IPTC.html
//
//go:embed iptc_fields.json
var iptcTagsJSON []byte

var (
	iptcRecordFields = map[uint8]map[uint8]iptcField{}
	iptcFieldsByName = map[string]iptcField{}
	iptcRecordNames  = map[uint8]string{
		1:   "IPTCEnvelope",
		2:   "IPTCApplication",
		3:   "IPTCNewsPhoto",
		7:   "IPTCPreObjectData",
		8:   "IPTCObjectData",
		9:   "IPTCPostObjectData",
		240: "IPTCFotoStation",
	}
)

const (
	iptcTagMarker        = 0x1C
	iptcEnvelopeRecord   = 1
	ipcCodedCharacterSet = 90

	// A length with the high bit set gives the number of bytes of the
	// extended length that follows.
	iptcExtendedLength    = 0x8000
	iptcMaxStandardLength = 0x7FFF
)

type vcIPTC struct{}

func (c *vcIPTC) convertDateString(ctx valueConverterContext, v any) any {
	s := toString(v)
	// 20211020 => 2021:10:20
	if len(s) == 8 {
		return fmt.Sprintf("%s:%s:%s", s[:4], s[4:6], s[6:])
	}
	// 2015-01-22 => 2015:01:22
	if len(s) == 10 {
		return fmt.Sprintf("%s:%s:%s", s[:4], s[5:7], s[8:])
	}
	return s
}

func (c *vcIPTC) convertTime(ctx valueConverterContext, v any) any {
	s := toString(v)
	// 111116 => 11:11:16
	if len(s) == 6 {
		return fmt.Sprintf("%s:%s:%s", s[:2], s[2:4], s[4:])
	}
	// 130444+1000 => 13:04:44+10:00
	if len(s) == 11 {
		return fmt.Sprintf("%s:%s:%s%s:%s", s[:2], s[2:4], s[4:6], s[6:9], s[9:])
	}
	return s
}

var (
	iptcConverters        = &vcIPTC{}
	iptcValueConverterMap = map[string]valueConverter{
		"DateCreated":         iptcConverters.convertDateString,
		"DateSent":            iptcConverters.convertDateString,
		"DigitalCreationDate": iptcConverters.convertDateString,
		"ReleaseDate":         iptcConverters.convertDateString,
		"ExpirationDate":      iptcConverters.convertDateString,
		"DigitalCreationTime": iptcConverters.convertTime,
		"TimeSent":            iptcConverters.convertTime,
		"TimeCreated":         iptcConverters.convertTime,
		"ReleaseTime":         iptcConverters.convertTime,
		"ExpirationTime":      iptcConverters.convertTime,
		"ProgramVersion": func(ctx valueConverterContext, v any) any {
			s := toString(v)
			s = strings.TrimSuffix(s, ".0")
			return s
		},
		"CodedCharacterSet": func(ctx valueConverterContext, v any) any {
			s := resolveCodedCharacterSet([]byte(toString(v)))
			if s == "" {
				return characterSetUTF8
			}
			return s
		},
	}
)

type iptcField struct {
	Record     uint8  `json:"record"`
	RecordName string `json:"record_name"`
	ID         uint8  `json:"id"`
	Name       string `json:"name"`
	Format     string `json:"format"`
	Repeatable bool   `json:"repeatable"`
	Notes      string `json:"notes"`
}

// IPTCDataset is one dataset in an IPTC-IIM block.
type IPTCDataset struct {
	Record  uint8
	Dataset uint8
	Data    []byte

	// Size of the extended length field, 0 for the standard 2 byte length.
	lengthSize int
}

// IPTCBlock is a decoded IPTC-IIM block.
// Datasets are kept in stream order, and bytes after the last dataset are
// kept as is, so that an unmodified block encodes to the same bytes.
type IPTCBlock struct {
	datasets []IPTCDataset
	trailing []byte
	charset  string

	warnf    func(string, ...any)
	modified bool
}

// NewIPTCBlock creates an empty IPTC block.
func NewIPTCBlock() *IPTCBlock {
	return &IPTCBlock{warnf: func(string, ...any) {}}
}

// DecodeIPTC decodes the IPTC-IIM datasets in b.
func DecodeIPTC(b []byte) (*IPTCBlock, error) {
	return decodeIPTC(b, nil)
}

func decodeIPTC(b []byte, warnf func(string, ...any)) (p *IPTCBlock, err error) {
	r := bytes.NewReader(b)
	sr := newStreamReader(r, binary.BigEndian)

	defer func() {
		if err2 := errFromRecover(recover(), sr.readErr); err2 != nil {
			p = nil
			err = fmt.Errorf("IPTC: %w", err2)
		}
	}()

	p = NewIPTCBlock()
	if warnf != nil {
		p.warnf = warnf
	}

	for {
		pos := len(b) - r.Len()
		marker, err := sr.read1E()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if marker != iptcTagMarker {
			p.trailing = b[pos:]
			break
		}

		ds := IPTCDataset{
			Record:  sr.read1(),
			Dataset: sr.read1(),
		}
		size := uint64(sr.read2())
		if size&iptcExtendedLength != 0 {
			ds.lengthSize = int(size &^ iptcExtendedLength)
			if ds.lengthSize == 0 || ds.lengthSize > 8 {
				return nil, fmt.Errorf("%w: IPTC %d:%d: extended length of %d bytes", ErrMalformedHeader, ds.Record, ds.Dataset, ds.lengthSize)
			}
			size = sr.readUint(ds.lengthSize)
		}
		if size > uint64(r.Len()) {
			return nil, fmt.Errorf("%w: IPTC %d:%d: %d bytes with %d left", ErrBounds, ds.Record, ds.Dataset, size, r.Len())
		}
		ds.Data = sr.readBytes(int(size))

		if _, ok := getIptcRecordFieldDef(ds.Record, ds.Dataset); !ok {
			p.warnf("unknown IPTC dataset %d:%d", ds.Record, ds.Dataset)
		}
		if ds.Record == iptcEnvelopeRecord && ds.Dataset == ipcCodedCharacterSet {
			p.charset = resolveCodedCharacterSet(ds.Data)
		}

		p.datasets = append(p.datasets, ds)
	}

	return p, nil
}

// Datasets returns the datasets in stream order.
func (p *IPTCBlock) Datasets() []IPTCDataset {
	return p.datasets
}

// Modified reports whether any dataset has changed since decoding.
func (p *IPTCBlock) Modified() bool {
	return p.modified
}

// Charset returns the coded character set declared in the envelope record,
// either UTF-8, ISO-8859-1 or empty if not declared.
func (p *IPTCBlock) Charset() string {
	return p.charset
}

// Get returns the values of the named dataset, e.g. "Keywords".
func (p *IPTCBlock) Get(name string) []string {
	f, ok := iptcFieldsByName[name]
	if !ok {
		return nil
	}
	var values []string
	for _, ds := range p.datasets {
		if ds.Record == f.Record && ds.Dataset == f.ID {
			values = append(values, toString(p.decodeValue(ds, f)))
		}
	}
	return values
}

// Set replaces all occurrences of the named dataset with the given values.
// Only repeatable datasets may have more than one value, and no values
// removes the dataset. String values are encoded in the declared character set.
func (p *IPTCBlock) Set(name string, values ...string) error {
	f, ok := iptcFieldsByName[name]
	if !ok {
		return fmt.Errorf("%w: unknown IPTC dataset %q", ErrUnsupportedConstruction, name)
	}
	if !f.Repeatable && len(values) > 1 {
		return fmt.Errorf("%w: IPTC dataset %q is not repeatable", ErrUnsupportedConstruction, name)
	}

	var added []IPTCDataset
	for _, v := range values {
		data, err := p.encodeValue(f, v)
		if err != nil {
			return err
		}
		ds := IPTCDataset{Record: f.Record, Dataset: f.ID, Data: data}
		if len(data) > iptcMaxStandardLength {
			ds.lengthSize = 4
		}
		added = append(added, ds)
	}

	// Replace in place, or else insert after the last dataset of the same record.
	idx := -1
	kept := make([]IPTCDataset, 0, len(p.datasets)+len(added))
	for _, ds := range p.datasets {
		if ds.Record == f.Record && ds.Dataset == f.ID {
			if idx < 0 {
				idx = len(kept)
			}
			continue
		}
		kept = append(kept, ds)
	}
	if idx < 0 {
		idx = len(kept)
		for i, ds := range kept {
			if ds.Record > f.Record {
				idx = i
				break
			}
		}
	}
	p.datasets = slices.Insert(kept, idx, added...)

	if f.Record == iptcEnvelopeRecord && f.ID == ipcCodedCharacterSet && len(added) > 0 {
		p.charset = resolveCodedCharacterSet(added[0].Data)
	}
	p.modified = true

	return nil
}

func (p *IPTCBlock) encodeValue(f iptcField, s string) ([]byte, error) {
	switch f.Format {
	case "uint32", "short", "byte":
		bits := map[string]int{"uint32": 32, "short": 16, "byte": 8}[f.Format]
		n, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: IPTC dataset %q: %s", ErrUnsupportedConstruction, f.Name, err)
		}
		b := binary.BigEndian.AppendUint64(nil, n)
		return b[8-bits/8:], nil
	default:
		if p.charset == characterSetUTF8 {
			return []byte(s), nil
		}
		b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: IPTC dataset %q: %q is not valid %s: %s", ErrUnsupportedConstruction, f.Name, s, characterSetISO88591, err)
		}
		return b, nil
	}
}

func (p *IPTCBlock) decodeValue(ds IPTCDataset, f iptcField) any {
	switch f.Format {
	case "uint32":
		if len(ds.Data) == 4 {
			return binary.BigEndian.Uint32(ds.Data)
		}
	case "short":
		if len(ds.Data) == 2 {
			return binary.BigEndian.Uint16(ds.Data)
		}
	case "byte":
		if len(ds.Data) == 1 {
			return ds.Data[0]
		}
	}
	b := ds.Data
	if p.charset != characterSetUTF8 {
		b, _ = charmap.ISO8859_1.NewDecoder().Bytes(b)
	}
	return strings.TrimSpace(string(trimBytesNulls(b)))
}

// Bytes encodes the datasets.
func (p *IPTCBlock) Bytes() []byte {
	var buf bytes.Buffer
	for _, ds := range p.datasets {
		buf.Write([]byte{iptcTagMarker, ds.Record, ds.Dataset})
		n := ds.lengthSize
		if n == 0 && len(ds.Data) > iptcMaxStandardLength {
			n = 4
		}
		if n == 0 {
			buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(ds.Data))))
		} else {
			buf.Write(binary.BigEndian.AppendUint16(nil, uint16(iptcExtendedLength|n)))
			size := binary.BigEndian.AppendUint64(nil, uint64(len(ds.Data)))
			buf.Write(size[8-n:])
		}
		buf.Write(ds.Data)
	}
	buf.Write(p.trailing)
	return buf.Bytes()
}

// Tags walks the datasets as tags.
// Repeatable datasets are passed once with all values, as a []string if
// there is more than one.
func (p *IPTCBlock) Tags(handle HandleTagFunc) error {
	type group struct {
		ti     TagInfo
		values []string
	}
	var (
		order  []TagInfo
		groups = make(map[TagInfo]*group)
	)

	for _, ds := range p.datasets {
		f, ok := getIptcRecordFieldDef(ds.Record, ds.Dataset)
		if !ok {
			// Assume a non repeatable string.
			f = iptcField{
				Name:       fmt.Sprintf("%s%d", UnknownPrefix, ds.Dataset),
				RecordName: "IPTCUnknownRecord",
				Format:     "string",
			}
		}

		ti := TagInfo{
			Source:    IPTC,
			Tag:       f.Name,
			Namespace: f.RecordName,
		}

		v := p.decodeValue(ds, f)
		if convert, found := iptcValueConverterMap[f.Name]; found {
			v = convert(valueConverterContext{tagName: f.Name, warnf: p.warnf}, v)
		}

		g, found := groups[ti]
		if !found {
			g = &group{ti: ti}
			groups[ti] = g
			order = append(order, ti)
		}
		if f.Repeatable {
			g.values = append(g.values, toString(v))
		} else {
			g.ti.Value = v
		}
	}

	for _, key := range order {
		g := groups[key]
		ti := g.ti
		if len(g.values) == 1 {
			ti.Value = g.values[0]
		} else if len(g.values) > 1 {
			ti.Value = g.values
		}
		if err := handle(ti); err != nil {
			if err == ErrStopWalking {
				return nil
			}
			return err
		}
	}

	return nil
}

func getIptcRecordFieldDef(record, id uint8) (iptcField, bool) {
	recordFields, ok := iptcRecordFields[record]
	if !ok {
		return iptcField{}, false
	}
	field, ok := recordFields[id]
	return field, ok
}

func getIptcRecordName(record uint8) string {
	name, ok := iptcRecordNames[record]
	if !ok {
		return fmt.Sprintf("IPTCUnknownRecord%d", record)
	}
	return name
}

func init() {
	var fields []map[string]any
	if err := json.Unmarshal(iptcTagsJSON, &fields); err != nil {
		panic(err)
	}

	toUint8 := func(v any) uint8 {
		s := v.(string)
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return uint8(i)
	}

	toString := func(v any) string {
		if v == nil {
			return ""
		}
		return v.(string)
	}

	for _, fieldv := range fields {
		id := toUint8(fieldv["id"])
		record := toUint8(fieldv["record"])
		recordFields, ok := iptcRecordFields[record]
		if !ok {
			recordFields = map[uint8]iptcField{}
			iptcRecordFields[record] = recordFields
		}

		field := iptcField{
			Record:     record,
			RecordName: getIptcRecordName(record),
			ID:         id,
			Name:       toString(fieldv["name"]),
			Format:     toString(fieldv["format"]),
			Notes:      toString(fieldv["notes"]),
			Repeatable: fieldv["repeatable"] == "true",
		}
		recordFields[id] = field
		if _, found := iptcFieldsByName[field.Name]; !found {
			iptcFieldsByName[field.Name] = field
		}
	}
}

const (
	characterSetUTF8     = "UTF-8"
	characterSetISO88591 = "ISO-8859-1"
)

// resolveCodedCharacterSet resolves the coded character set from the IPTC data
// to be either UTF-8 or ISO-8859-1 or an empty string if it cannot be resolved.
func resolveCodedCharacterSet(b []byte) string {
	const (
		esc           = 0x1B
		percent       = 0x25
		latinCapitalG = 0x47
		dot           = 0x2E
		latinCapitalA = 0x41
		minus         = 0x2D
	)

	if len(b) > 2 && b[0] == esc && b[1] == percent && b[2] == latinCapitalG {
		return characterSetUTF8
	}

	if len(b) > 2 && b[0] == esc && b[1] == dot && b[2] == latinCapitalA {
		return characterSetISO88591
	}

	if len(b) > 4 && b[0] == esc && (b[1] == dot || b[2] == dot || b[3] == dot) && b[4] == latinCapitalA {
		return characterSetISO88591
	}

	if len(b) > 2 && b[0] == esc && b[1] == minus && b[2] == latinCapitalA {
		return characterSetISO88591
	}

	return ""
}
