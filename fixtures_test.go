// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	qt "github.com/frankban/quicktest"
)

// testTIFF builds a little endian TIFF structure laid out the way
// MetaInfo.ExifBlock writes it:
//
//	0    header
//	8    tiff IFD: Make, Orientation, ExifIFDPointer, GPSInfoIFDPointer
//	62   exif IFD: ExposureTime, DateTimeOriginal
//	92   ExposureTime value
//	100  DateTimeOriginal value
//	120  gps IFD: GPSLatitudeRef, GPSLatitude, GPSLongitudeRef, GPSLongitude
//	174  GPSLatitude value
//	198  GPSLongitude value
//	222  end
func testTIFF() []byte {
	o := binary.LittleEndian
	var b []byte
	u16 := func(v uint16) { b = o.AppendUint16(b, v) }
	u32 := func(v uint32) { b = o.AppendUint32(b, v) }
	entry := func(id, typ uint16, count, value uint32) {
		u16(id)
		u16(typ)
		u32(count)
		u32(value)
	}
	inline := func(id, typ uint16, count uint32, v string) {
		u16(id)
		u16(typ)
		u32(count)
		var x [4]byte
		copy(x[:], v)
		b = append(b, x[:]...)
	}

	b = append(b, "II"...)
	u16(42)
	u32(8)

	u16(4)
	inline(0x010F, 2, 3, "Go\x00")
	entry(0x0112, 3, 1, 1)
	entry(0x8769, 4, 1, 62)
	entry(0x8825, 4, 1, 120)
	u32(0)

	u16(2)
	entry(0x829A, 5, 1, 92)
	entry(0x9003, 2, 20, 100)
	u32(0)
	u32(1)
	u32(200)
	b = append(b, "2024:01:02 03:04:05\x00"...)

	u16(4)
	inline(0x0001, 2, 2, "N\x00")
	entry(0x0002, 5, 3, 174)
	inline(0x0003, 2, 2, "E\x00")
	entry(0x0004, 5, 3, 198)
	u32(0)
	for _, v := range []uint32{51, 1, 30, 1, 0, 1, 0, 1, 7, 1, 30, 1} {
		u32(v)
	}

	return b
}

// testResource encodes one "8BIM" resource, padded.
func testResource(id uint16, name string, payload []byte) []byte {
	b := []byte(resourceSignature)
	b = binary.BigEndian.AppendUint16(b, id)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	if len(name)%2 == 0 {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	b = append(b, payload...)
	if len(payload)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

// testIPTCDataset encodes one IPTC dataset with a standard length.
func testIPTCDataset(record, dataset uint8, value string) []byte {
	b := []byte{iptcTagMarker, record, dataset}
	b = binary.BigEndian.AppendUint16(b, uint16(len(value)))
	return append(b, value...)
}

// testIPTC is an UTF-8 IPTC block with a headline, two keywords and a city.
func testIPTC() []byte {
	var b []byte
	b = append(b, testIPTCDataset(1, 90, "\x1b%G")...)
	b = append(b, testIPTCDataset(2, 105, "Sunrise in Spain")...)
	b = append(b, testIPTCDataset(2, 25, "sun")...)
	b = append(b, testIPTCDataset(2, 25, "sea")...)
	b = append(b, testIPTCDataset(2, 90, "Benalmádena")...)
	return b
}

// testPhotoshop is an APP13 payload with the IPTC block between two other resources.
func testPhotoshop() []byte {
	b := []byte(photoshopHeader)
	b = append(b, testResource(0x03ED, "", make([]byte, 16))...)
	b = append(b, testResource(IPTCResourceID, "", testIPTC())...)
	b = append(b, testResource(0x0425, "x", []byte{1, 2, 3})...)
	return b
}

// testSegment encodes a segment with its header.
func testSegment(m Marker, payload []byte) []byte {
	b := []byte{0xFF, byte(m)}
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)+2))
	return append(b, payload...)
}

// encodeTestImage encodes a small image with image/jpeg.
// The stream is SOI, DQT, SOF0, DHT, SOS, scan data and EOI.
func encodeTestImage(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// testImageParts is an image/jpeg stream split into the encoded segments,
// keyed by marker, and everything after the SOS segment.
type testImageParts struct {
	segs  map[Marker][]byte
	order []Marker
	tail  []byte
}

func splitTestImage(t testing.TB, b []byte) testImageParts {
	t.Helper()
	if b[0] != 0xFF || Marker(b[1]) != SOI {
		t.Fatal("no SOI")
	}
	parts := testImageParts{segs: make(map[Marker][]byte)}
	pos := 2
	for {
		m := Marker(b[pos+1])
		n := int(binary.BigEndian.Uint16(b[pos+2:])) + 2
		if _, found := parts.segs[m]; found {
			t.Fatalf("duplicate %s", m)
		}
		parts.segs[m] = b[pos : pos+n]
		parts.order = append(parts.order, m)
		pos += n
		if m == SOS {
			break
		}
	}
	parts.tail = b[pos:]
	return parts
}

// jpegWith assembles SOI, the given encoded segments, then the image's
// DQT, DHT, SOF0 and SOS segments, in canonical order, and the scan data.
func (p testImageParts) jpegWith(segs ...[]byte) []byte {
	b := []byte{0xFF, byte(SOI)}
	for _, s := range segs {
		b = append(b, s...)
	}
	for _, m := range []Marker{DQT, DHT, SOF0, SOS} {
		b = append(b, p.segs[m]...)
	}
	return append(b, p.tail...)
}

// testJPEG returns a JPEG with an Exif APP1, a Photoshop APP13 with IPTC and
// a comment, in canonical order.
func testJPEG(t testing.TB) []byte {
	t.Helper()
	parts := splitTestImage(t, encodeTestImage(t))
	return parts.jpegWith(
		testSegment(APP1, append([]byte(exifHeader), testTIFF()...)),
		testSegment(APP13, testPhotoshop()),
		testSegment(COM, []byte("hello")),
	)
}

func decodeTestJPEG(c *qt.C, b []byte, opts Options) *JPEG {
	c.Helper()
	opts.R = bytes.NewReader(b)
	j, err := Decode(opts)
	c.Assert(err, qt.IsNil)
	return j
}

func writeTestJPEG(c *qt.C, j *JPEG) []byte {
	c.Helper()
	var buf bytes.Buffer
	c.Assert(j.Write(&buf), qt.IsNil)
	return buf.Bytes()
}

// collectWarnings returns a Warnf func appending to the returned slice.
func collectWarnings() (func(string, ...any), *[]string) {
	var warnings []string
	return func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}, &warnings
}
