// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"encoding"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestStringer(t *testing.T) {
	c := qt.New(t)

	var source Source
	c.Assert(EXIF.String(), qt.Equals, "EXIF")
	c.Assert(IPTC.String(), qt.Equals, "IPTC")
	c.Assert(XMP.String(), qt.Equals, "XMP")
	c.Assert(source.String(), qt.Equals, "Source(0)")

	c.Assert(APP1.String(), qt.Equals, "APP1")
	c.Assert(APP13.String(), qt.Equals, "APP13")
	c.Assert(SOF0.String(), qt.Equals, "SOF0")
	c.Assert(Marker(0xCF).String(), qt.Equals, "SOF15")
	c.Assert(Marker(0xD3).String(), qt.Equals, "RST3")
	c.Assert(Marker(0x02).String(), qt.Equals, "0x02")

	c.Assert(IFDTIFF.String(), qt.Equals, "tiff")
	c.Assert(IFDExif.String(), qt.Equals, "exif")
	c.Assert(IFDGPS.String(), qt.Equals, "gps")
}

func BenchmarkPrintableString(b *testing.B) {
	runBench := func(b *testing.B, name, s string) {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = printableString(s)
			}
		})
	}

	runBench(b, "ASCII", "Hello, World!")
	runBench(b, "ASCII with whitespace", "   Hello, World!   ")
	runBench(b, "UTF-8", "Hello, 世界!")
	runBench(b, "Mixed", "Hello, 世界! 🌍")
	runBench(b, "Unprintable", "Hello, \x00World!")
}

func TestRat(t *testing.T) {
	c := qt.New(t)

	c.Run("NewRat", func(c *qt.C) {
		ru, err := NewRat[uint32](1, 2)
		c.Assert(err, qt.IsNil)
		c.Assert(ru.Num(), qt.Equals, uint32(1))
		c.Assert(ru.Den(), qt.Equals, uint32(2))

		ri, err := NewRat[int32](1, 2)
		c.Assert(err, qt.IsNil)
		c.Assert(ri.Num(), qt.Equals, int32(1))
		c.Assert(ri.Den(), qt.Equals, int32(2))

		_, err = NewRat[int32](10, 0)
		c.Assert(err, qt.ErrorMatches, "denominator must be non-zero")

		// Denominator must be positive.
		ri, err = NewRat[int32](13, -3)
		c.Assert(err, qt.IsNil)
		c.Assert(ri.Num(), qt.Equals, int32(-13))
		c.Assert(ri.Den(), qt.Equals, int32(3))
		// Remove the greatest common divisor.
		ri, err = NewRat[int32](6, 9)
		c.Assert(err, qt.IsNil)
		c.Assert(ri.Num(), qt.Equals, int32(2))
		c.Assert(ri.Den(), qt.Equals, int32(3))
		ri, err = NewRat[int32](90, 600)
		c.Assert(err, qt.IsNil)
		c.Assert(ri.Num(), qt.Equals, int32(3))
		c.Assert(ri.Den(), qt.Equals, int32(20))
	})

	c.Run("Raw", func(c *qt.C) {
		r := newRawRat[uint32](10, 20)
		c.Assert(r.Num(), qt.Equals, uint32(10))
		c.Assert(r.Den(), qt.Equals, uint32(20))
		c.Assert(r.Float64(), qt.Equals, 0.5)
	})

	c.Run("MarshalText", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		text, err := ru.(encoding.TextMarshaler).MarshalText()
		c.Assert(err, qt.IsNil)
		c.Assert(string(text), qt.Equals, "1/2")
	})

	c.Run("UnmarshalText", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		err := ru.(encoding.TextUnmarshaler).UnmarshalText([]byte("3/4"))
		c.Assert(err, qt.IsNil)
		c.Assert(ru.Num(), qt.Equals, uint32(3))
		c.Assert(ru.Den(), qt.Equals, uint32(4))

		err = ru.(encoding.TextUnmarshaler).UnmarshalText([]byte("4"))
		c.Assert(err, qt.IsNil)
		c.Assert(ru.Num(), qt.Equals, uint32(4))
		c.Assert(ru.Den(), qt.Equals, uint32(1))

		err = ru.(encoding.TextUnmarshaler).UnmarshalText([]byte("4/0"))
		c.Assert(err, qt.ErrorMatches, "denominator must be non-zero")
	})

	c.Run("String", func(c *qt.C) {
		ru, _ := NewRat[uint32](1, 2)
		c.Assert(ru.String(), qt.Equals, "1/2")
		ru, _ = NewRat[uint32](4, 1)
		c.Assert(ru.String(), qt.Equals, "4")
	})

	c.Run("parseRat", func(c *qt.C) {
		r, err := parseRat[int32](" -3/4 ")
		c.Assert(err, qt.IsNil)
		c.Assert(r.Num(), qt.Equals, int32(-3))
		c.Assert(r.Den(), qt.Equals, int32(4))
		_, err = parseRat[uint32]("a/b")
		c.Assert(err, qt.IsNotNil)
	})
}

func TestValueConverters(t *testing.T) {
	c := qt.New(t)
	var ctx valueConverterContext
	rats := func(v ...uint32) []any {
		var res []any
		for i := 0; i < len(v); i += 2 {
			res = append(res, newRawRat(v[i], v[i+1]))
		}
		return res
	}

	c.Assert(exifConverters.convertDegreesToDecimal(ctx, rats(51, 1, 30, 1, 0, 1)), qt.Equals, 51.5)
	c.Assert(exifConverters.convertDegreesToDecimal(ctx, "10,30,0"), qt.Equals, 10.5)
	c.Assert(exifConverters.convertToTimestampString(ctx, rats(13, 1, 3, 1, 42, 1)), qt.Equals, "13:03:42")
	c.Assert(exifConverters.convertRatsToSpaceLimited(ctx, rats(1, 2, 3, 0)), qt.Equals, "0.5 undef")
	c.Assert(exifConverters.convertBytesToStringSpaceDelim(ctx, []byte{0, 2, 3, 0}), qt.Equals, "0 2 3 0")
	c.Assert(exifConverters.convertBinaryData(ctx, []byte{1, 2}), qt.Equals, "(Binary data 2 bytes)")
	c.Assert(exifConverters.convertAPEXToFNumber(ctx, newRawRat[uint32](4, 1)), qt.Equals, 4.0)
	c.Assert(exifConverters.convertAPEXToSeconds(ctx, newRawRat[int32](2, 1)), qt.Equals, 0.25)

	var warnings []string
	ctx.warnf = func(format string, args ...any) { warnings = append(warnings, format) }
	ctx.tagName = "GPSLatitude"
	c.Assert(math.IsNaN(exifConverters.convertDegreesToDecimal(ctx, []any{1}).(float64)), qt.IsFalse)
	c.Assert(warnings, qt.HasLen, 1)
}

func TestPrintableString(t *testing.T) {
	c := qt.New(t)
	c.Assert(printableString("  Hello,\x00 World!\x01 "), qt.Equals, "Hello, World!")
	c.Assert(toPrintableValue([]byte("Go\x00\x00")), qt.Equals, "Go")
	c.Assert(trimBytesNulls([]byte{0, 0}), qt.IsNil)
	c.Assert(string(trimBytesNulls([]byte{0, 'a', 0})), qt.Equals, "a")
}
