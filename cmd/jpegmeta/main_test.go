// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/bep/jpegmeta"
	qt "github.com/frankban/quicktest"
)

func testSegment(m jpegmeta.Marker, payload []byte) []byte {
	b := []byte{0xFF, byte(m)}
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)+2))
	return append(b, payload...)
}

// testJPEG returns a small image with an Exif APP1, a Photoshop APP13
// holding IPTC and a comment.
func testJPEG(c *qt.C, withMeta bool) []byte {
	var buf bytes.Buffer
	c.Assert(jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil), qt.IsNil)
	raw := buf.Bytes()
	if !withMeta {
		return raw
	}

	m := jpegmeta.NewMetaInfo(binary.BigEndian)
	c.Assert(m.SetTag("Make", "Go"), qt.IsNil)
	c.Assert(m.SetOrientation(jpegmeta.OrientationNormal), qt.IsNil)
	exifBlock, err := m.ExifBlock()
	c.Assert(err, qt.IsNil)

	p := jpegmeta.NewIPTCBlock()
	c.Assert(p.Set("Headline", "Gophers"), qt.IsNil)
	iptc := p.Bytes()

	res := []byte("Photoshop 3.0\x00" + "8BIM")
	res = binary.BigEndian.AppendUint16(res, jpegmeta.IPTCResourceID)
	res = append(res, 0, 0)
	res = binary.BigEndian.AppendUint32(res, uint32(len(iptc)))
	res = append(res, iptc...)
	if len(iptc)%2 == 1 {
		res = append(res, 0)
	}

	b := raw[:2:2]
	b = append(b, testSegment(jpegmeta.APP1, append([]byte("Exif\x00\x00"), exifBlock...))...)
	b = append(b, testSegment(jpegmeta.APP13, res)...)
	b = append(b, testSegment(jpegmeta.COM, []byte("hello"))...)
	return append(b, raw[2:]...)
}

func TestPrint(t *testing.T) {
	c := qt.New(t)

	in := filepath.Join(c.TempDir(), "in.jpg")
	c.Assert(os.WriteFile(in, testJPEG(c, true), 0o644), qt.IsNil)

	var buf bytes.Buffer
	c.Assert(printCmd(&buf, []string{in}, jpegmeta.Options{}), qt.IsNil)
	out := buf.String()
	c.Assert(out, qt.Matches, `(?s)Segments:\n  APP1, \d+ bytes \(Exif\)\n  APP13, \d+ bytes \(IPTC\)\n  COM, 5 bytes\n.*`)
	c.Assert(out, qt.Contains, "Orientation: Normal\n")
	c.Assert(out, qt.Contains, " Make: Go\n")
	c.Assert(out, qt.Contains, " Headline: Gophers\n")
	c.Assert(out, qt.Contains, `Comment: "hello"`)

	c.Assert(printCmd(&buf, []string{filepath.Join(c.TempDir(), "missing.jpg")}, jpegmeta.Options{}), qt.Not(qt.IsNil))
}

func TestEditCommands(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		name     string
		withMeta bool
		run      func(in, out string) error
		check    func(c *qt.C, j *jpegmeta.JPEG)
		err      string
	}{
		{
			name:     "Copy preserving order",
			withMeta: true,
			run: func(in, out string) error {
				return copyCmd([]string{"-preserve-order", in, out}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				var buf bytes.Buffer
				c.Assert(j.Write(&buf), qt.IsNil)
				c.Assert(buf.Bytes(), qt.DeepEquals, testJPEG(c, true))
			},
		},
		{
			name:     "Set comment",
			withMeta: true,
			run: func(in, out string) error {
				return setCommentCmd([]string{in, out, "new"}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				comments, err := j.Comments()
				c.Assert(err, qt.IsNil)
				c.Assert(comments, qt.DeepEquals, []string{"new"})
			},
		},
		{
			name:     "Append comment",
			withMeta: true,
			run: func(in, out string) error {
				return setCommentCmd([]string{"-append", in, out, "new"}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				comments, err := j.Comments()
				c.Assert(err, qt.IsNil)
				c.Assert(comments, qt.DeepEquals, []string{"hello", "new"})
			},
		},
		{
			name:     "Set Exif tag",
			withMeta: true,
			run: func(in, out string) error {
				return setExifCmd([]string{in, out, "Artist", "Gopher"}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				v, _ := j.ExifTagPayload("Artist")
				c.Assert(v, qt.Equals, "Gopher")
				v, _ = j.ExifTagPayload("Make")
				c.Assert(v, qt.Equals, "Go")
			},
		},
		{
			name:     "Set Exif tag with spaced name",
			withMeta: true,
			run: func(in, out string) error {
				return setExifCmd([]string{in, out, "GPS Latitude", "51/1 30/1 0/1"}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				e, found := j.Meta().IFD(jpegmeta.IFDGPS).Tag(0x0002)
				c.Assert(found, qt.IsTrue)
				c.Assert(e.Count, qt.Equals, uint32(3))
			},
		},
		{
			name:     "Set IPTC dataset",
			withMeta: true,
			run: func(in, out string) error {
				return setIPTCCmd([]string{in, out, "Keywords", "a", "b"}, jpegmeta.Options{})
			},
			check: func(c *qt.C, j *jpegmeta.JPEG) {
				c.Assert(j.IPTC().Get("Keywords"), qt.DeepEquals, []string{"a", "b"})
				c.Assert(j.IPTC().Get("Headline"), qt.DeepEquals, []string{"Gophers"})
			},
		},
		{
			name: "Set Exif tag without Exif",
			run: func(in, out string) error {
				return setExifCmd([]string{in, out, "Artist", "Gopher"}, jpegmeta.Options{})
			},
			err: ".*has no Exif data",
		},
		{
			name: "Set IPTC dataset without carrier",
			run: func(in, out string) error {
				return setIPTCCmd([]string{in, out, "Headline", "x"}, jpegmeta.Options{})
			},
			err: ".*no carrier segment.*",
		},
	} {
		c.Run(test.name, func(c *qt.C) {
			dir := c.TempDir()
			in := filepath.Join(dir, "in.jpg")
			out := filepath.Join(dir, "out.jpg")
			c.Assert(os.WriteFile(in, testJPEG(c, test.withMeta), 0o644), qt.IsNil)

			err := test.run(in, out)
			if test.err != "" {
				c.Assert(err, qt.ErrorMatches, test.err)
				return
			}
			c.Assert(err, qt.IsNil)

			j, err := jpegmeta.Open(out, jpegmeta.Options{PreserveSegmentOrder: true})
			c.Assert(err, qt.IsNil)
			defer j.Close()
			test.check(c, j)
		})
	}
}

func TestEditMissingFile(t *testing.T) {
	c := qt.New(t)

	dir := c.TempDir()
	err := edit(filepath.Join(dir, "missing.jpg"), filepath.Join(dir, "out.jpg"), jpegmeta.Options{}, func(*jpegmeta.JPEG) error { return nil })
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}
