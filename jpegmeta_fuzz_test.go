// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/bep/jpegmeta"
)

func FuzzDecode(f *testing.F) {
	f.Add(jpegmeta.SampleJPEG(f))
	f.Add(jpegmeta.SampleImage(f))
	f.Add(jpegmeta.SampleJPEGWith(f, jpegmeta.SampleSegment(jpegmeta.APP1, []byte(jpegmeta.XMPHeader+jpegmeta.SampleXMPPacket))))
	f.Add(jpegmeta.SampleJPEGWith(f, jpegmeta.SampleSegment(jpegmeta.APP13, append(jpegmeta.SamplePhotoshop(), "junk"...))))

	f.Fuzz(func(t *testing.T, imageBytes []byte) {
		fuzzDecodeBytes(t, imageBytes)
	})
}

func fuzzDecodeBytes(t *testing.T, imageBytes []byte) {
	j, err := jpegmeta.Decode(jpegmeta.Options{R: bytes.NewReader(imageBytes)})
	if err != nil {
		if !jpegmeta.IsInvalidFormat(err) {
			t.Fatalf("unknown error in Decode: %v %T", err, err)
		}
		return
	}

	if err := j.Tags(func(jpegmeta.TagInfo) error { return nil }); err != nil && !jpegmeta.IsInvalidFormat(err) && !errors.Is(err, jpegmeta.ErrBounds) {
		t.Fatalf("unknown error in Tags: %v %T", err, err)
	}

	if err := j.Write(io.Discard); err != nil && !errors.Is(err, jpegmeta.ErrMarkerOrder) {
		t.Fatalf("unknown error in Write: %v %T", err, err)
	}
}
