// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import "testing"

// Fixtures and constants for the jpegmeta_test package.

const (
	ExifHeader        = exifHeader
	XMPHeader         = xmpHeader
	TagIPTCNAA        = tagIPTCNAA
	MaxSegmentPayload = maxSegmentPayload
	SampleXMPPacket   = testXMPPacket
)

var (
	SampleJPEG      = testJPEG
	SampleTIFF      = testTIFF
	SampleIPTC      = testIPTC
	SamplePhotoshop = testPhotoshop
	SampleSegment   = testSegment
	SampleImage     = encodeTestImage
)

// SampleJPEGWith returns the sample image with the given encoded segments
// inserted after SOI.
func SampleJPEGWith(t testing.TB, segs ...[]byte) []byte {
	return splitTestImage(t, encodeTestImage(t)).jpegWith(segs...)
}

// SampleScanData returns the sample image's bytes after the SOS segment.
func SampleScanData(t testing.TB) []byte {
	return splitTestImage(t, encodeTestImage(t)).tail
}
