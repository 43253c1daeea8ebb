// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import "fmt"

// Marker is the second byte of a JPEG marker, e.g. 0xE1 for APP1.
type Marker uint8

const (
	TEM  Marker = 0x01
	SOF0 Marker = 0xC0
	SOF1 Marker = 0xC1
	SOF2 Marker = 0xC2
	SOF3 Marker = 0xC3
	DHT  Marker = 0xC4
	JPG  Marker = 0xC8
	DAC  Marker = 0xCC
	RST0 Marker = 0xD0 // RSTn = RST0+n, n = 0-7
	SOI  Marker = 0xD8
	EOI  Marker = 0xD9
	SOS  Marker = 0xDA
	DQT  Marker = 0xDB
	DNL  Marker = 0xDC
	DRI  Marker = 0xDD
	COM  Marker = 0xFE
)

const (
	APP0 Marker = 0xE0 + iota
	APP1
	APP2
	APP3
	APP4
	APP5
	APP6
	APP7
	APP8
	APP9
	APP10
	APP11
	APP12
	APP13
	APP14
	APP15
)

// canonicalOrder is the order segment types are written in, unless
// Options.PreserveSegmentOrder is set.
// Markers not listed here are written after SOF3, in order of first appearance.
var canonicalOrder = []Marker{
	APP0, APP1, APP2, APP3, APP4, APP5, APP6, APP7,
	APP8, APP9, APP10, APP11, APP12, APP13, APP14, APP15,
	COM, DQT, DRI, DHT,
	SOF0, SOF1, SOF2, SOF3,
	SOS, EOI,
}

var markerNames = map[Marker]string{
	TEM:  "TEM",
	SOF0: "SOF0",
	SOF1: "SOF1",
	SOF2: "SOF2",
	SOF3: "SOF3",
	DHT:  "DHT",
	JPG:  "JPG",
	DAC:  "DAC",
	SOI:  "SOI",
	EOI:  "EOI",
	SOS:  "SOS",
	DQT:  "DQT",
	DNL:  "DNL",
	DRI:  "DRI",
	COM:  "COM",
}

func init() {
	for i := Marker(0); i <= 0xF; i++ {
		markerNames[APP0+i] = fmt.Sprintf("APP%d", i)
	}
	for i := Marker(5); i <= 0xF; i++ {
		if i == 8 || i == 12 {
			continue
		}
		markerNames[SOF0+i] = fmt.Sprintf("SOF%d", i)
	}
	for i := Marker(0); i < 8; i++ {
		markerNames[RST0+i] = fmt.Sprintf("RST%d", i)
	}
}

func (m Marker) String() string {
	if s, ok := markerNames[m]; ok {
		return s
	}
	return fmt.Sprintf("0x%02X", uint8(m))
}

// isStandalone reports whether m is a marker without a length and payload.
func (m Marker) isStandalone() bool {
	return m == TEM || m == SOI || m == EOI || (m >= RST0 && m <= RST0+7)
}

// isSOF reports whether m starts a frame.
func (m Marker) isSOF() bool {
	return m >= SOF0 && m <= SOF0+0xF && m != DHT && m != JPG && m != DAC
}
