// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import "fmt"

// Orientation is the value of the Orientation tag in the tiff IFD.
type Orientation uint16

const (
	OrientationUnspecified Orientation = iota
	OrientationNormal
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate270
	OrientationTransverse
	OrientationRotate90
)

const tagOrientation = 0x0112

func (o Orientation) String() string {
	switch o {
	case OrientationUnspecified:
		return "Unspecified"
	case OrientationNormal:
		return "Normal"
	case OrientationFlipH:
		return "FlipH"
	case OrientationRotate180:
		return "Rotate180"
	case OrientationFlipV:
		return "FlipV"
	case OrientationTranspose:
		return "Transpose"
	case OrientationRotate270:
		return "Rotate270"
	case OrientationTransverse:
		return "Transverse"
	case OrientationRotate90:
		return "Rotate90"
	default:
		return fmt.Sprintf("Orientation(%d)", uint16(o))
	}
}

// Orientation returns the orientation of the image,
// OrientationUnspecified if not set or not a SHORT.
func (m *MetaInfo) Orientation() Orientation {
	tiffIFD := m.ifds[IFDTIFF]
	if tiffIFD == nil {
		return OrientationUnspecified
	}
	v, _ := tiffIFD.Value(tagOrientation)
	if o, ok := v.(uint16); ok && o <= uint16(OrientationRotate90) {
		return Orientation(o)
	}
	return OrientationUnspecified
}

// SetOrientation sets the Orientation tag in the tiff IFD.
func (m *MetaInfo) SetOrientation(o Orientation) error {
	if o == OrientationUnspecified || o > OrientationRotate90 {
		return fmt.Errorf("%w: invalid orientation %d", ErrUnsupportedConstruction, uint16(o))
	}
	return m.ensureIFD(IFDTIFF).SetValue(tagOrientation, uint16(o))
}
