// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const xmpHeader = "http://ns.adobe.com/xap/1.0/\x00"

var xmpSkipNamespaces = map[string]bool{
	"xmlns": true,
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": true,
	"http://purl.org/dc/elements/1.1/":            true,
}

type rdf struct {
	XMLName      xml.Name
	Descriptions []rdfDescription `xml:"Description"`
}

// Note: We currently only handle a subset of XMP tags,
// but a very common subset.
type rdfDescription struct {
	XMLName   xml.Name
	Attrs     []xml.Attr `xml:",any,attr"`
	Creator   seqList    `xml:"creator"`
	Publisher bagList    `xml:"publisher"`
	Subject   bagList    `xml:"subject"`
	Rights    altList    `xml:"rights"`

	// GPS child elements from the exif namespace.
	GPSLatitude  string `xml:"GPSLatitude"`
	GPSLongitude string `xml:"GPSLongitude"`
}

type altList struct {
	XMLName xml.Name
	Alt     struct {
		Items []string `xml:"li"`
	} `xml:"Alt"`
}

type seqList struct {
	XMLName xml.Name
	Seq     struct {
		Items []string `xml:"li"`
	} `xml:"Seq"`
}

type bagList struct {
	XMLName xml.Name
	Bag     struct {
		Items []string `xml:"li"`
	} `xml:"Bag"`
}

type xmpmeta struct {
	XMLName xml.Name
	RDF     rdf `xml:"RDF"`
}

// XMPPacket returns the XMP packet of the first APP1 segment carrying one.
func (j *JPEG) XMPPacket() ([]byte, bool, error) {
	for _, seg := range j.segments[APP1] {
		if !seg.hasPrefix(xmpHeader) {
			continue
		}
		b, err := seg.Data()
		if err != nil {
			return nil, false, err
		}
		return b[len(xmpHeader):], true, nil
	}
	return nil, false, nil
}

// XMP walks the rdf:Description attributes and the common list elements of
// the XMP packet, if any. XMP is read only.
func (j *JPEG) XMP(handle HandleTagFunc) error {
	b, found, err := j.XMPPacket()
	if err != nil || !found {
		return err
	}
	err = decodeXMP(bytes.NewReader(b), handle)
	if err == ErrStopWalking {
		return nil
	}
	return err
}

func decodeXMP(r io.Reader, handle HandleTagFunc) error {
	var meta xmpmeta
	if err := xml.NewDecoder(r).Decode(&meta); err != nil {
		return newInvalidFormatError(fmt.Errorf("decoding XMP: %w", err))
	}

	for _, desc := range meta.RDF.Descriptions {
		for _, attr := range desc.Attrs {
			if xmpSkipNamespaces[attr.Name.Space] {
				continue
			}

			tagInfo := TagInfo{
				Source:    XMP,
				Tag:       firstUpper(attr.Name.Local),
				Namespace: attr.Name.Space,
				Value:     attr.Value,
			}

			if err := handle(tagInfo); err != nil {
				return err
			}
		}

		for _, l := range []struct {
			name  xml.Name
			items []string
		}{
			{desc.Creator.XMLName, desc.Creator.Seq.Items},
			{desc.Publisher.XMLName, desc.Publisher.Bag.Items},
			{desc.Subject.XMLName, desc.Subject.Bag.Items},
			{desc.Rights.XMLName, desc.Rights.Alt.Items},
		} {
			if err := processChildElements(l.name, l.items, handle); err != nil {
				return err
			}
		}

		// GPS coordinates in XMP are typically in DMS format like "26,34.951N".
		for _, c := range []struct {
			tag string
			s   string
		}{
			{"GPSLatitude", desc.GPSLatitude},
			{"GPSLongitude", desc.GPSLongitude},
		} {
			if c.s == "" {
				continue
			}
			v, err := parseXMPGPSCoordinate(c.s)
			if err != nil {
				continue
			}
			tagInfo := TagInfo{
				Source:    XMP,
				Tag:       c.tag,
				Namespace: "http://ns.adobe.com/exif/1.0/",
				Value:     v,
			}
			if err := handle(tagInfo); err != nil {
				return err
			}
		}
	}

	return nil
}

func processChildElements(name xml.Name, items []string, handle HandleTagFunc) error {
	if len(items) == 0 || name.Local == "" {
		return nil
	}
	var v any

	// This is how ExifTool does it:
	if len(items) == 1 {
		v = items[0]
	} else {
		v = items
	}

	return handle(TagInfo{
		Source:    XMP,
		Tag:       firstUpper(name.Local),
		Namespace: name.Space,
		Value:     v,
	})
}

func firstUpper(s string) string {
	if s == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// parseXMPGPSCoordinate parses GPS coordinates in one of these formats:
// - DMS with direction: "26,34.951N" or "80,12.014W"
// - Decimal with direction: "26.5825N" or "80.2002W"
// - Pure decimal: "26.5825" or "-80.2002"
func parseXMPGPSCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	var negative bool
	switch s[len(s)-1] {
	case 'S', 's', 'W', 'w':
		negative = true
		s = s[:len(s)-1]
	case 'N', 'n', 'E', 'e':
		s = s[:len(s)-1]
	}

	var degrees float64

	if deg, min, found := strings.Cut(s, ","); found {
		d, err := strconv.ParseFloat(deg, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing degrees: %w", err)
		}
		m, err := strconv.ParseFloat(min, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing minutes: %w", err)
		}
		degrees = d + m/60.0
	} else {
		var err error
		degrees, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing decimal: %w", err)
		}
	}

	if negative {
		degrees = -degrees
	}

	return degrees, nil
}
