// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package jpegmeta reads and rewrites the Exif, GPS and IPTC metadata of a
// JPEG file, copying everything it does not change byte for byte.
package jpegmeta

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"time"

	"go4.org/readerutil"
	"go4.org/wkfs"
)

// UnknownPrefix is used as prefix for unknown tags.
const UnknownPrefix = "UnknownTag_"

const (
	// EXIF is the EXIF tag source.
	EXIF Source = 1 << iota
	// IPTC is the IPTC tag source.
	IPTC
	// XMP is the XMP tag source.
	XMP
)

// ErrStopWalking is a sentinel error to signal that the walk should stop.
var ErrStopWalking = errors.New("stop walking")

// HandleTagFunc is the function that is called for each tag.
type HandleTagFunc func(info TagInfo) error

// Options contains the options for Decode and Open.
type Options struct {
	// The Reader (typically a *os.File) to read the JPEG from.
	// It must stay open and unchanged until the last Write.
	R io.ReadSeeker

	// Offset is where the JPEG starts in R.
	Offset int64

	// Warnf will be called for each warning.
	Warnf func(string, ...any)

	// If set, Write emits the segments in the order they were read
	// instead of grouping them by marker type.
	PreserveSegmentOrder bool

	// If set, Photoshop resource payloads are not padded to an even length.
	// Some writers get this wrong.
	UnpaddedResources bool
}

// TagInfo contains information about a tag.
type TagInfo struct {
	// The tag source.
	Source Source
	// The tag name.
	Tag string
	// The tag namespace.
	// For EXIF, this is the path to the IFD, e.g. "IFD0/GPSInfoIFD"
	// For XMP, this is the namespace, e.g. "http://ns.adobe.com/camera-raw-settings/1.0/"
	// For IPTC, this is the record name, e.g. "IPTCApplication".
	Namespace string
	// The tag value.
	Value any
}

// Source is a bitmask and you may send multiple sources at once.
type Source uint32

func (t Source) String() string {
	switch t {
	case EXIF:
		return "EXIF"
	case IPTC:
		return "IPTC"
	case XMP:
		return "XMP"
	default:
		return fmt.Sprintf("Source(%d)", uint32(t))
	}
}

// Remove removes the given source.
func (t Source) Remove(source Source) Source {
	t &= ^source
	return t
}

// Has returns true if the given source is set.
func (t Source) Has(source Source) bool {
	return t&source != 0
}

// IsZero returns true if the source is zero.
func (t Source) IsZero() bool {
	return t == 0
}

// Decode parses the JPEG segment stream in opts.R up to the start of scan
// and decodes the Exif and IPTC metadata found.
func Decode(opts Options) (j *JPEG, err error) {
	errFinal := func(err2 error) error {
		if err2 == nil {
			return nil
		}
		if isInvalidFormatErrorCandidate(err2) {
			err2 = newInvalidFormatError(err2)
		}
		return err2
	}

	defer func() {
		if err = errFinal(err); err != nil {
			j = nil
		}
	}()

	defer func() {
		if err2 := errFromRecover(recover(), nil); err2 != nil {
			err = err2
		}
	}()

	if opts.R == nil {
		return nil, fmt.Errorf("%w: no reader provided", ErrUnsupportedConstruction)
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrUnsupportedConstruction, opts.Offset)
	}
	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}

	if _, err := opts.R.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	size, ok := readerutil.Size(opts.R)
	if !ok {
		return nil, fmt.Errorf("%w: unable to determine the size of %T", ErrUnsupportedConstruction, opts.R)
	}

	j = &JPEG{
		opts: opts,
		src:  toReaderAt(opts.R),
		size: size,
	}

	if err := j.parse(); err != nil {
		return nil, err
	}

	return j, nil
}

// Open opens the named file through go4.org/wkfs and decodes it.
// opts.R is ignored. The file is kept open until Close.
func Open(filename string, opts Options) (*JPEG, error) {
	f, err := wkfs.Open(filename)
	if err != nil {
		return nil, err
	}
	opts.R = f
	j, err := Decode(opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	j.closer = f
	j.name = filename
	return j, nil
}

// Tags is a collection of tags grouped per source.
type Tags struct {
	exif map[string]TagInfo
	iptc map[string]TagInfo
	xmp  map[string]TagInfo
}

// Add adds a tag to the correct source.
func (t *Tags) Add(tag TagInfo) {
	t.getSourceMap(tag.Source)[tag.Tag] = tag
}

// Has reports if a tag is already added.
func (t *Tags) Has(tag TagInfo) bool {
	_, found := t.getSourceMap(tag.Source)[tag.Tag]
	return found
}

// EXIF returns the EXIF tags.
func (t *Tags) EXIF() map[string]TagInfo {
	if t.exif == nil {
		t.exif = make(map[string]TagInfo)
	}
	return t.exif
}

// IPTC returns the IPTC tags.
func (t *Tags) IPTC() map[string]TagInfo {
	if t.iptc == nil {
		t.iptc = make(map[string]TagInfo)
	}
	return t.iptc
}

// XMP returns the XMP tags.
func (t *Tags) XMP() map[string]TagInfo {
	if t.xmp == nil {
		t.xmp = make(map[string]TagInfo)
	}
	return t.xmp
}

// All returns all tags in a map.
func (t Tags) All() map[string]TagInfo {
	all := make(map[string]TagInfo)
	maps.Copy(all, t.EXIF())
	maps.Copy(all, t.IPTC())
	maps.Copy(all, t.XMP())
	return all
}

// GetDateTime tries to find a date/time value from available metadata sources.
// It checks EXIF first (DateTimeOriginal, DateTime), then XMP (DateTimeOriginal, CreateDate, DateCreated),
// and finally IPTC (DateCreated + TimeCreated).
func (t Tags) GetDateTime() (time.Time, error) {
	dateStr, hasTimeZone := t.dateTime()
	if dateStr == "" {
		return time.Time{}, nil
	}

	const layout = "2006:01:02 15:04:05"

	if hasTimeZone {
		for _, l := range []string{
			"2006:01:02 15:04:05-07:00",
			"2006-01-02T15:04:05-07:00",
			"2006:01:02 15:04:05Z07:00",
			"2006-01-02T15:04:05Z07:00",
		} {
			if tm, err := time.Parse(l, dateStr); err == nil {
				return tm, nil
			}
		}
	}

	return time.ParseInLocation(layout, dateStr, time.Local)
}

// GetLatLong returns the latitude and longitude from available metadata sources.
// It checks EXIF first, then falls back to XMP.
func (t Tags) GetLatLong() (lat float64, long float64, err error) {
	lat, long, found := t.getLatLongFromEXIF()
	if found {
		return lat, long, nil
	}

	lat, long, found = t.getLatLongFromXMP()
	if found {
		return lat, long, nil
	}

	return 0, 0, nil
}

func (t Tags) getLatLongFromEXIF() (lat float64, long float64, found bool) {
	var ns, ew string

	exif := t.EXIF()

	longTag, ok := exif["GPSLongitude"]
	if !ok {
		return
	}
	if ewTag, ok := exif["GPSLongitudeRef"]; ok {
		ew = toString(ewTag.Value)
	}
	latTag, ok := exif["GPSLatitude"]
	if !ok {
		return
	}
	if nsTag, ok := exif["GPSLatitudeRef"]; ok {
		ns = toString(nsTag.Value)
	}

	lat = toFloat64(latTag.Value)
	long = toFloat64(longTag.Value)

	if ns == "S" {
		lat = -lat
	}

	if ew == "W" {
		long = -long
	}

	if math.IsNaN(lat) {
		lat = 0
	}
	if math.IsNaN(long) {
		long = 0
	}

	return lat, long, true
}

func (t Tags) getLatLongFromXMP() (lat float64, long float64, found bool) {
	xmp := t.XMP()

	latTag, ok := xmp["GPSLatitude"]
	if !ok {
		return
	}
	longTag, ok := xmp["GPSLongitude"]
	if !ok {
		return
	}

	lat = toFloat64(latTag.Value)
	long = toFloat64(longTag.Value)

	if math.IsNaN(lat) {
		lat = 0
	}
	if math.IsNaN(long) {
		long = 0
	}

	return lat, long, true
}

func (t *Tags) getSourceMap(source Source) map[string]TagInfo {
	switch source {
	case EXIF:
		return t.EXIF()
	case IPTC:
		return t.IPTC()
	case XMP:
		return t.XMP()
	default:
		return nil
	}
}

func (t Tags) dateTime() (string, bool) {
	exif := t.EXIF()
	for _, tag := range []string{"DateTimeOriginal", "DateTime"} {
		if ti, ok := exif[tag]; ok {
			return toString(ti.Value), false
		}
	}

	xmp := t.XMP()
	for _, tag := range []string{"DateTimeOriginal", "CreateDate", "DateCreated"} {
		if ti, ok := xmp[tag]; ok {
			s := toString(ti.Value)
			// XMP dates may include a time zone offset.
			return s, len(s) > 19
		}
	}

	iptc := t.IPTC()
	if dateTag, ok := iptc["DateCreated"]; ok {
		dateStr := toString(dateTag.Value)
		if timeTag, ok := iptc["TimeCreated"]; ok {
			// "HH:MM:SS" or "HH:MM:SS+HH:MM"
			timeStr := toString(timeTag.Value)
			return dateStr + " " + timeStr, len(timeStr) > 8
		}
		return dateStr + " 00:00:00", false
	}

	return "", false
}
