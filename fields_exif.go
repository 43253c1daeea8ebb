// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/tiff"
)

const (
	tagExifIFDPointer    uint16 = 0x8769
	tagGPSInfoIFDPointer uint16 = 0x8825
	tagInteropIFDPointer uint16 = 0xA005
	tagIPTCNAA           uint16 = 0x83BB
)

// exifField is a known tag and the type it is written with when it is new.
type exifField struct {
	Name string
	Type tiff.DataType
}

// Source: https://exiftool.org/TagNames/EXIF.html
var exifFieldsTIFF = map[uint16]exifField{
	0x00FE: {"NewSubfileType", tiff.DTLong},
	0x0100: {"ImageWidth", tiff.DTLong},
	0x0101: {"ImageLength", tiff.DTLong},
	0x0102: {"BitsPerSample", tiff.DTShort},
	0x0103: {"Compression", tiff.DTShort},
	0x0106: {"PhotometricInterpretation", tiff.DTShort},
	0x010E: {"ImageDescription", tiff.DTAscii},
	0x010F: {"Make", tiff.DTAscii},
	0x0110: {"Model", tiff.DTAscii},
	0x0111: {"StripOffsets", tiff.DTLong},
	0x0112: {"Orientation", tiff.DTShort},
	0x0115: {"SamplesPerPixel", tiff.DTShort},
	0x0116: {"RowsPerStrip", tiff.DTLong},
	0x0117: {"StripByteCounts", tiff.DTLong},
	0x011A: {"XResolution", tiff.DTRational},
	0x011B: {"YResolution", tiff.DTRational},
	0x011C: {"PlanarConfiguration", tiff.DTShort},
	0x0128: {"ResolutionUnit", tiff.DTShort},
	0x012D: {"TransferFunction", tiff.DTShort},
	0x0131: {"Software", tiff.DTAscii},
	0x0132: {"DateTime", tiff.DTAscii},
	0x013B: {"Artist", tiff.DTAscii},
	0x013E: {"WhitePoint", tiff.DTRational},
	0x013F: {"PrimaryChromaticities", tiff.DTRational},
	0x0201: {"ThumbnailOffset", tiff.DTLong},
	0x0202: {"ThumbnailLength", tiff.DTLong},
	0x0211: {"YCbCrCoefficients", tiff.DTRational},
	0x0212: {"YCbCrSubSampling", tiff.DTShort},
	0x0213: {"YCbCrPositioning", tiff.DTShort},
	0x0214: {"ReferenceBlackWhite", tiff.DTRational},
	0x02BC: {"ApplicationNotes", tiff.DTByte},
	0x4746: {"Rating", tiff.DTShort},
	0x4749: {"RatingPercent", tiff.DTShort},
	0x8298: {"Copyright", tiff.DTAscii},
	0x83BB: {"IPTCNAA", tiff.DTUndefined},
	0x8769: {"ExifIFDPointer", tiff.DTLong},
	0x8825: {"GPSInfoIFDPointer", tiff.DTLong},
	0x9C9B: {"XPTitle", tiff.DTByte},
	0x9C9C: {"XPComment", tiff.DTByte},
	0x9C9D: {"XPAuthor", tiff.DTByte},
	0x9C9E: {"XPKeywords", tiff.DTByte},
	0x9C9F: {"XPSubject", tiff.DTByte},
}

var exifFieldsExif = map[uint16]exifField{
	0x829A: {"ExposureTime", tiff.DTRational},
	0x829D: {"FNumber", tiff.DTRational},
	0x8822: {"ExposureProgram", tiff.DTShort},
	0x8824: {"SpectralSensitivity", tiff.DTAscii},
	0x8827: {"ISOSpeedRatings", tiff.DTShort},
	0x8828: {"OECF", tiff.DTUndefined},
	0x8830: {"SensitivityType", tiff.DTShort},
	0x9000: {"ExifVersion", tiff.DTUndefined},
	0x9003: {"DateTimeOriginal", tiff.DTAscii},
	0x9004: {"DateTimeDigitized", tiff.DTAscii},
	0x9010: {"OffsetTime", tiff.DTAscii},
	0x9011: {"OffsetTimeOriginal", tiff.DTAscii},
	0x9012: {"OffsetTimeDigitized", tiff.DTAscii},
	0x9101: {"ComponentsConfiguration", tiff.DTUndefined},
	0x9102: {"CompressedBitsPerPixel", tiff.DTRational},
	0x9201: {"ShutterSpeedValue", tiff.DTSRational},
	0x9202: {"ApertureValue", tiff.DTRational},
	0x9203: {"BrightnessValue", tiff.DTSRational},
	0x9204: {"ExposureBiasValue", tiff.DTSRational},
	0x9205: {"MaxApertureValue", tiff.DTRational},
	0x9206: {"SubjectDistance", tiff.DTRational},
	0x9207: {"MeteringMode", tiff.DTShort},
	0x9208: {"LightSource", tiff.DTShort},
	0x9209: {"Flash", tiff.DTShort},
	0x920A: {"FocalLength", tiff.DTRational},
	0x9214: {"SubjectArea", tiff.DTShort},
	0x927C: {"MakerNote", tiff.DTUndefined},
	0x9286: {"UserComment", tiff.DTUndefined},
	0x9290: {"SubSecTime", tiff.DTAscii},
	0x9291: {"SubSecTimeOriginal", tiff.DTAscii},
	0x9292: {"SubSecTimeDigitized", tiff.DTAscii},
	0xA000: {"FlashpixVersion", tiff.DTUndefined},
	0xA001: {"ColorSpace", tiff.DTShort},
	0xA002: {"PixelXDimension", tiff.DTLong},
	0xA003: {"PixelYDimension", tiff.DTLong},
	0xA004: {"RelatedSoundFile", tiff.DTAscii},
	0xA005: {"InteroperabilityIFDPointer", tiff.DTLong},
	0xA20B: {"FlashEnergy", tiff.DTRational},
	0xA20E: {"FocalPlaneXResolution", tiff.DTRational},
	0xA20F: {"FocalPlaneYResolution", tiff.DTRational},
	0xA210: {"FocalPlaneResolutionUnit", tiff.DTShort},
	0xA214: {"SubjectLocation", tiff.DTShort},
	0xA215: {"ExposureIndex", tiff.DTRational},
	0xA217: {"SensingMethod", tiff.DTShort},
	0xA300: {"FileSource", tiff.DTUndefined},
	0xA301: {"SceneType", tiff.DTUndefined},
	0xA302: {"CFAPattern", tiff.DTUndefined},
	0xA401: {"CustomRendered", tiff.DTShort},
	0xA402: {"ExposureMode", tiff.DTShort},
	0xA403: {"WhiteBalance", tiff.DTShort},
	0xA404: {"DigitalZoomRatio", tiff.DTRational},
	0xA405: {"FocalLengthIn35mmFilm", tiff.DTShort},
	0xA406: {"SceneCaptureType", tiff.DTShort},
	0xA407: {"GainControl", tiff.DTShort},
	0xA408: {"Contrast", tiff.DTShort},
	0xA409: {"Saturation", tiff.DTShort},
	0xA40A: {"Sharpness", tiff.DTShort},
	0xA40C: {"SubjectDistanceRange", tiff.DTShort},
	0xA420: {"ImageUniqueID", tiff.DTAscii},
	0xA430: {"CameraOwnerName", tiff.DTAscii},
	0xA431: {"BodySerialNumber", tiff.DTAscii},
	0xA432: {"LensInfo", tiff.DTRational},
	0xA433: {"LensMake", tiff.DTAscii},
	0xA434: {"LensModel", tiff.DTAscii},
	0xA435: {"LensSerialNumber", tiff.DTAscii},
}

var exifFieldsGPS = map[uint16]exifField{
	0x0000: {"GPSVersionID", tiff.DTByte},
	0x0001: {"GPSLatitudeRef", tiff.DTAscii},
	0x0002: {"GPSLatitude", tiff.DTRational},
	0x0003: {"GPSLongitudeRef", tiff.DTAscii},
	0x0004: {"GPSLongitude", tiff.DTRational},
	0x0005: {"GPSAltitudeRef", tiff.DTByte},
	0x0006: {"GPSAltitude", tiff.DTRational},
	0x0007: {"GPSTimeStamp", tiff.DTRational},
	0x0008: {"GPSSatellites", tiff.DTAscii},
	0x0009: {"GPSStatus", tiff.DTAscii},
	0x000A: {"GPSMeasureMode", tiff.DTAscii},
	0x000B: {"GPSDOP", tiff.DTRational},
	0x000C: {"GPSSpeedRef", tiff.DTAscii},
	0x000D: {"GPSSpeed", tiff.DTRational},
	0x000E: {"GPSTrackRef", tiff.DTAscii},
	0x000F: {"GPSTrack", tiff.DTRational},
	0x0010: {"GPSImgDirectionRef", tiff.DTAscii},
	0x0011: {"GPSImgDirection", tiff.DTRational},
	0x0012: {"GPSMapDatum", tiff.DTAscii},
	0x0013: {"GPSDestLatitudeRef", tiff.DTAscii},
	0x0014: {"GPSDestLatitude", tiff.DTRational},
	0x0015: {"GPSDestLongitudeRef", tiff.DTAscii},
	0x0016: {"GPSDestLongitude", tiff.DTRational},
	0x0017: {"GPSDestBearingRef", tiff.DTAscii},
	0x0018: {"GPSDestBearing", tiff.DTRational},
	0x0019: {"GPSDestDistanceRef", tiff.DTAscii},
	0x001A: {"GPSDestDistance", tiff.DTRational},
	0x001B: {"GPSProcessingMethod", tiff.DTUndefined},
	0x001C: {"GPSAreaInformation", tiff.DTUndefined},
	0x001D: {"GPSDateStamp", tiff.DTAscii},
	0x001E: {"GPSDifferential", tiff.DTShort},
	0x001F: {"GPSHPositioningError", tiff.DTRational},
}

var (
	exifFieldsByKind = map[IFDKind]map[uint16]exifField{
		IFDTIFF: exifFieldsTIFF,
		IFDExif: exifFieldsExif,
		IFDGPS:  exifFieldsGPS,
	}
	exifFieldIDsByKind = map[IFDKind]map[string]uint16{}
)

var (
	exifConverters        = &vc{}
	exifValueConverterMap = map[string]valueConverter{
		"ApertureValue":           exifConverters.convertAPEXToFNumber,
		"MaxApertureValue":        exifConverters.convertAPEXToFNumber,
		"ShutterSpeedValue":       exifConverters.convertAPEXToSeconds,
		"GPSLatitude":             exifConverters.convertDegreesToDecimal,
		"GPSLongitude":            exifConverters.convertDegreesToDecimal,
		"GPSDestLatitude":         exifConverters.convertDegreesToDecimal,
		"GPSDestLongitude":        exifConverters.convertDegreesToDecimal,
		"GPSMeasureMode":          exifConverters.convertStringToInt,
		"SubSecTimeDigitized":     exifConverters.convertStringToInt,
		"SubSecTimeOriginal":      exifConverters.convertStringToInt,
		"SubSecTime":              exifConverters.convertStringToInt,
		"GPSTimeStamp":            exifConverters.convertToTimestampString,
		"GPSVersionID":            exifConverters.convertBytesToStringSpaceDelim,
		"SubjectArea":             exifConverters.convertNumbersToSpaceLimited,
		"ComponentsConfiguration": exifConverters.convertBytesToStringSpaceDelim,
		"LensInfo":                exifConverters.convertRatsToSpaceLimited,
		"MakerNote":               exifConverters.convertBinaryData,
		"IPTCNAA":                 exifConverters.convertBinaryData,
		"ApplicationNotes":        exifConverters.convertBinaryData,
		"UserComment": func(ctx valueConverterContext, v any) any {
			return strings.TrimPrefix(printableString(toString(v)), "ASCII")
		},
	}
)

func init() {
	for kind, fields := range exifFieldsByKind {
		ids := make(map[string]uint16, len(fields))
		for id, f := range fields {
			ids[f.Name] = id
		}
		exifFieldIDsByKind[kind] = ids
	}
}

// TagID returns the ID of the named tag in an IFD of the given kind.
// Spaces in name are ignored, so "Exif IFD Pointer" and "ExifIFDPointer" are
// the same tag. A hexadecimal ID, e.g. "0x010F", is also accepted.
func TagID(kind IFDKind, name string) (uint16, bool) {
	name = strings.ReplaceAll(name, " ", "")
	if id, ok := exifFieldIDsByKind[kind][name]; ok {
		return id, true
	}
	if strings.HasPrefix(name, "0x") || strings.HasPrefix(name, "0X") {
		id, err := strconv.ParseUint(name[2:], 16, 16)
		if err == nil {
			return uint16(id), true
		}
	}
	return 0, false
}

// TagName returns the name of the tag with the given ID in an IFD of the given kind.
func TagName(kind IFDKind, id uint16) string {
	if f, ok := exifFieldsByKind[kind][id]; ok {
		return f.Name
	}
	return fmt.Sprintf("%s0x%04x", UnknownPrefix, id)
}

// defaultTagType returns the type a new tag is written with.
func defaultTagType(kind IFDKind, id uint16) (tiff.DataType, bool) {
	f, ok := exifFieldsByKind[kind][id]
	return f.Type, ok
}
