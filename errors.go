// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package jpegmeta

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedHeader is returned when a segment or structure header does not
	// start with its expected sentinel.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrBounds is returned when a read goes past the declared length of a region.
	ErrBounds = errors.New("read out of bounds")

	// ErrMissingCarrier is returned by Write when modified Exif or IPTC data has
	// no segment in the source to carry it.
	ErrMissingCarrier = errors.New("no carrier segment")

	// ErrUnsupportedConstruction is returned when a constructor or setter gets an
	// argument it does not know how to handle.
	ErrUnsupportedConstruction = errors.New("unsupported construction")

	// ErrMarkerOrder is returned by Write when the segments would be written
	// in an order decoders do not accept.
	ErrMarkerOrder = errors.New("invalid marker order")

	// ErrInvalidFormat is matched by errors.Is for all InvalidFormatError values.
	ErrInvalidFormat = errors.New("invalid format")

	// Internal error to signal that we should stop any further processing.
	errStop = errors.New("stop")

	errShortRead = errors.New("short read")
)

// InvalidFormatError is used when the source could not be decoded.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("jpegmeta: invalid format: %s", e.Err)
}

// Is reports whether target is ErrInvalidFormat.
func (e *InvalidFormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

func (e *InvalidFormatError) Unwrap() error {
	return e.Err
}

// IsInvalidFormat reports whether the error was an InvalidFormatError.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

func newInvalidFormatError(err error) error {
	if IsInvalidFormat(err) {
		return err
	}
	return &InvalidFormatError{Err: err}
}

func newInvalidFormatErrorf(format string, args ...any) error {
	return newInvalidFormatError(fmt.Errorf(format, args...))
}

func isInvalidFormatErrorCandidate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrBounds) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, errShortRead)
}

// errFromRecover converts a recovered panic into an error.
// readErr is the sticky read error of the reader that panicked, if any.
func errFromRecover(r any, readErr error) error {
	if r == nil {
		return nil
	}
	if r == errStop {
		if readErr == nil || readErr == io.EOF {
			return fmt.Errorf("%w: unexpected end of data", ErrBounds)
		}
		return readErr
	}
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("unknown panic: %v", r)
}
