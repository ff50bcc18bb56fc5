package model

import "fmt"

// NotFoundError reports a missing image, json, layer, or ancestry entry.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ConflictError reports an upload attempted on an already-finalized image.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func NewConflictError(reason string) error {
	return &ConflictError{Reason: reason}
}

// BadRequestError reports malformed input, id mismatches, missing
// headers, checksum mismatches, or unsupported archive formats.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}

func NewBadRequestError(reason string) error {
	return &BadRequestError{Reason: reason}
}

// FormatError reports malformed tar content encountered by the archive reader.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("layer format not supported: %s", e.Reason)
}

// DecompressError reports a compressed envelope that could not be
// opened: the archive reader returns it when a stream carrying the gzip
// magic number has an invalid gzip header. A failed LZMA probe does not
// produce it; the reader falls through to plain tar instead.
type DecompressError struct {
	Reason string
}

func (e *DecompressError) Error() string {
	return fmt.Sprintf("decompression failed: %s", e.Reason)
}
