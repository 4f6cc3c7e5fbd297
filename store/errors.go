package store

import "errors"

var (
	// ErrUnknownFormat is returned when a frame's format flags name an
	// encoding this build does not understand. The frame is never
	// decoded by guesswork.
	ErrUnknownFormat = errors.New("store: unknown frame format")

	// ErrCorruptFrame is returned when frame bytes are truncated or
	// fail their checksum. It applies per frame; surrounding frames
	// stay readable.
	ErrCorruptFrame = errors.New("store: corrupt frame")

	// ErrUnsupported is returned by backends that are configured but
	// not implemented, instead of silently returning empty data.
	ErrUnsupported = errors.New("store: unsupported backend")
)
