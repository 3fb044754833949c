package papergraph

import "errors"

var (
	// ErrInvalidDocument is returned when a document identifier is empty.
	ErrInvalidDocument = errors.New("papergraph: invalid document id")

	// ErrStoreFailure wraps errors raised by the graph store during ingestion.
	ErrStoreFailure = errors.New("papergraph: graph store failure")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("papergraph: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("papergraph: parsing failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("papergraph: invalid configuration")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("papergraph: engine is closed")
)
