package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job lifecycle
	ErrJobNotOwned    = errors.New("job lease not owned by this worker")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidPayload = errors.New("invalid job payload")

	// Explain artifacts
	ErrStaleRequest          = errors.New("output superseded by a newer request")
	ErrGenerationUnavailable = errors.New("no language model configured")
	ErrInvalidJSON           = errors.New("model response is not valid JSON")

	// Extraction
	ErrProviderUnavailable = errors.New("extraction provider unavailable")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyDocument       = errors.New("document has no content")
)
