package domain

import "errors"

// Pipeline sentinel errors. Callers branch on these with errors.Is.
var (
	// ErrEmptyInput indicates a newsletter with no body text. The pipeline
	// fails fast: nothing is extracted, nothing is written to the index.
	ErrEmptyInput = errors.New("empty newsletter body")

	// ErrPayloadTooLarge indicates the model service rejected a request for
	// exceeding its context window. The composer reacts by falling back to
	// the chunked strategy; the error is not surfaced past the composer.
	ErrPayloadTooLarge = errors.New("payload too large for model")
)
