package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrGenerationEventNotFound = errors.New("generation event not found")
	ErrStepLedgerKey           = errors.New("job id and step name are required")
)
