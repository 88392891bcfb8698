package domain

import "errors"

// Error taxonomy shared by every component. Components wrap these with
// fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	// ErrConfiguration means required configuration (the backend credential) is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrLookupTimeout means a chat surface element did not appear in time.
	ErrLookupTimeout = errors.New("lookup timeout")

	// ErrNotFound means an expected local file is absent.
	ErrNotFound = errors.New("not found")

	// ErrBackendRequest means the AI backend failed at transport or API level.
	ErrBackendRequest = errors.New("backend request failed")

	// ErrConversion means the document renderer failed.
	ErrConversion = errors.New("conversion failed")

	// ErrInvalidInput means a component received empty or kind-mismatched input.
	ErrInvalidInput = errors.New("invalid input")
)
