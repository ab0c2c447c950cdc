package models

import (
	"errors"
	"net/http"
)

var (
	// ErrMalformedGeometry marks a search area or location that cannot be evaluated.
	// Matching treats it as a fail-closed exclusion; only preference writes reject it.
	ErrMalformedGeometry = errors.New("malformed geometry")
	// ErrAmbiguousDuplicate is recorded when more than one canonical listing matches an import.
	ErrAmbiguousDuplicate = errors.New("ambiguous duplicate")
	// ErrMissingClassificationInput marks a raw listing with neither owner nor agency contact.
	ErrMissingClassificationInput = errors.New("missing classification input")
	// ErrPreferenceAbsent means the buyer has no stored preference.
	ErrPreferenceAbsent = errors.New("buyer preference absent")
	// ErrStorageConflict is a retryable unique-index collision on write.
	ErrStorageConflict = errors.New("storage conflict")

	ErrListingNotFound  = errors.New("listing not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrConflictNotFound = errors.New("duplicate conflict not found")
	ErrNotBuyer         = errors.New("client is not a buyer")
	ErrUnknownPortal    = errors.New("unknown portal source")
	ErrInvalidPayload   = errors.New("invalid listing payload")
)

var statusCodes = []struct {
	err  error
	code int
}{
	{ErrMalformedGeometry, http.StatusBadRequest},
	{ErrUnknownPortal, http.StatusBadRequest},
	{ErrInvalidPayload, http.StatusBadRequest},
	{ErrNotBuyer, http.StatusBadRequest},
	{ErrPreferenceAbsent, http.StatusNotFound},
	{ErrListingNotFound, http.StatusNotFound},
	{ErrClientNotFound, http.StatusNotFound},
	{ErrConflictNotFound, http.StatusNotFound},
	{ErrStorageConflict, http.StatusConflict},
	{ErrAmbiguousDuplicate, http.StatusConflict},
	{ErrMissingClassificationInput, http.StatusUnprocessableEntity},
}

// StatusCode maps a domain sentinel error to an HTTP status.
func StatusCode(err error) (int, bool) {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.code, true
		}
	}
	return 0, false
}
