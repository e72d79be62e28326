package errors

import "errors"

// Domain errors
var (
	// Store errors
	ErrRecordNotFound = errors.New("record not found")
	ErrStoreCorrupt   = errors.New("store data corrupt")
	ErrEmptyDomain    = errors.New("domain cannot be empty")
	ErrEmptyURL       = errors.New("url cannot be empty")
	ErrEmptyDataDir   = errors.New("data directory cannot be empty")

	// Payload errors
	ErrEmptyPayload   = errors.New("payload is empty")
	ErrInvalidPayload = errors.New("payload is not valid text")

	// Extraction errors
	ErrInvalidPattern = errors.New("invalid custom pattern")

	// Notification errors
	ErrDeliveryFailed = errors.New("notification delivery failed")
	ErrNoTransport    = errors.New("no notification transport configured")
)

// PayloadError carries the (url, type, message) triple surfaced in aggregate
// error reporting. It never wraps a raw stack trace.
type PayloadError struct {
	URL     string
	Kind    string
	Message string
}

func (e *PayloadError) Error() string {
	return e.Kind + " " + e.URL + ": " + e.Message
}

// NewPayloadError builds a PayloadError from any failure observed while
// processing a single file.
func NewPayloadError(url, kind string, err error) *PayloadError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &PayloadError{URL: url, Kind: kind, Message: msg}
}
