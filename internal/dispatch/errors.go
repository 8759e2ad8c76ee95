package dispatch

import (
	"errors"
	"fmt"
)

// DeliveryError reports a failed webhook delivery: a network error, a
// timeout or a non-2xx response.
type DeliveryError struct {
	// JobID identifies the notification job.
	JobID string

	// URL is the subscriber's callback URL.
	URL string

	// StatusCode is the HTTP status, 0 if no response was received.
	StatusCode int

	// Err is the transport error, nil for a non-2xx response.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver job %s to %s: %v", e.JobID, e.URL, e.Err)
	}
	return fmt.Sprintf("deliver job %s to %s: status %d", e.JobID, e.URL, e.StatusCode)
}

// Unwrap returns the transport error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError returns true if err is or wraps a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
