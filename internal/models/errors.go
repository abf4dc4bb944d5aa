package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidDigest is returned for input that is not a 64-character hex digest.
	ErrInvalidDigest = errors.New("invalid sha256 digest")
	// ErrDigestNotFound is returned when the backend has no record of a digest.
	ErrDigestNotFound = errors.New("digest not found")
	// ErrTransport covers non-2xx statuses, network faults and unparsable bodies.
	ErrTransport = errors.New("request failed")
	// ErrEmptySelection is returned when an upload is started with no files.
	ErrEmptySelection = errors.New("no files selected")
	// ErrNothingReadable is returned when none of the selected files could be read.
	ErrNothingReadable = errors.New("none of the selected files could be read")
	// ErrBatchTooLarge is returned when the selection exceeds the batch size limit.
	ErrBatchTooLarge = errors.New("selection exceeds batch size limit")
)

// User-facing messages.
const (
	MessageNotFound       = "No scan result on record for this SHA-256"
	MessageInvalidDigest  = "Invalid SHA-256: expected 64 hexadecimal characters"
	MessageUploadFailed   = "Failed to upload files"
	MessageQueryFailed    = "Failed to fetch scan result"
	MessageEmptySelection = "Select at least one file to scan"
	MessageNothingRead    = "None of the selected files could be read"
	MessageBatchTooLarge  = "Selected files exceed the maximum upload size"
	MessageUnexpected     = "Unexpected error"
)

// BackendError is an error message reported by the backend in a well-formed
// response. Its text is shown to the user verbatim.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// TransportError records a failed exchange with the backend.
type TransportError struct {
	Op     string // "scan", "query" or "ping"
	Status int    // HTTP status, 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Timeout reports whether the exchange hit its deadline.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// UserMessage maps err onto the single message shown in an error session.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Message
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		msg := MessageUploadFailed
		if transportErr.Op == "query" {
			msg = MessageQueryFailed
		}
		if transportErr.Timeout() {
			msg += ": request timed out"
		} else if transportErr.Status != 0 {
			msg += fmt.Sprintf(" (%d %s)", transportErr.Status, http.StatusText(transportErr.Status))
		}
		return msg
	}

	switch {
	case errors.Is(err, ErrDigestNotFound):
		return MessageNotFound
	case errors.Is(err, ErrInvalidDigest):
		return MessageInvalidDigest
	case errors.Is(err, ErrEmptySelection):
		return MessageEmptySelection
	case errors.Is(err, ErrNothingReadable):
		return MessageNothingRead
	case errors.Is(err, ErrBatchTooLarge):
		return MessageBatchTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return MessageUploadFailed + ": request timed out"
	default:
		return MessageUnexpected
	}
}
