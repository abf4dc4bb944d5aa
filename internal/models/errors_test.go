package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: fmt.Errorf("query: %w", ErrDigestNotFound), want: MessageNotFound},
		{name: "invalid digest", err: fmt.Errorf("%w: too short", ErrInvalidDigest), want: MessageInvalidDigest},
		{name: "backend error verbatim", err: fmt.Errorf("scan: %w", &BackendError{Message: "model exploded"}), want: "model exploded"},
		{name: "scan status", err: &TransportError{Op: "scan", Status: http.StatusBadGateway}, want: "Failed to upload files (502 Bad Gateway)"},
		{name: "query status", err: &TransportError{Op: "query", Status: http.StatusInternalServerError}, want: "Failed to fetch scan result (500 Internal Server Error)"},
		{name: "network fault", err: &TransportError{Op: "scan", Err: errors.New("connection refused")}, want: MessageUploadFailed},
		{name: "timeout", err: &TransportError{Op: "query", Err: context.DeadlineExceeded}, want: "Failed to fetch scan result: request timed out"},
		{name: "empty selection", err: ErrEmptySelection, want: MessageEmptySelection},
		{name: "unreadable", err: ErrNothingReadable, want: MessageNothingRead},
		{name: "too large", err: ErrBatchTooLarge, want: MessageBatchTooLarge},
		{name: "unknown", err: errors.New("boom"), want: MessageUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestTransportErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("upload: %w", &TransportError{Op: "scan", Status: 500})
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrDigestNotFound)
}
