package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")

	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrDeliveryTimeout   = fmt.Errorf("delivery timed out")
	ErrParticipantLookup = fmt.Errorf("participant lookup failed")
	ErrNotParticipant    = fmt.Errorf("user is not a participant of this conversation")
	ErrMembershipExists  = fmt.Errorf("membership already exists")
	ErrMembershipMissing = fmt.Errorf("membership not found")
	ErrInvalidToken      = fmt.Errorf("invalid or expired token")
	ErrMissingToken      = fmt.Errorf("authorization token is missing")
	ErrTokenGeneration   = fmt.Errorf("token generation failed")
	ErrContentTooLong    = fmt.Errorf("content exceeds maximum length")
	ErrEmptyContent      = fmt.Errorf("content is empty")
	ErrInvalidCursor     = fmt.Errorf("invalid history cursor")
)

// Client error codes sent back on the socket inside an "error" frame.
const (
	CodeInvalidJSON      = "INVALID_JSON"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeMissingFields    = "MISSING_FIELDS"
	CodeSendMessage      = "SEND_MESSAGE_ERROR"
	CodeReadReceipt      = "READ_RECEIPT_ERROR"
	CodeJoin             = "JOIN_ERROR"
	CodeHistory          = "HISTORY_ERROR"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"
	CodeProcessingFailed = "PROCESSING_ERROR"
	CodeForbidden        = "FORBIDDEN"
)

// ToClientMessage turns an internal error into the text shown to the client.
// Unknown errors are masked so storage details never leak on the socket.
func ToClientMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrInvalidCursor):
		return unwrapSentinel(err)
	default:
		return "internal server error"
	}
}

func unwrapSentinel(err error) string {
	for _, sentinel := range []error{ErrNotParticipant, ErrContentTooLong, ErrEmptyContent, ErrInvalidCursor} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
