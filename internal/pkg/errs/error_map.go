/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Channel Errors
	ErrDuplicateChannel:       {Code: ErrDuplicateChannel, Message: "Channel %s already exists.", Status: http.StatusConflict},
	ErrMalformedChannel:       {Code: ErrMalformedChannel, Message: "Channel definition %q is malformed: %s.", Status: http.StatusBadRequest},
	ErrChannelNotFound:        {Code: ErrChannelNotFound, Message: "Channel not found.", Status: http.StatusNotFound},
	ErrGlobalChannelProtected: {Code: ErrGlobalChannelProtected, Message: "The global channel cannot be removed.", Status: http.StatusConflict},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageContentEmpty:    {Code: ErrMessageContentEmpty, Message: "Message is empty."},

	// 3xxx: User, Session, and Security Errors
	ErrSelfBlock:     {Code: ErrSelfBlock, Message: "You cannot block yourself."},
	ErrUnknownUser:   {Code: ErrUnknownUser, Message: "That player could not be found."},
	ErrSessionKicked: {Code: ErrSessionKicked, Message: "You were signed in from another connection."},
	ErrUnauthorized:  {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrForbidden:     {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},

	ErrChallengeRequired: {Code: ErrChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusPreconditionRequired},
	ErrChallengeInvalid:  {Code: ErrChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
