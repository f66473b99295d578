/*
Package errs provides custom error types and application-level error code constants.

These error codes identify integrity and request errors both inside the routing core
and in communication with clients. Expected routing outcomes (a blocked sender, a target
with direct messages disabled) are not errors and never appear here.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Channel Errors
const (
	// ErrDuplicateChannel indicates that a channel with the same identifier is already registered.
	ErrDuplicateChannel = 2101

	// ErrMalformedChannel indicates that a channel definition is missing fields or has invalid values.
	ErrMalformedChannel = 2102

	// ErrChannelNotFound indicates that the referenced channel does not exist.
	ErrChannelNotFound = 2103

	// ErrGlobalChannelProtected indicates an attempt to remove the global channel over the API.
	ErrGlobalChannelProtected = 2104

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageContentEmpty indicates that the message content was empty.
	ErrMessageContentEmpty = 2202
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrSelfBlock indicates that a user attempted to block themselves.
	ErrSelfBlock = 3001

	// ErrUnknownUser indicates that the referenced user is not known to the directory.
	ErrUnknownUser = 3002

	// ErrSessionKicked indicates that the current client connection has been replaced.
	ErrSessionKicked = 3004

	// ErrUnauthorized indicates that the request carries no valid identity.
	ErrUnauthorized = 3005

	// ErrForbidden indicates that the caller's priority tier is too low for the operation.
	ErrForbidden = 3006

	// ErrChallengeRequired indicates the client must complete a proof-of-work challenge first.
	ErrChallengeRequired = 3007

	// ErrChallengeInvalid indicates that the proof-of-work answer is wrong or its nonce expired.
	ErrChallengeInvalid = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
