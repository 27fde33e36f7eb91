package signing

import "errors"

var (
	// ErrInvalidTimestamp indicates X-Timestamp did not parse as an integer.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrTimestampExpired indicates the timestamp falls outside the signing window.
	ErrTimestampExpired = errors.New("timestamp expired")
	// ErrReplayDetected indicates a repeated nonce outside the retry tolerance.
	ErrReplayDetected = errors.New("replay detected")
	// ErrUnknownKeyID indicates no signing secret is configured for the key id.
	ErrUnknownKeyID = errors.New("unknown key id")
	// ErrBodyHashMismatch indicates the client-supplied body hash disagrees
	// with the server-computed one.
	ErrBodyHashMismatch = errors.New("body hash mismatch")
	// ErrSignatureInvalid indicates the HMAC comparison failed.
	ErrSignatureInvalid = errors.New("signature verification failed")
)
