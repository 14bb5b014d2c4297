package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeAlreadyJoined = "already_joined"
	ErrCodeInviteOnly    = "invite_only"
	ErrCodeBadKey        = "bad_key"
	ErrCodeChannelFull   = "channel_full"
	ErrCodeInvalidMember = "invalid_member"
)

// ErrInvalidLimit is returned by SetUserLimit for negative values.
var ErrInvalidLimit = errors.New("user limit must not be negative")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorCode extracts the code of a *CoreError, or "" for anything else.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
