package domain

import "errors"

var (
	// ErrNotFound reports a missing post or user.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports an ownership violation.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyContacted reports a duplicate introduction request.
	ErrAlreadyContacted = errors.New("already contacted")
	// ErrSelfContact reports a request to be introduced to oneself.
	ErrSelfContact = errors.New("self contact")
	// ErrValidation reports malformed user input.
	ErrValidation = errors.New("validation failed")
	// ErrPublishFailed reports a failed chat delivery or channel send/edit.
	ErrPublishFailed = errors.New("publish failed")
	// ErrStoreFailure reports an underlying persistence error.
	ErrStoreFailure = errors.New("store failure")
	// ErrInvalidState reports a transition attempted from a non-active status.
	ErrInvalidState = errors.New("invalid state")
)

// Code maps err onto a stable short code for logs. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAlreadyContacted):
		return "already_contacted"
	case errors.Is(err, ErrSelfContact):
		return "self_contact"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrPublishFailed):
		return "publish_failed"
	case errors.Is(err, ErrStoreFailure):
		return "store_failure"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	}
	return "internal"
}
