package errors

import (
	"fmt"
	"strings"
)

// Post domain error codes
const (
	CodePostNotFound       = "POST_NOT_FOUND"
	CodePostDeleted        = "POST_DELETED"
	CodeNotPostOwner       = "NOT_POST_OWNER"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeFieldValidation    = "FIELD_VALIDATION_ERROR"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeLockNotAcquired    = "LOCK_NOT_ACQUIRED"
	CodeEventPublishFailed = "EVENT_PUBLISH_FAILED"
)

// PostNotFound is returned when a post is absent or soft-deleted
func PostNotFound(postID string) *AppError {
	return NewNotFoundError("post").
		WithCode(CodePostNotFound).
		WithDetails(map[string]interface{}{"postId": postID})
}

// UserNotFound is returned when the user directory has no record
func UserNotFound(ref string) *AppError {
	return NewNotFoundError("user").
		WithCode(CodeUserNotFound).
		WithDetails(map[string]interface{}{"user": ref})
}

// NotPostOwner is returned when a user tries to delete another user's post
func NotPostOwner(postID string) *AppError {
	return NewForbiddenError("only the author can delete this post").
		WithCode(CodeNotPostOwner).
		WithDetails(map[string]interface{}{"postId": postID})
}

// PostBusy is returned when a post stays uncached while another caller holds
// its population lock for longer than the caller is willing to wait
func PostBusy(postID string) *AppError {
	return NewUnavailableError("post cache").
		WithCode(CodeLockNotAcquired).
		WithDetails(map[string]interface{}{"postId": postID})
}

// ValidationErrors aggregates field validation failures
type ValidationErrors struct {
	fields   []string
	messages []string
}

// NewValidationErrors creates a new validation errors collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds a validation error
func (v *ValidationErrors) Add(field string, message string) {
	v.fields = append(v.fields, field)
	v.messages = append(v.messages, message)
}

// HasErrors returns true if there are validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.messages) > 0
}

// ToMap converts validation errors to a map for JSON serialization
func (v *ValidationErrors) ToMap() map[string][]string {
	result := make(map[string][]string)
	for i, field := range v.fields {
		result[field] = append(result[field], v.messages[i])
	}
	return result
}

// AsAppError converts the collection into a single validation AppError, or nil when empty
func (v *ValidationErrors) AsAppError() error {
	if !v.HasErrors() {
		return nil
	}
	details := make(map[string]interface{}, len(v.fields))
	for field, msgs := range v.ToMap() {
		details[field] = msgs
	}
	return NewValidationError(fmt.Sprintf("validation failed: %s", strings.Join(v.messages, "; "))).
		WithCode(CodeFieldValidation).
		WithDetails(details)
}
