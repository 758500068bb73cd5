package validators

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"postservice/domain/config"
	"postservice/domain/core/entities"
	"postservice/pkg/errors"
)

// PostValidator validates post-related domain rules
type PostValidator struct {
	contentMaxLength  int
	mediaURLMaxLength int
}

// NewPostValidator creates a validator bound to the domain configuration
func NewPostValidator(cfg *config.DomainConfig) *PostValidator {
	return &PostValidator{
		contentMaxLength:  cfg.MaxContentLength,
		mediaURLMaxLength: cfg.MaxMediaURLLength,
	}
}

// ValidateNewPost checks the shape rules a post must satisfy before it is persisted.
// Content may only be empty for reposts, and a repost can not also be a reply.
func (v *PostValidator) ValidateNewPost(post *entities.Post) error {
	validationErrors := errors.NewValidationErrors()

	if post.IsRepost() && post.IsReply() {
		validationErrors.Add("repostParentId", "a repost can not have a parent post")
	}

	if !post.IsRepost() && !post.HasOwnContent() {
		validationErrors.Add("content", "content is required unless reposting")
	}

	if n := utf8.RuneCountInString(post.Content); n > v.contentMaxLength {
		validationErrors.Add("content", fmt.Sprintf("content must be at most %d characters, got %d", v.contentMaxLength, n))
	}

	if strings.Contains(post.Content, "<script>") || strings.Contains(post.Content, "javascript:") {
		validationErrors.Add("content", "content contains potentially malicious code")
	}

	if post.MediaURL != nil {
		if err := v.validateMediaURL(*post.MediaURL); err != nil {
			validationErrors.Add("mediaUrl", err.Error())
		}
	}

	if post.MediaWidth != nil && *post.MediaWidth <= 0 {
		validationErrors.Add("mediaWidth", "media width must be positive")
	}
	if post.MediaHeight != nil && *post.MediaHeight <= 0 {
		validationErrors.Add("mediaHeight", "media height must be positive")
	}

	return validationErrors.AsAppError()
}

// validateMediaURL validates a media URL
func (v *PostValidator) validateMediaURL(raw string) error {
	if len(raw) > v.mediaURLMaxLength {
		return fmt.Errorf("media url must be at most %d characters", v.mediaURLMaxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid media url format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("media url must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("media url must have a valid host")
	}

	return nil
}
