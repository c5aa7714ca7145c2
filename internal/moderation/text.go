package moderation

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sujalbistaa/whispr/internal/apperr"
)

const (
	MinConfessionLength = 10
	MaxConfessionLength = 1000
	MinCommentLength    = 1
	MaxCommentLength    = 500
)

var (
	emailPattern = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)

	stripTagsPolicy = bluemonday.StripTagsPolicy()
)

// Normalize trims whitespace and removes any HTML markup so stored text is
// always plain.
func Normalize(text string) string {
	stripped := stripTagsPolicy.Sanitize(strings.TrimSpace(text))
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// ContainsPII reports whether text holds an email address or phone number.
func ContainsPII(text string) bool {
	return emailPattern.MatchString(text) || phonePattern.MatchString(text)
}

// submittedPII checks what the user typed, its entity-decoded form and the
// normalized text. Markup stripping can swallow an address written as
// "<a@b.io>", so the raw forms are scanned before anything is removed.
func submittedPII(raw, clean string) bool {
	raw = strings.TrimSpace(raw)
	return ContainsPII(raw) || ContainsPII(html.UnescapeString(raw)) || ContainsPII(clean)
}

// ValidateConfession checks confession length bounds.
func ValidateConfession(text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinConfessionLength {
		return apperr.New(apperr.KindValidation,
			fmt.Sprintf("Confession must be at least %d characters long.", MinConfessionLength))
	}
	if n > MaxConfessionLength {
		return apperr.New(apperr.KindValidation,
			fmt.Sprintf("Confession must be no more than %d characters long.", MaxConfessionLength))
	}
	return nil
}

// ValidateComment checks comment length bounds.
func ValidateComment(text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinCommentLength {
		return apperr.New(apperr.KindValidation, "Comment cannot be empty.")
	}
	if n > MaxCommentLength {
		return apperr.New(apperr.KindValidation, "Comment is too long.")
	}
	return nil
}

// CheckComment runs the PII and length checks and returns the text to store.
// Comments are not sent to the classifier.
func CheckComment(text string) (string, error) {
	clean := Normalize(text)
	if submittedPII(text, clean) {
		return "", apperr.New(apperr.KindContainsPII,
			"Comment appears to contain personal information. Please remove it.")
	}
	if err := ValidateComment(clean); err != nil {
		return "", err
	}
	return clean, nil
}
