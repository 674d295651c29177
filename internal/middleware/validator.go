package middleware

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Input validation and sanitization utilities

const maxIdentifierLen = 256

// ValidateIdentifier checks a defect or image id taken from a form or URL.
// Ids come from scene node names, so spaces and punctuation are allowed.
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return nil // presence is checked by the service
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("%s too long (max %d chars)", kind, maxIdentifierLen)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in %s", kind)
		}
	}
	return nil
}

// ValidateUploadName rejects names that are empty, hidden or try to leave the upload directory.
func ValidateUploadName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid file name: %q", name)
	}
	if strings.HasPrefix(name, ".") || filepath.Ext(name) == "" {
		return fmt.Errorf("file name needs a base name and an extension: %q", name)
	}
	return nil
}

// SanitizeString drops control characters and keeps everything else, including
// surrounding spaces: ids taken from node names may carry them.
func SanitizeString(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}
