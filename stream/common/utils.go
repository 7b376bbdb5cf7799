package common

import (
	"strings"
)

// ExtractContentType extracts main content type without parameters
func ExtractContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	// Remove charset and other parameters
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}

	return strings.TrimSpace(contentType)
}

// ContentTypeOrDefault returns the declared content type, or DefaultContentType
// when none was declared
func ContentTypeOrDefault(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return DefaultContentType
	}
	return contentType
}
