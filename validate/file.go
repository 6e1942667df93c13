package validate

import (
	"github.com/docker/go-units"
)

const (
	MaxCVSize         = 5 * units.MiB
	MaxPhotoSize      = 2 * units.MiB
	MaxFileNameLength = 100
)

var (
	CVTypes = []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
	}
	PhotoTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
)

// CV checks a CV document.
func CV(name, mimeType string, size int64) *Error {
	if !contains(CVTypes, mimeType) {
		return Errorf("file", "Invalid file type. Please upload a PDF or Word document.")
	}
	if size > MaxCVSize {
		return Errorf("file", "File too large. Maximum size is 5MB.")
	}
	if !MaxLength(name, MaxFileNameLength) {
		return Errorf("file", "File name is too long. Maximum length is 100 characters.")
	}
	return nil
}

// Photo checks a profile photo.
func Photo(name, mimeType string, size int64) *Error {
	if !contains(PhotoTypes, mimeType) {
		return Errorf("file", "Invalid file type. Please upload a JPEG, PNG, GIF, or WebP image.")
	}
	if size > MaxPhotoSize {
		return Errorf("file", "File too large. Maximum size is 2MB.")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
