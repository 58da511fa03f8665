package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxPhotoSize is the largest intake photo accepted, 10MB
const MaxPhotoSize = 10 << 20

// photoTypes maps accepted extensions to the content type the bytes must match
var photoTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// FileUploadError is a rejected upload, reported to the client as a 400
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// InspectPhoto checks the size, extension and content of an intake photo and
// returns the content type to store it with.
func InspectPhoto(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxPhotoSize {
		return "", &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxPhotoSize>>20),
		}
	}
	if fileHeader.Size == 0 {
		return "", &FileUploadError{Code: "EMPTY_FILE", Message: "File is empty"}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	contentType, ok := photoTypes[ext]
	if !ok {
		return "", &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only .png, .jpg and .jpeg files are allowed",
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !detected.Is(contentType) {
		return "", &FileUploadError{
			Code:    "CONTENT_MISMATCH",
			Message: fmt.Sprintf("File content is %s, not a %s image", detected.String(), ext),
		}
	}
	return contentType, nil
}
