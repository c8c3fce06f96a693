package utils

import (
	"os"
	"path/filepath"
)

// Local document storage, used when R2 is not configured (development, tests).

// EnsureUploadDir creates the uploads directory if it doesn't exist
func EnsureUploadDir() error {
	return os.MkdirAll("uploads", os.ModePerm)
}

// SaveDocumentLocally writes document bytes under uploads/ mirroring the R2 key
// layout and returns the relative URL path served by the uploads static route.
func SaveDocumentLocally(data []byte, key string) (string, error) {
	destPath := filepath.Join("uploads", filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(destPath), nil
}
