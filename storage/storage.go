// Package storage implements the asset store: durable hosting for rehosted
// image bytes, backed by the local filesystem or an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config contains filesystem storage configuration
type Config struct {
	BasePath      string // Base directory for all stored files
	PublicBaseURL string // URL prefix the stored files are served from
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath:      "./storage",
		PublicBaseURL: "/assets",
	}
}

// Storage handles filesystem-backed asset storage
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// Upload saves image bytes under folder/YYYY/MM/ and returns the durable URL.
func (s *Storage) Upload(ctx context.Context, data []byte, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := extensionFromContentType(DetectContentType(data))
	if ext == "" {
		ext = ".jpg"
	}

	now := time.Now()
	dirPath := filepath.Join(s.config.BasePath, folder,
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	filename := uuid.New().String() + ext
	filePath := filepath.Join(dirPath, filename)

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return strings.TrimRight(s.config.PublicBaseURL, "/") + "/" + filepath.ToSlash(relPath), nil
}

// Read returns the bytes of a previously uploaded asset by its relative path.
func (s *Storage) Read(relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.config.BasePath, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset file: %w", err)
	}
	return data, nil
}

// Delete removes an uploaded asset. Missing files are not an error.
func (s *Storage) Delete(relPath string) error {
	if err := os.Remove(filepath.Join(s.config.BasePath, relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset file: %w", err)
	}
	return nil
}

// extensionFromContentType returns the file extension for a content type
func extensionFromContentType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}
