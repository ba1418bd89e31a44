package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// ErrUnsupportedFormat is returned for recipe files that are neither .txt nor .pdf.
var ErrUnsupportedFormat = errors.New("unsupported file format, use .txt or .pdf")

// SupportedExtension reports whether path names a recipe document we can load.
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".pdf":
		return true
	}
	return false
}

// LoadDocument reads a .txt or .pdf recipe file into plain text. PDF pages
// are joined with newlines.
func LoadDocument(ctx context.Context, path string) (string, error) {
	if !SupportedExtension(path) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open recipe file: %w", err)
	}
	defer f.Close()

	var docs []schema.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("failed to stat recipe file: %w", err)
		}
		docs, err = documentloaders.NewPDF(f, info.Size()).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf %s: %w", path, err)
		}
	default:
		docs, err = documentloaders.NewText(f).Load(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.PageContent)
	}
	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return "", fmt.Errorf("recipe file %s is empty", path)
	}
	return text, nil
}
