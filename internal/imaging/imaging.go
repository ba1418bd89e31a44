package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
)

// ErrNoImageFound is returned when a response carries no usable image payload.
var ErrNoImageFound = errors.New("no image found in response")

// ImageURL holds an image reference, usually a base64 data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentItem is one element of an image model response.
type ContentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageResponse is the provider-neutral result of an image generation call.
type ImageResponse struct {
	Items []ContentItem
}

// Text joins the text items of the response.
func (r *ImageResponse) Text() string {
	var parts []string
	for _, item := range r.Items {
		if item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Backend generates an image from a system instruction and a prompt.
type Backend interface {
	GenerateImage(ctx context.Context, system, prompt string) (*ImageResponse, error)
}

// Image is a decoded PNG ready to be written for a step.
type Image struct {
	StepNumber int
	Data       []byte
}

// StepFilename is the file an image for step n is written to.
func StepFilename(n int) string {
	return fmt.Sprintf("step_%d_image.png", n)
}

// ExtractImage finds the first item carrying an image URL and decodes its
// base64 payload. A data URI prefix, everything up to the first comma, is
// dropped. It never returns an empty slice without an error.
func ExtractImage(items []ContentItem) ([]byte, error) {
	var url string
	found := false
	for _, item := range items {
		if item.ImageURL != nil {
			url = item.ImageURL.URL
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoImageFound
	}

	payload := url
	if _, tail, ok := strings.Cut(url, ","); ok {
		payload = tail
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return nil, ErrNoImageFound
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("imaging: decoding image payload: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, ErrNoImageFound
	}
	return data, nil
}

// EnsurePNG returns data as PNG, re-encoding JPEG input.
func EnsurePNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decoding image: %w", err)
	}
	switch format {
	case "png":
		return data, nil
	case "jpeg":
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("imaging: encoding jpeg to png: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("imaging: unsupported image format %s", format)
	}
}

// DataURL encodes raw image bytes as a base64 data URI.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
