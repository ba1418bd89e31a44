package imaging

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiBackend generates images with a Gemini image model.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds a Gemini API client. baseURL may be empty.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("imaging: creating genai client: %w", err)
	}
	return client, nil
}

func NewGeminiBackend(client *genai.Client, model string) *GeminiBackend {
	return &GeminiBackend{client: client, model: model}
}

func (b *GeminiBackend) GenerateImage(ctx context.Context, system, prompt string) (*ImageResponse, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
	}
	cfg.SystemInstruction = systemInstruction(system)
	res, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("imaging: generating image with %s: %w", b.model, err)
	}
	return responseFromGenAI(res), nil
}

func systemInstruction(system string) *genai.Content {
	if system == "" {
		return nil
	}
	return genai.NewContentFromText(system, genai.RoleUser)
}

// responseFromGenAI turns inline blobs into data URI items so every backend
// goes through the same extraction path.
func responseFromGenAI(res *genai.GenerateContentResponse) *ImageResponse {
	out := &ImageResponse{}
	if res == nil {
		return out
	}
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				out.Items = append(out.Items, ContentItem{Type: "text", Text: part.Text})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out.Items = append(out.Items, ContentItem{
					Type:     "image_url",
					ImageURL: &ImageURL{URL: DataURL(part.InlineData.MIMEType, part.InlineData.Data)},
				})
			}
		}
	}
	return out
}
