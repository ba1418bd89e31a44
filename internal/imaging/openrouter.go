package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Images  []ContentItem   `json:"images,omitempty"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenRouterBackend calls an image model through OpenRouter's
// OpenAI-compatible chat completions endpoint.
type OpenRouterBackend struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type OpenRouterOption func(*OpenRouterBackend)

func WithBaseURL(url string) OpenRouterOption {
	return func(b *OpenRouterBackend) {
		if url != "" {
			b.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(c *http.Client) OpenRouterOption {
	return func(b *OpenRouterBackend) {
		if c != nil {
			b.httpClient = c
		}
	}
}

func NewOpenRouterBackend(apiKey, model string, opts ...OpenRouterOption) *OpenRouterBackend {
	b := &OpenRouterBackend{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openRouterBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func textContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func (b *OpenRouterBackend) GenerateImage(ctx context.Context, system, prompt string) (*ImageResponse, error) {
	body := chatRequest{
		Model:      b.model,
		Modalities: []string{"image", "text"},
	}
	if system != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: textContent(system)})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: textContent(prompt)})

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imaging: openrouter request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("imaging: openrouter error %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("imaging: decoding openrouter response: %w", err)
	}
	out := &ImageResponse{}
	if len(cr.Choices) == 0 {
		return out, nil
	}
	msg := cr.Choices[0].Message
	var text string
	if len(msg.Content) > 0 && json.Unmarshal(msg.Content, &text) == nil && text != "" {
		out.Items = append(out.Items, ContentItem{Type: "text", Text: text})
	}
	out.Items = append(out.Items, msg.Images...)
	return out, nil
}
