package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Image is one ordered page image handed to the collaborator.
type Image struct {
	Data []byte
	MIME string
}

// Client is the reasoning collaborator contract. Output is raw text and must
// be treated as untrusted; callers parse defensively and schema-validate.
type Client interface {
	// Understand sends ordered page images plus stage instructions and
	// returns the collaborator's raw response text.
	Understand(ctx context.Context, images []Image, instructions string, tier ModelTier) (string, error)
	// Close releases any resources held by the client.
	Close() error
}

// NewClient creates a client for the configured provider.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, config: config}, nil
}

// Understand sends the page images and instructions in one call, requesting
// a JSON response at low temperature for reproducibility.
func (c *GeminiClient) Understand(ctx context.Context, images []Image, instructions string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	parts := make([]genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIME), img.Data))
	}
	parts = append(parts, genai.Text(instructions))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", &CollaboratorError{Message: "generation failed", Cause: err, Retryable: true}
	}
	return extractTextFromResponse(resp)
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// imageFormat converts a MIME type to the bare format Gemini expects.
func imageFormat(mime string) string {
	if idx := strings.Index(mime, "/"); idx >= 0 {
		return mime[idx+1:]
	}
	if mime == "" {
		return "png"
	}
	return mime
}

// extractTextFromResponse pulls the text parts out of a Gemini response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", &CollaboratorError{Message: "no candidates in response", Retryable: true}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &CollaboratorError{Message: "no content in response", Retryable: true}
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", &CollaboratorError{Message: "no text parts in response", Retryable: true}
	}
	return strings.Join(parts, ""), nil
}
