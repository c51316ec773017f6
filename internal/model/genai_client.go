package model

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/bobmcallan/docworker/internal/common"
)

const (
	// DefaultModel matches the teacher's internal/clients/gemini default.
	DefaultModel = "gemini-3-flash-preview"
)

// GenaiClient implements Client against google.golang.org/genai, following
// the teacher's internal/clients/gemini.Client: functional options,
// genai.BackendGeminiAPI, extractTextFromResponse. Extended here for
// multimodal (image/audio) input, which the teacher's text-only client
// never exercised.
type GenaiClient struct {
	client *genai.Client
	model  string
	logger *common.Logger
}

// Option configures a GenaiClient.
type Option func(*GenaiClient)

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(c *GenaiClient) { c.model = model }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) Option {
	return func(c *GenaiClient) { c.logger = logger }
}

// NewGenaiClient creates a genai-backed Client.
func NewGenaiClient(ctx context.Context, apiKey string, opts ...Option) (*GenaiClient, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("model: create genai client: %w", err)
	}
	c := &GenaiClient{
		client: gc,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ Client = (*GenaiClient)(nil)

func (c *GenaiClient) infer(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	part := genai.NewPartFromBytes(data, mimeType)
	textPart := genai.NewPartFromText(prompt)
	content := genai.NewContentFromParts([]*genai.Part{textPart, part}, genai.RoleUser)

	result, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("model: generate content: %w", err)
	}
	return extractText(result)
}

// OCRPage infers text from a single rasterized page image.
func (c *GenaiClient) OCRPage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	c.logger.Debug().Str("model", c.model).Int("bytes", len(image)).Msg("OCR page inference")
	return c.infer(ctx, image, mimeType, prompt)
}

// TranscribeChunk infers text from a single audio chunk.
func (c *GenaiClient) TranscribeChunk(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	c.logger.Debug().Str("model", c.model).Int("bytes", len(audio)).Msg("transcription chunk inference")
	return c.infer(ctx, audio, mimeType, prompt)
}

func (c *GenaiClient) Close() error { return nil }

func extractText(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	return text, nil
}
