package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiExtractor extracts text through the Gemini API
type GeminiExtractor struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini API client authenticated with apiKey
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiExtractor wraps an existing Gemini client
func NewGeminiExtractor(client *genai.Client, model string, logger *slog.Logger) *GeminiExtractor {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiExtractor{client: client, model: model, logger: logger}
}

// ExtractText sends the document inline together with ExtractionPrompt
func (e *GeminiExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	model := e.client.GenerativeModel(e.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: documentMimeType(mimeType), Data: data},
		genai.Text(ExtractionPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return e.responseText(resp)
}

func (e *GeminiExtractor) responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrNoText
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			e.logger.Warn("gemini candidate finished early", "candidate", i, "finish_reason", candidate.FinishReason.String())
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", ErrNoText
	}
	return text.String(), nil
}

// Close releases the underlying Gemini client
func (e *GeminiExtractor) Close() error {
	return e.client.Close()
}
