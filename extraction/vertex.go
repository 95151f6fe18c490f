package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexExtractor extracts text through Gemini models hosted on Vertex AI
type VertexExtractor struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewVertexExtractor creates a Vertex AI client for projectID in region
func NewVertexExtractor(ctx context.Context, projectID, region, model string, logger *slog.Logger) (*VertexExtractor, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexExtractor: projectID and region cannot be empty")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexExtractor{client: client, model: model, logger: logger}, nil
}

// ExtractText sends the document inline together with ExtractionPrompt
func (e *VertexExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	model := e.client.GenerativeModel(e.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: documentMimeType(mimeType), Data: data},
		genai.Text(ExtractionPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}
	return e.responseText(resp)
}

func (e *VertexExtractor) responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrNoText
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("vertex blocked prompt: %s %s", resp.PromptFeedback.BlockReason, resp.PromptFeedback.BlockReasonMessage)
	}

	var text strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			e.logger.Warn("vertex candidate finished early", "candidate", i, "finish_reason", candidate.FinishReason.String())
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

// Close releases the underlying client
func (e *VertexExtractor) Close() error {
	return e.client.Close()
}
