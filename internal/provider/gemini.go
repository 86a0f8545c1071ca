package provider

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/loomhq/loom/internal/vector"
)

// DefaultEmbeddingModel truncates to vector.Dimension via
// OutputDimensionality (Matryoshka representation).
const DefaultEmbeddingModel = "gemini-embedding-001"

// Gemini is the Google AI provider. It also carries the embedding
// capability used by the loader and the retrieval engine.
type Gemini struct {
	client         *genai.Client
	embeddingModel string
	logger         *slog.Logger
}

// NewGemini creates the Gemini provider. The client is constructed once and
// shared for the process lifetime.
func NewGemini(ctx context.Context, apiKey string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:         client,
		embeddingModel: DefaultEmbeddingModel,
		logger:         logger,
	}, nil
}

// Name returns the provider identifier used in routing and metrics keys.
func (*Gemini) Name() string { return "googleai" }

// Invoke executes one chat completion.
func (g *Gemini) Invoke(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out := &Completion{Content: resp.Text(), Provider: g.Name(), Model: opts.Model}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// Embed returns a vector.Dimension-length embedding for text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(vector.Dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
