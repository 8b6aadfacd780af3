package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Completer and Embedder using Google Gemini
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	modelName  string
	embedModel *genai.EmbeddingModel
}

// NewGemini creates a new Gemini client
func NewGemini(apiKey, modelName, embedModelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if embedModelName == "" {
		embedModelName = "embedding-001"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		modelName:  modelName,
		embedModel: client.EmbeddingModel(embedModelName),
	}, nil
}

// Complete sends the prompt (and image, if any) and returns the response text
func (g *Gemini) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	// genai.ImageData expects just the format suffix (e.g. "png"), not the
	// full MIME type. Images are always PNG by the time they reach a backend.
	parts := []genai.Part{}
	if image != nil {
		parts = append(parts, genai.ImageData("png", image))
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}

// Embed returns the embedding vector for the given text
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.embedModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}
	return resp.Embedding.Values, nil
}

// Model identifies the completion model
func (g *Gemini) Model() string {
	return g.modelName
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
