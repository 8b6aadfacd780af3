package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Ollama talks to a local Ollama server for both completions and embeddings.
//
// Recommended vision models for receipt scanning (in order of recommendation):
//   - llama3.2-vision (good OCR of dense receipts)
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//
// Note: some models may struggle with PDFs - PDFs are converted to PNG first
type Ollama struct {
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
}

// NewOllama creates a new Ollama client. The embed model defaults to the
// completion model when empty, matching how a single multimodal model can
// serve both endpoints.
func NewOllama(baseURL, model, embedModel string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2-vision"
	}
	if embedModel == "" {
		embedModel = model
	}
	if timeout <= 0 {
		timeout = 120 * time.Second // vision models can be slow
	}

	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// ollamaGenerateRequest is the request body for Ollama's generate API
type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Complete sends a single-shot generate request. Streaming is always disabled
// so the whole completion arrives in one response body.
func (o *Ollama) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}
	if image != nil {
		reqBody.Images = []string{base64.StdEncoding.EncodeToString(image)}
	}

	var genResp ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", reqBody, &genResp); err != nil {
		return "", err
	}

	return genResp.Response, nil
}

// Embed returns the embedding vector for the given text
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbeddingRequest{
		Model:  o.embedModel,
		Prompt: text,
	}

	var embResp ollamaEmbeddingResponse
	if err := o.post(ctx, "/api/embeddings", reqBody, &embResp); err != nil {
		return nil, err
	}

	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", o.embedModel)
	}

	return embResp.Embedding, nil
}

func (o *Ollama) post(ctx context.Context, path string, reqBody, respBody any) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return fmt.Errorf("calling %s: %w", path, ErrTimeout)
		}
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// Model identifies the completion model
func (o *Ollama) Model() string {
	return o.model
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
