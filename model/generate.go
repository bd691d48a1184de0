package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Generator produces the answer text for an assembled prompt. Retry policy,
// if any, belongs to the concrete provider, not to the callers.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// OllamaGenerator calls the Ollama generate endpoint.
type OllamaGenerator struct {
	apiURL string
	model  string
	client *http.Client
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewGeneratorFromEnv reads LLM_URL and LLM_MODEL, matching the loader and
// server env files.
func NewGeneratorFromEnv() *OllamaGenerator {
	return NewOllamaGenerator(os.Getenv("LLM_URL"), os.Getenv("LLM_MODEL"))
}

func NewOllamaGenerator(apiURL, model string) *OllamaGenerator {
	if apiURL == "" {
		apiURL = "http://localhost:11434/api/generate"
	}
	return &OllamaGenerator{
		apiURL: apiURL,
		model:  model,
		// No client timeout here: the per-request deadline comes in on ctx.
		client: &http.Client{},
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(GenerateRequest{
		Model:  g.model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Ollama may answer with a single object or a stream of JSON lines;
	// collect whichever arrives.
	var output strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk GenerateResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("failed to parse response chunk: %w", err)
		}
		output.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading response stream: %w", err)
	}

	return output.String(), nil
}
