/**
 * @description
 * This package adapts the Gemini generateContent API to the budget engine's
 * single-shot text generator. It sends one user prompt and returns the text of
 * the first candidate.
 *
 * @dependencies
 * - google.golang.org/genai: Official Go SDK for the Gemini API.
 *
 * @notes
 * - The API key travels in a request header, so transport errors never carry it.
 */
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-1.5-flash"

	requestTimeout = 10 * time.Second
	temperature    = 0.2
)

// ErrEmptyResponse is returned when the model produced no text candidate.
var ErrEmptyResponse = errors.New("gemini returned no candidate text")

// Client is a client for the Gemini API.
type Client struct {
	models *genai.Models
	model  string
}

// NewClient creates a new Gemini client. Empty baseURL or model fall back to the
// defaults. A baseURL ending in an API version such as /v1beta selects that version.
func NewClient(ctx context.Context, baseURL, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	base, version := splitAPIVersion(baseURL)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    base,
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{models: client.Models, model: model}, nil
}

func splitAPIVersion(baseURL string) (string, string) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return DefaultBaseURL, DefaultAPIVersion
	}
	for _, version := range []string{"v1beta", "v1alpha", "v1"} {
		if strings.HasSuffix(base, "/"+version) {
			return strings.TrimSuffix(base, version), version
		}
	}
	return base + "/", DefaultAPIVersion
}

// GenerateText sends prompt to the configured model and returns the reply text.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](temperature),
	})
	if err != nil {
		log.Printf("level=warn component=gemini_client model=%s msg=\"generate content failed\" err=%v", c.model, err)
		return "", fmt.Errorf("gemini request to model %s failed: %w", c.model, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
