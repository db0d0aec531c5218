package llm

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

// GroqClient calls Groq's OpenAI-compatible chat completions API.
// It is stateless per request and safe for concurrent use.
type GroqClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewGroqClient(apiKey, model string) *GroqClient {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqClient{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Complete sends a single-turn prompt and returns the reply text.
func (c *GroqClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, nil)
}

// CompleteJSON requests a strict JSON object reply. Callers must still parse
// defensively; models occasionally wrap the object in fences or prose.
func (c *GroqClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, &responseFormat{Type: "json_object"})
}

func (c *GroqClient) complete(ctx context.Context, prompt string, format *responseFormat) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("groq api key missing")
	}
	endpoint := "https://api.groq.com/openai/v1/chat/completions"

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:          c.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0,
		ResponseFormat: format,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("groq error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
