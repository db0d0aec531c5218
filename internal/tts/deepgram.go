package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DeepgramClient synthesizes speech via Deepgram's speak REST endpoint,
// returning audio in the call's telephony codec (8kHz mu-law) so it can be
// streamed back to the transport without transcoding.
type DeepgramClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "aura-asteria-en"
	}
	return &DeepgramClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Synthesize converts text to mu-law audio bytes. A failure surfaces as an
// error with no audio; the caller must resume listening rather than hang.
func (c *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("deepgram api key missing")
	}
	if text == "" {
		return nil, nil
	}
	endpoint := fmt.Sprintf("https://api.deepgram.com/v1/speak?model=%s&encoding=mulaw&sample_rate=8000", c.Model)

	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram speak: status=%d body=%s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
