package stt

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

// DeepgramClient transcribes a complete mu-law utterance via Deepgram's
// prerecorded REST endpoint. Best effort: failures surface as errors, callers
// treat an empty transcript as "no speech".
type DeepgramClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends raw 8kHz mu-law audio and returns the transcript text.
func (c *DeepgramClient) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("deepgram api key missing")
	}
	endpoint := fmt.Sprintf("https://api.deepgram.com/v1/listen?model=%s&encoding=mulaw&sample_rate=8000", c.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(mulaw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "audio/mulaw")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram listen: status=%d body=%s", resp.StatusCode, string(b))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lr.Results.Channels[0].Alternatives[0].Transcript), nil
}
