package knowledge

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

// ChromaClient queries a Chroma vector store over HTTP for triage protocol
// passages. Ingestion is handled out of process; this client only reads.
type ChromaClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Collection string
}

func NewChromaClient(baseURL, collection string) *ChromaClient {
	if collection == "" {
		collection = "decision_rules"
	}
	return &ChromaClient{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Collection: collection,
	}
}

type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
}

type queryResponse struct {
	Documents [][]string `json:"documents"`
}

// Query returns up to k passages relevant to text, most relevant first. An
// empty list is a valid, non-error result.
func (c *ChromaClient) Query(ctx context.Context, text string, k int) ([]string, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("chroma base url missing")
	}
	endpoint := fmt.Sprintf("%s/api/v1/collections/%s/query", c.BaseURL, c.Collection)

	body, _ := json.Marshal(queryRequest{QueryTexts: []string{text}, NResults: k})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chroma query: status=%d body=%s", resp.StatusCode, string(b))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, err
	}
	if len(qr.Documents) == 0 {
		return nil, nil
	}
	return qr.Documents[0], nil
}
