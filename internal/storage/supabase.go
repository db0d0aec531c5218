// Package storage archives finished call transcripts to Supabase Storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/call"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// TranscriptArchive uploads one JSON document per finished call.
type TranscriptArchive struct {
	client *supabase.Client
	bucket string
}

func NewTranscriptArchive(config Config) (*TranscriptArchive, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &TranscriptArchive{client: client, bucket: config.Bucket}, nil
}

type transcriptDocument struct {
	CallSid    string      `json:"call_sid"`
	ArchivedAt string      `json:"archived_at"`
	Turns      []call.Turn `json:"turns"`
}

// Archive uploads the transcript under transcripts/<callSid>-<timestamp>.json.
func (a *TranscriptArchive) Archive(_ context.Context, callSid string, turns []call.Turn) error {
	if callSid == "" {
		callSid = "unknown"
	}
	doc, err := json.MarshalIndent(transcriptDocument{
		CallSid:    callSid,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339),
		Turns:      turns,
	}, "", "  ")
	if err != nil {
		return err
	}

	key := fmt.Sprintf("transcripts/%s-%d.json", callSid, time.Now().Unix())
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(doc)); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}
