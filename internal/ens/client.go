// Package ens implements the client for the external name-record update
// server: a small JSON POST that binds a name-service label to the content
// identifier of the latest published snapshot.
package ens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// UpdateRequest is the payload the update server expects.
type UpdateRequest struct {
	Label  string `json:"label"`
	Repo   string `json:"repo"`
	BlobID string `json:"blob_id"`
}

// Client talks to one record-update endpoint. Success or failure is decided
// purely by HTTP status; there are no retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient builds a record-update client for the given server origin.
func NewClient(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Update points the text record for label at blobID. repo names the source
// repository for the server's bookkeeping.
func (c *Client) Update(ctx context.Context, label, repo, blobID string) error {
	payload, err := json.Marshal(UpdateRequest{Label: label, Repo: repo, BlobID: blobID})
	if err != nil {
		return fmt.Errorf("ens: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ens: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Info("updating name record",
		zap.String("label", label),
		zap.String("blob_id", blobID))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ens: update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("ens: update server returned %d: %s", resp.StatusCode, string(body))
	}
	c.log.Info("name record updated", zap.String("label", label))
	return nil
}
