// Package walrus implements the client for the Walrus publisher HTTP API.
// The publisher stores a blob and answers with a JSON body whose shape has
// changed across releases, so the blob identifier is probed through an
// ordered list of known response shapes.
package walrus

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

// Client talks to one Walrus publisher endpoint. No retries: a publish
// failure is fatal to the run that requested it.
type Client struct {
	baseURL string
	epochs  int
	token   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient builds a publisher client. baseURL is the publisher origin
// (e.g. "https://publisher.walrus-testnet.walrus.space"); epochs is the
// storage duration requested for the blob.
func NewClient(baseURL, token string, epochs int, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		epochs:  epochs,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Store uploads the serialized snapshot document and returns the blob ID
// the publisher assigned (or the ID of the already-certified blob when the
// content was stored before).
func (c *Client) Store(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", c.baseURL, c.epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("walrus: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Info("uploading snapshot blob",
		zap.String("publisher", c.baseURL),
		zap.Int("epochs", c.epochs),
		zap.Int("bytes", len(body)))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("walrus: upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("walrus: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("walrus: publisher returned %d: %s", resp.StatusCode, snippet(respBody))
	}

	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("walrus: decode response: %w", err)
	}

	blobID, err := ExtractBlobID(decoded)
	if err != nil {
		return "", err
	}
	c.log.Info("blob stored", zap.String("blob_id", blobID))
	return blobID, nil
}

// extractor is one known location of the blob ID in a publisher response.
type extractor struct {
	name  string
	probe func(map[string]any) (string, bool)
}

// blobIDExtractors is ordered: newer response shapes first, the bare
// top-level field last. The first hit wins.
var blobIDExtractors = []extractor{
	{
		name: "newlyCreated.blobObject.blobId",
		probe: func(m map[string]any) (string, bool) {
			return dig(m, "newlyCreated", "blobObject", "blobId")
		},
	},
	{
		name: "alreadyCertified.blobId",
		probe: func(m map[string]any) (string, bool) {
			return dig(m, "alreadyCertified", "blobId")
		},
	},
	{
		name: "blobId",
		probe: func(m map[string]any) (string, bool) {
			return dig(m, "blobId")
		},
	},
}

// ExtractBlobID probes the decoded publisher response through every known
// shape in order. Absence in all shapes is an error; the caller treats it
// as fatal.
func ExtractBlobID(resp map[string]any) (string, error) {
	for _, ex := range blobIDExtractors {
		if id, ok := ex.probe(resp); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("walrus: no blob ID in response (tried %d known shapes)", len(blobIDExtractors))
}

// dig walks nested JSON objects and returns the final key as a non-empty
// string.
func dig(m map[string]any, keys ...string) (string, bool) {
	cur := any(m)
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = obj[k]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func snippet(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
