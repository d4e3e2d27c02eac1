package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// Client is a read-only handle over one Qdrant collection. It is created at
// startup and shared across requests; collection maintenance belongs to the
// external indexing pipeline.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// RetrieveDense returns the top-k passages by the collection's similarity
// metric. An absent embedding is the expected degraded path and yields an
// empty result without touching the index.
func (c *Client) RetrieveDense(ctx context.Context, query domain.Query, k int) ([]domain.PassageRef, error) {
	if query.DenseDisabled || len(query.Embedding) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector":       query.Embedding,
		"limit":        k,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return nil, fmt.Errorf("qdrant search status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.PassageRef, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		ref := domain.PassageRef{
			ID:          stringPayload(r.Payload, "passage_id"),
			DocumentID:  stringPayload(r.Payload, "doc_id"),
			Text:        stringPayload(r.Payload, "text"),
			StartOffset: intPayload(r.Payload, "start_offset"),
			EndOffset:   intPayload(r.Payload, "end_offset"),
			Score:       r.Score,
		}
		if ref.ID == "" {
			continue
		}
		out = append(out, ref)
	}

	// Equal-score neighbours come back in storage order; break ties by
	// passage id so identical queries produce identical rankings.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
