package http_client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"stockscore/types"
)

// SentimentClient calls the entity sentiment service.
type SentimentClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewSentimentClient(baseURL string, client *http.Client) *SentimentClient {
	return &SentimentClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

type sentimentRequest struct {
	Text         string `json:"text"`
	EntityFilter string `json:"entity_filter,omitempty"`
}

func (c *SentimentClient) Analyze(ctx context.Context, text, entity string) ([]types.SentimentResult, error) {
	var rows []types.SentimentResult
	if err := postJSON(ctx, c.HTTP, c.BaseURL+"/analyze", sentimentRequest{Text: text, EntityFilter: entity}, &rows); err != nil {
		return nil, fmt.Errorf("sentiment %q: %w", entity, err)
	}
	return rows, nil
}
