package http_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"stockscore/types"
)

// QuoteClient reads quotes from the Yahoo Finance v7 quote endpoint.
type QuoteClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewQuoteClient(baseURL string, client *http.Client) *QuoteClient {
	return &QuoteClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []types.CompanyMetrics `json:"result"`
	} `json:"quoteResponse"`
}

func (c *QuoteClient) Quote(ctx context.Context, symbol string) (types.CompanyMetrics, error) {
	params := url.Values{}
	params.Add("symbols", symbol)

	var resp quoteResponse
	if err := getJSON(ctx, c.HTTP, c.BaseURL+"/v7/finance/quote?"+params.Encode(), &resp); err != nil {
		return types.CompanyMetrics{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	for _, q := range resp.QuoteResponse.Result {
		if strings.EqualFold(q.Symbol, symbol) {
			return q, nil
		}
	}
	return types.CompanyMetrics{}, fmt.Errorf("quote %s: %w", symbol, types.ErrNotFound)
}
