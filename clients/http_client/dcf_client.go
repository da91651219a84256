package http_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"stockscore/types"
	"stockscore/utils/helpers"
)

// DCFClient reads discounted-cash-flow values from FinancialModelingPrep.
type DCFClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewDCFClient(baseURL, apiKey string, client *http.Client) *DCFClient {
	return &DCFClient{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTP: client}
}

// dcf arrives as a number on most plans and as a quoted string on some.
type dcfEntry struct {
	Symbol     string      `json:"symbol"`
	Date       string      `json:"date"`
	DCF        interface{} `json:"dcf"`
	StockPrice interface{} `json:"Stock Price"`
}

// DCF returns the first entry's dcf. A missing or zero value is ErrNotFound.
func (c *DCFClient) DCF(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("apikey", c.APIKey)

	var entries []dcfEntry
	if err := getJSON(ctx, c.HTTP, c.BaseURL+"/stable/discounted-cash-flow?"+params.Encode(), &entries); err != nil {
		return 0, fmt.Errorf("dcf %s: %w", symbol, err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("dcf %s: %w", symbol, types.ErrNotFound)
	}
	value, ok := helpers.ToFloat(entries[0].DCF)
	if !ok || value == 0 {
		return 0, fmt.Errorf("dcf %s: %w", symbol, types.ErrNotFound)
	}
	return value, nil
}
