package http_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockscore/types"
)

// NewsClient searches NewsAPI for recent articles about a company.
type NewsClient struct {
	BaseURL      string
	APIKey       string
	LookbackDays int
	HTTP         *http.Client

	now func() time.Time
}

func NewNewsClient(baseURL, apiKey string, lookbackDays int, client *http.Client) *NewsClient {
	return &NewsClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		LookbackDays: lookbackDays,
		HTTP:         client,
		now:          time.Now,
	}
}

type newsResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// News returns articles sorted most recent first.
func (c *NewsClient) News(ctx context.Context, company string) ([]types.NewsArticle, error) {
	params := url.Values{}
	params.Add("q", company)
	params.Add("sortBy", "publishedAt")
	params.Add("apiKey", c.APIKey)
	if c.LookbackDays > 0 {
		now := time.Now
		if c.now != nil {
			now = c.now
		}
		params.Add("from", now().AddDate(0, 0, -c.LookbackDays).Format("2006-01-02"))
	}

	var resp newsResponse
	if err := getJSON(ctx, c.HTTP, c.BaseURL+"/v2/everything?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("news %q: %w", company, err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("news %q: %s: %w", company, resp.Message, types.ErrUnavailable)
	}

	articles := make([]types.NewsArticle, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, types.NewsArticle{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
			Source:      a.Source.Name,
		})
	}
	return articles, nil
}
