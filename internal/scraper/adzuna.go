package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per query
)

// AdzunaFetcher fetches job offers from the Adzuna public API.
// If AppID or AppKey is empty, Fetch returns (nil, nil) and logs a warning.
type AdzunaFetcher struct {
	AppID   string
	AppKey  string
	Country string // "fr", "gb", "us", …
	BaseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewAdzunaFetcher constructs a fetcher with its own HTTP client.
func NewAdzunaFetcher(appID, appKey, country string, log *zap.Logger) *AdzunaFetcher {
	return &AdzunaFetcher{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		BaseURL: adzunaBaseURL,
		client:  newHTTPClient(),
		log:     log.Named("adzuna"),
	}
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Source implements Adapter.
func (f *AdzunaFetcher) Source() model.Source { return model.SourceAdzuna }

// Fetch retrieves offers for q, iterating through pages until no more
// results, q.MaxResults or adzunaMaxPages is reached. Results fetched before
// a failing page are returned with the error.
func (f *AdzunaFetcher) Fetch(ctx context.Context, q model.Query) ([]model.RawPosting, error) {
	if f.AppID == "" || f.AppKey == "" {
		f.log.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping")
		return nil, nil
	}

	var results []model.RawPosting
	for page := 1; page <= adzunaMaxPages; page++ {
		batch, err := f.fetchPage(ctx, q, page)
		if err != nil {
			return results, err
		}
		results = append(results, batch...)
		if q.MaxResults > 0 && len(results) >= q.MaxResults {
			return results[:q.MaxResults], nil
		}
		if len(batch) < adzunaPageSize {
			break // last page
		}
	}
	return results, nil
}

func (f *AdzunaFetcher) fetchPage(ctx context.Context, q model.Query, page int) ([]model.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(f.BaseURL, "/"), f.Country, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Keywords)
	if q.Location != "" {
		params.Set("where", q.Location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	body, err := get(ctx, f.client, model.SourceAdzuna, endpoint+"?"+params.Encode(),
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		f.log.Warn("malformed response", zap.Int("page", page), zap.String("sample", sample(body)))
		return nil, permanent(model.SourceAdzuna, 0, fmt.Errorf("page %d: json unmarshal: %w", page, err))
	}

	results := make([]model.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		results = append(results, model.RawPosting{
			Source:       model.SourceAdzuna,
			ExternalID:   r.ID,
			Title:        r.Title,
			Company:      r.Company.DisplayName,
			Location:     r.Location.DisplayName,
			Description:  r.Description,
			SalaryMin:    r.SalaryMin,
			SalaryMax:    r.SalaryMax,
			SourceURL:    r.RedirectURL,
			ContractType: strings.TrimSpace(r.ContractType + " " + r.ContractTime),
			PublishedAt:  r.Created,
		})
	}
	return results, nil
}

// Normalize implements Adapter. Adzuna redirect URLs carry per-search
// query parameters, so only scheme, host and path identify the offer.
// Adzuna salaries are quoted in the country's currency.
func (f *AdzunaFetcher) Normalize(raw model.RawPosting, now time.Time) model.Posting {
	p := Normalize(raw, now)
	if u, err := url.Parse(p.CanonicalURL); err == nil && u.Host != "" {
		u.RawQuery = ""
		p.CanonicalURL = u.String()
	}
	if !p.Salary.IsZero() && p.Salary.Currency == "" {
		p.Salary.Currency = adzunaCurrency(f.Country)
	}
	return p
}

func adzunaCurrency(country string) string {
	switch strings.ToLower(country) {
	case "gb":
		return "GBP"
	case "us":
		return "USD"
	case "ca":
		return "CAD"
	case "au":
		return "AUD"
	case "in":
		return "INR"
	case "pl":
		return "PLN"
	case "br":
		return "BRL"
	case "ch":
		return "CHF"
	default:
		return "EUR"
	}
}
