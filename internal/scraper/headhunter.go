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

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/model"
)

const (
	hhBaseURL  = "https://api.hh.ru"
	hhPerPage  = 100
	hhMaxPages = 5
)

// HeadhunterFetcher searches vacancies through the public hh.ru API.
type HeadhunterFetcher struct {
	BaseURL   string
	UserAgent string // sent as HH-User-Agent, required by the API
	Area      string
	client    *http.Client
	log       *zap.Logger
}

// NewHeadhunterFetcher constructs a fetcher searching the given area id.
func NewHeadhunterFetcher(userAgent, area string, log *zap.Logger) *HeadhunterFetcher {
	return &HeadhunterFetcher{
		BaseURL:   hhBaseURL,
		UserAgent: userAgent,
		Area:      area,
		client:    newHTTPClient(),
		log:       log.Named("headhunter"),
	}
}

type hhPage struct {
	Items   []interface{} `json:"items"`
	Found   int           `json:"found"`
	Pages   int           `json:"pages"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

type hhVacancy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Area struct {
		Name string `json:"name"`
	} `json:"area"`
	Salary *struct {
		From     float64 `json:"from"`
		To       float64 `json:"to"`
		Currency string  `json:"currency"`
	} `json:"salary"`
	Experience struct {
		ID string `json:"id"`
	} `json:"experience"`
	Schedule struct {
		ID string `json:"id"`
	} `json:"schedule"`
	Employment struct {
		ID string `json:"id"`
	} `json:"employment"`
	Employer struct {
		Name string `json:"name"`
	} `json:"employer"`
	AlternateURL string `json:"alternate_url"`
	PublishedAt  string `json:"published_at"`
	Archived     bool   `json:"archived"`
	Snippet      struct {
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	} `json:"snippet"`
	KeySkills []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
}

// Source implements Adapter.
func (f *HeadhunterFetcher) Source() model.Source { return model.SourceHeadhunter }

// Fetch walks the result pages until the API reports the last one,
// q.MaxResults is reached or hhMaxPages pages were read.
func (f *HeadhunterFetcher) Fetch(ctx context.Context, q model.Query) ([]model.RawPosting, error) {
	var results []model.RawPosting
	for page := 0; page < hhMaxPages; page++ {
		resp, err := f.fetchPage(ctx, q, page)
		if err != nil {
			return results, err
		}

		var vacancies []hhVacancy
		cfg := &mapstructure.DecoderConfig{
			Result:           &vacancies,
			TagName:          "json",
			WeaklyTypedInput: true,
		}
		decoder, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return results, permanent(model.SourceHeadhunter, 0, err)
		}
		if err := decoder.Decode(resp.Items); err != nil {
			return results, permanent(model.SourceHeadhunter, 0, fmt.Errorf("page %d: decode items: %w", page, err))
		}

		for _, v := range vacancies {
			if v.Archived {
				continue
			}
			results = append(results, v.raw())
		}
		f.log.Debug("got page", zap.Int("page", page), zap.Int("pages", resp.Pages), zap.Int("items", len(vacancies)))

		if q.MaxResults > 0 && len(results) >= q.MaxResults {
			return results[:q.MaxResults], nil
		}
		if resp.Page >= resp.Pages-1 {
			break
		}
	}
	return results, nil
}

func (f *HeadhunterFetcher) fetchPage(ctx context.Context, q model.Query, page int) (*hhPage, error) {
	params := url.Values{}
	params.Set("text", strings.TrimSpace(q.Keywords+" "+q.Location))
	if f.Area != "" {
		params.Set("area", f.Area)
	}
	params.Set("per_page", strconv.Itoa(hhPerPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("order_by", "publication_time")

	headers := map[string]string{"Accept": "application/json"}
	if f.UserAgent != "" {
		headers["HH-User-Agent"] = f.UserAgent
	}
	body, err := get(ctx, f.client, model.SourceHeadhunter,
		strings.TrimRight(f.BaseURL, "/")+"/vacancies?"+params.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var resp hhPage
	if err := json.Unmarshal(body, &resp); err != nil {
		f.log.Warn("malformed response", zap.Int("page", page), zap.String("sample", sample(body)))
		return nil, permanent(model.SourceHeadhunter, 0, fmt.Errorf("page %d: json unmarshal: %w", page, err))
	}
	return &resp, nil
}

func (v hhVacancy) raw() model.RawPosting {
	r := model.RawPosting{
		Source:       model.SourceHeadhunter,
		ExternalID:   v.ID,
		Title:        v.Name,
		Company:      v.Employer.Name,
		Location:     v.Area.Name,
		Description:  strings.TrimSpace(v.Snippet.Responsibility + "\n" + v.Snippet.Requirement),
		SourceURL:    v.AlternateURL,
		ContractType: hhEmployment[v.Employment.ID],
		Schedule:     hhSchedule[v.Schedule.ID],
		Experience:   v.Experience.ID,
		PublishedAt:  v.PublishedAt,
		Extra: map[string]interface{}{
			"requirement":    v.Snippet.Requirement,
			"responsibility": v.Snippet.Responsibility,
		},
	}
	if v.Salary != nil {
		r.SalaryMin = v.Salary.From
		r.SalaryMax = v.Salary.To
		r.Currency = v.Salary.Currency
	}
	for _, s := range v.KeySkills {
		r.Skills = append(r.Skills, s.Name)
	}
	return r
}

var hhEmployment = map[string]string{
	"full":      "full time",
	"part":      "part time",
	"project":   "contract",
	"probation": "internship",
	"volunteer": "temporary",
}

var hhSchedule = map[string]string{
	"remote":      "remote",
	"flexible":    "hybrid",
	"fullDay":     "on-site",
	"shift":       "on-site",
	"flyInFlyOut": "on-site",
}

// Normalize implements Adapter. Search results carry only a snippet, so its
// requirement and responsibility parts become the posting's sections.
func (f *HeadhunterFetcher) Normalize(raw model.RawPosting, now time.Time) model.Posting {
	p := Normalize(raw, now)
	if s, _ := raw.Extra["requirement"].(string); s != "" && len(p.Requirements) == 0 {
		p.Requirements = snippetItems(s)
	}
	if s, _ := raw.Extra["responsibility"].(string); s != "" && len(p.Responsibilities) == 0 {
		p.Responsibilities = snippetItems(s)
	}
	if p.Salary.Currency == "RUR" {
		p.Salary.Currency = "RUB"
	}
	return p
}

// snippetItems splits a snippet into sentences. hh.ru wraps matched terms
// in <highlighttext> tags.
func snippetItems(s string) []string {
	text := HTMLToText(s)
	var out []string
	for _, part := range strings.Split(text, ". ") {
		part = strings.TrimSuffix(collapseSpace(part), ".")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
