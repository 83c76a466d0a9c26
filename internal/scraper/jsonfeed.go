package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/config"
	"jobmate/discovery-service/internal/model"
)

// Field names a JSON feed may map. Unknown names are rejected.
var feedFields = map[string]bool{
	"id": true, "title": true, "company": true, "location": true,
	"description": true, "url": true, "salary": true, "salary_min": true,
	"salary_max": true, "currency": true, "contract": true, "schedule": true,
	"experience": true, "skills": true, "posted": true,
}

// JSONFeed reads a JSON job API and maps each item with JMESPath
// expressions.
type JSONFeed struct {
	cfg    config.JSONFeed
	source model.Source
	client *http.Client
	log    *zap.Logger
}

// NewJSONFeed validates every expression of the feed entry and constructs
// its adapter.
func NewJSONFeed(cfg config.JSONFeed, log *zap.Logger) (*JSONFeed, error) {
	if _, err := jmespath.Compile(cfg.Items); err != nil {
		return nil, fmt.Errorf("json feed %q: items: %w", cfg.Name, err)
	}
	for name, expr := range cfg.Fields {
		if !feedFields[name] {
			return nil, fmt.Errorf("json feed %q: unknown field %q", cfg.Name, name)
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("json feed %q: field %s: %w", cfg.Name, name, err)
		}
	}
	src := CatalogSource(model.SourceJSONFeed, cfg.Name)
	return &JSONFeed{
		cfg:    cfg,
		source: src,
		client: newHTTPClient(),
		log:    log.Named(string(src)),
	}, nil
}

// Source implements Adapter.
func (f *JSONFeed) Source() model.Source { return f.source }

// Fetch implements Adapter.
func (f *JSONFeed) Fetch(ctx context.Context, q model.Query) ([]model.RawPosting, error) {
	body, err := get(ctx, f.client, f.source, expandSearchURL(f.cfg.URL, q),
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		f.log.Warn("malformed response", zap.String("sample", sample(body)))
		return nil, permanent(f.source, 0, fmt.Errorf("json unmarshal: %w", err))
	}
	found, err := jmespath.Search(f.cfg.Items, doc)
	if err != nil {
		return nil, permanent(f.source, 0, fmt.Errorf("items: %w", err))
	}
	items, ok := found.([]interface{})
	if !ok {
		return nil, permanent(f.source, 0, fmt.Errorf("items expression %q did not yield a list", f.cfg.Items))
	}

	out := make([]model.RawPosting, 0, len(items))
	for _, item := range items {
		raw := f.extract(item)
		if raw.Title == "" {
			continue
		}
		out = append(out, raw)
		if q.MaxResults > 0 && len(out) >= q.MaxResults {
			break
		}
	}
	return out, nil
}

func (f *JSONFeed) extract(item interface{}) model.RawPosting {
	raw := model.RawPosting{
		Source:       f.source,
		ExternalID:   f.str(item, "id"),
		Title:        f.str(item, "title"),
		Company:      f.str(item, "company"),
		Location:     f.str(item, "location"),
		Description:  f.str(item, "description"),
		SourceURL:    f.str(item, "url"),
		SalaryText:   f.str(item, "salary"),
		Currency:     f.str(item, "currency"),
		ContractType: f.str(item, "contract"),
		Schedule:     f.str(item, "schedule"),
		Experience:   f.str(item, "experience"),
		PublishedAt:  f.str(item, "posted"),
		Skills:       f.list(item, "skills"),
	}
	raw.SalaryMin = f.num(item, "salary_min")
	raw.SalaryMax = f.num(item, "salary_max")
	return raw
}

func (f *JSONFeed) eval(item interface{}, field string) interface{} {
	expr := f.cfg.Fields[field]
	if expr == "" {
		return nil
	}
	v, err := jmespath.Search(expr, item)
	if err != nil {
		f.log.Debug("field expression failed", zap.String("field", field), zap.Error(err))
		return nil
	}
	return v
}

func (f *JSONFeed) str(item interface{}, field string) string {
	switch v := f.eval(item, field).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (f *JSONFeed) num(item interface{}, field string) float64 {
	switch v := f.eval(item, field).(type) {
	case float64:
		return v
	case string:
		n, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n
	default:
		return 0
	}
}

func (f *JSONFeed) list(item interface{}, field string) []string {
	switch v := f.eval(item, field).(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Normalize implements Adapter.
func (f *JSONFeed) Normalize(raw model.RawPosting, now time.Time) model.Posting {
	return Normalize(raw, now)
}
