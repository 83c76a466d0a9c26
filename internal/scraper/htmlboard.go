package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/config"
	"jobmate/discovery-service/internal/model"
)

// CatalogSource builds the source tag of a catalog entry, e.g.
// "htmlboard:welcometothejungle".
func CatalogSource(kind model.Source, name string) model.Source {
	return model.Source(string(kind) + ":" + name)
}

// HTMLBoard scrapes one search results page described by CSS selectors.
type HTMLBoard struct {
	cfg    config.HTMLBoard
	source model.Source
	client *http.Client
	log    *zap.Logger
}

// NewHTMLBoard constructs an adapter for a catalog board entry.
func NewHTMLBoard(cfg config.HTMLBoard, log *zap.Logger) *HTMLBoard {
	src := CatalogSource(model.SourceHTMLBoard, cfg.Name)
	return &HTMLBoard{
		cfg:    cfg,
		source: src,
		client: newHTTPClient(),
		log:    log.Named(string(src)),
	}
}

// Source implements Adapter.
func (b *HTMLBoard) Source() model.Source { return b.source }

// Fetch loads the search page for q and extracts one raw posting per item
// selector match. Items without a title or link are skipped.
func (b *HTMLBoard) Fetch(ctx context.Context, q model.Query) ([]model.RawPosting, error) {
	pageURL := expandSearchURL(b.cfg.SearchURL, q)
	body, err := get(ctx, b.client, b.source, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, permanent(b.source, 0, fmt.Errorf("parse html: %w", err))
	}
	base, _ := url.Parse(pageURL)

	var out []model.RawPosting
	skipped := 0
	doc.Find(b.cfg.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		raw := b.extract(item, base)
		if raw.Title == "" || raw.SourceURL == "" {
			skipped++
			return true
		}
		out = append(out, raw)
		return q.MaxResults <= 0 || len(out) < q.MaxResults
	})
	if skipped > 0 {
		b.log.Debug("skipped incomplete items", zap.Int("count", skipped))
	}
	if len(out) == 0 && skipped == 0 {
		b.log.Info("no items matched", zap.String("selector", b.cfg.Item), zap.String("url", pageURL))
	}
	return out, nil
}

func (b *HTMLBoard) extract(item *goquery.Selection, base *url.URL) model.RawPosting {
	raw := model.RawPosting{
		Source:     b.source,
		Title:      selectText(item, b.cfg.Title),
		Company:    selectText(item, b.cfg.Company),
		Location:   selectText(item, b.cfg.Location),
		SalaryText: selectText(item, b.cfg.Salary),
	}
	if b.cfg.Description != "" {
		if h, err := item.Find(b.cfg.Description).First().Html(); err == nil {
			raw.Description = h
		}
	}

	if href, ok := item.Find(b.cfg.Link).First().Attr("href"); ok {
		raw.SourceURL = resolveLink(base, href)
	}

	if b.cfg.Posted != "" {
		posted := item.Find(b.cfg.Posted).First()
		if b.cfg.PostedAttr != "" {
			raw.PublishedAt, _ = posted.Attr(b.cfg.PostedAttr)
		} else {
			raw.PublishedAt = strings.TrimSpace(posted.Text())
		}
	}
	if raw.SourceURL != "" {
		raw.ExternalID = raw.SourceURL
	}
	return raw
}

// Normalize implements Adapter.
func (b *HTMLBoard) Normalize(raw model.RawPosting, now time.Time) model.Posting {
	return Normalize(raw, now)
}

func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapseSpace(item.Find(selector).First().Text())
}

// expandSearchURL substitutes the {keywords} and {location} placeholders
// with query-escaped values.
func expandSearchURL(tmpl string, q model.Query) string {
	r := strings.NewReplacer(
		"{keywords}", url.QueryEscape(q.Keywords),
		"{location}", url.QueryEscape(q.Location),
	)
	return r.Replace(tmpl)
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
