package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/config"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/scraper"
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// ── Adzuna ─────────────────────────────────────────────────────────────────

const adzunaBody = `{"count":2,"results":[
 {"id":"1","title":"Go Developer (H/F)","description":"Build APIs in Go","company":{"display_name":"Acme"},
  "location":{"display_name":"Paris, Ile-de-France"},"salary_min":50000,"salary_max":60000,
  "redirect_url":"https://www.adzuna.fr/land/ad/1?se=abc&v=2","created":"2025-01-05T08:00:00Z",
  "contract_type":"permanent","contract_time":"full_time"},
 {"id":"2","title":"Data Engineer","description":"Python","company":{"display_name":"Beta"},
  "location":{"display_name":"Lyon"},"redirect_url":"https://www.adzuna.fr/land/ad/2"}
]}`

func TestAdzunaFetcher_Fetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fr/search/1", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("what"))
		assert.Equal(t, "Paris", r.URL.Query().Get("where"))
		assert.Equal(t, "id", r.URL.Query().Get("app_id"))
		fmt.Fprint(w, adzunaBody)
	})
	f := scraper.NewAdzunaFetcher("id", "key", "fr", zap.NewNop())
	f.BaseURL = srv.URL

	raws, err := f.Fetch(context.Background(), model.Query{Keywords: "golang", Location: "Paris"})
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, model.SourceAdzuna, raws[0].Source)
	assert.Equal(t, "permanent full_time", raws[0].ContractType)

	p := f.Normalize(raws[0], now)
	assert.Equal(t, "https://www.adzuna.fr/land/ad/1", p.CanonicalURL)
	assert.Equal(t, "Go Developer", p.Title)
	assert.Equal(t, "Paris", p.Location)
	assert.Equal(t, model.Salary{Min: 50000, Max: 60000, Currency: "EUR"}, p.Salary)
	assert.Equal(t, model.EmploymentFullTime, p.EmploymentType)
}

func TestAdzunaFetcher_MaxResults(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, adzunaBody) })
	f := scraper.NewAdzunaFetcher("id", "key", "fr", zap.NewNop())
	f.BaseURL = srv.URL

	raws, err := f.Fetch(context.Background(), model.Query{Keywords: "go", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestAdzunaFetcher_NoCredentials(t *testing.T) {
	f := scraper.NewAdzunaFetcher("", "", "fr", zap.NewNop())
	raws, err := f.Fetch(context.Background(), model.Query{Keywords: "go"})
	assert.NoError(t, err)
	assert.Nil(t, raws)
}

func TestFetchErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   scraper.ErrorKind
	}{
		{http.StatusInternalServerError, scraper.KindTransient},
		{http.StatusBadGateway, scraper.KindTransient},
		{http.StatusTooManyRequests, scraper.KindTransient},
		{http.StatusRequestTimeout, scraper.KindTransient},
		{http.StatusBadRequest, scraper.KindPermanent},
		{http.StatusUnauthorized, scraper.KindPermanent},
		{http.StatusNotFound, scraper.KindPermanent},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			f := scraper.NewAdzunaFetcher("id", "key", "fr", zap.NewNop())
			f.BaseURL = srv.URL

			_, err := f.Fetch(context.Background(), model.Query{Keywords: "go"})
			require.Error(t, err)
			assert.Equal(t, tc.want, scraper.KindOf(err))

			var fe *scraper.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.status, fe.Status)
			assert.Equal(t, model.SourceAdzuna, fe.Source)
		})
	}
}

func TestFetchErrorClassification_Decode(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "<html>oops</html>") })
	f := scraper.NewAdzunaFetcher("id", "key", "fr", zap.NewNop())
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), model.Query{Keywords: "go"})
	require.Error(t, err)
	assert.Equal(t, scraper.KindPermanent, scraper.KindOf(err))
}

func TestFetchErrorClassification_Network(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	f := scraper.NewAdzunaFetcher("id", "key", "fr", zap.NewNop())
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), model.Query{Keywords: "go"})
	require.Error(t, err)
	assert.Equal(t, scraper.KindTransient, scraper.KindOf(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, scraper.KindTransient, scraper.KindOf(context.DeadlineExceeded))
	assert.Equal(t, scraper.KindTransient, scraper.KindOf(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, scraper.KindPermanent, scraper.KindOf(errors.New("boom")))
}

// ── HeadHunter ─────────────────────────────────────────────────────────────

const hhBody = `{"found":2,"pages":1,"page":0,"per_page":100,"items":[
 {"id":"101","name":"Golang разработчик","area":{"id":"1","name":"Москва"},
  "salary":{"from":200000,"to":null,"currency":"RUR","gross":false},
  "experience":{"id":"between1And3"},"schedule":{"id":"remote"},"employment":{"id":"full"},
  "employer":{"name":"Яндекс"},"alternate_url":"https://hh.ru/vacancy/101",
  "published_at":"2025-01-08T10:00:00+0300",
  "snippet":{"requirement":"Опыт с <highlighttext>Go</highlighttext>. Знание SQL.","responsibility":"Разработка сервисов."}},
 {"id":"102","name":"Archived","archived":true,"alternate_url":"https://hh.ru/vacancy/102"}
]}`

func TestHeadhunterFetcher_Fetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vacancies", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("HH-User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("area"))
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		fmt.Fprint(w, hhBody)
	})
	f := scraper.NewHeadhunterFetcher("test-agent", "1", zap.NewNop())
	f.BaseURL = srv.URL

	raws, err := f.Fetch(context.Background(), model.Query{Keywords: "golang"})
	require.NoError(t, err)
	require.Len(t, raws, 1, "archived vacancies are skipped")

	p := f.Normalize(raws[0], now)
	assert.Equal(t, model.SourceHeadhunter, p.Source)
	assert.Equal(t, "101", p.ExternalID)
	assert.Equal(t, "Moscow", p.Location)
	assert.Equal(t, "Яндекс", p.Company)
	assert.Equal(t, "https://hh.ru/vacancy/101", p.CanonicalURL)
	assert.Equal(t, model.Salary{Min: 200000, Currency: "RUB"}, p.Salary)
	assert.Equal(t, model.RemoteFull, p.RemoteMode)
	assert.Equal(t, model.EmploymentFullTime, p.EmploymentType)
	assert.Equal(t, model.ExperienceJunior, p.ExperienceLevel)
	assert.Equal(t, []string{"Опыт с Go", "Знание SQL"}, p.Requirements)
	assert.Equal(t, []string{"Разработка сервисов"}, p.Responsibilities)
}

// ── HTML board ─────────────────────────────────────────────────────────────

const boardHTML = `<html><body>
<div class="job">
  <a class="title" href="/jobs/1?utm_source=board">Go Developer</a>
  <span class="company">Acme</span><span class="loc">Paris</span>
  <time datetime="2025-01-02">8 days ago</time>
  <div class="desc"><p>Remote. Requirements:</p></div>
</div>
<div class="job"><span class="company">No title here</span></div>
<div class="job">
  <a class="title" href="https://other.example/jobs/2">Backend Engineer</a>
  <span class="company">Beta</span>
</div>
</body></html>`

func boardConfig(searchURL string) config.HTMLBoard {
	return config.HTMLBoard{
		Name:        "demo",
		SearchURL:   searchURL,
		Item:        ".job",
		Title:       ".title",
		Company:     ".company",
		Location:    ".loc",
		Link:        "a.title",
		Description: ".desc",
		Posted:      "time",
		PostedAttr:  "datetime",
	}
}

func TestHTMLBoard_Fetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang dev", r.URL.Query().Get("q"))
		assert.Equal(t, "Paris", r.URL.Query().Get("l"))
		fmt.Fprint(w, boardHTML)
	})
	b := scraper.NewHTMLBoard(boardConfig(srv.URL+"/search?q={keywords}&l={location}"), zap.NewNop())
	assert.Equal(t, model.Source("htmlboard:demo"), b.Source())

	raws, err := b.Fetch(context.Background(), model.Query{Keywords: "golang dev", Location: "Paris"})
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "Go Developer", raws[0].Title)
	assert.Equal(t, srv.URL+"/jobs/1?utm_source=board", raws[0].SourceURL)
	assert.Equal(t, "2025-01-02", raws[0].PublishedAt)
	assert.Equal(t, "https://other.example/jobs/2", raws[1].SourceURL)

	p := b.Normalize(raws[0], now)
	assert.Equal(t, srv.URL+"/jobs/1", p.CanonicalURL)
	assert.Equal(t, model.Source("htmlboard:demo"), p.Source)
	require.NotNil(t, p.PostedAt)
	assert.Equal(t, 2, p.PostedAt.Day())
}

func TestHTMLBoard_MaxResults(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, boardHTML) })
	b := scraper.NewHTMLBoard(boardConfig(srv.URL), zap.NewNop())

	raws, err := b.Fetch(context.Background(), model.Query{Keywords: "go", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

// ── JSON feed ──────────────────────────────────────────────────────────────

const feedBody = `{"data":{"jobs":[
 {"id":7,"position":"Backend Engineer","org":{"name":"Beta"},"tags":["Go","Redis"],
  "link":"https://beta.io/j/7","pay":{"min":50000,"max":70000,"cur":"eur"},"where":"Berlin"},
 {"id":8,"org":{"name":"No title"}}
]}}`

func feedConfig(u string) config.JSONFeed {
	return config.JSONFeed{
		Name:  "beta",
		URL:   u,
		Items: "data.jobs",
		Fields: map[string]string{
			"id":         "id",
			"title":      "position",
			"company":    "org.name",
			"location":   "where",
			"url":        "link",
			"skills":     "tags",
			"salary_min": "pay.min",
			"salary_max": "pay.max",
			"currency":   "pay.cur",
		},
	}
}

func TestJSONFeed_Fetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, feedBody) })
	f, err := scraper.NewJSONFeed(feedConfig(srv.URL+"/jobs?q={keywords}"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, model.Source("jsonfeed:beta"), f.Source())

	raws, err := f.Fetch(context.Background(), model.Query{Keywords: "go"})
	require.NoError(t, err)
	require.Len(t, raws, 1)

	raw := raws[0]
	assert.Equal(t, "7", raw.ExternalID)
	assert.Equal(t, "Backend Engineer", raw.Title)
	assert.Equal(t, "Beta", raw.Company)
	assert.Equal(t, []string{"Go", "Redis"}, raw.Skills)

	p := f.Normalize(raw, now)
	assert.Equal(t, model.Salary{Min: 50000, Max: 70000, Currency: "EUR"}, p.Salary)
	assert.Equal(t, "Berlin", p.Location)
	assert.Equal(t, []string{"Go", "Redis"}, p.Skills)
}

func TestJSONFeed_InvalidConfig(t *testing.T) {
	cfg := feedConfig("https://feed.example")
	cfg.Items = "data.["
	_, err := scraper.NewJSONFeed(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = feedConfig("https://feed.example")
	cfg.Fields["salary_band"] = "pay"
	_, err = scraper.NewJSONFeed(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown field")
}

func TestJSONFeed_ItemsNotAList(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"data":{"jobs":"none"}}`) })
	f, err := scraper.NewJSONFeed(feedConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), model.Query{})
	require.Error(t, err)
	assert.Equal(t, scraper.KindPermanent, scraper.KindOf(err))
}

// ── Registry ───────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	hh := scraper.NewHeadhunterFetcher("ua", "", zap.NewNop())
	board := scraper.NewHTMLBoard(boardConfig("https://board.example"), zap.NewNop())

	_, err := scraper.NewRegistry(hh, hh)
	assert.Error(t, err)

	reg, err := scraper.NewRegistry(board, hh)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.SourceHeadhunter, "htmlboard:demo"}, reg.Sources())

	all, err := reg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := reg.Select([]model.Source{"htmlboard:demo", "htmlboard:demo"})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = reg.Select([]model.Source{"monster"})
	assert.ErrorContains(t, err, "unknown source")
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Headhunter.Enabled = true
	catalog := &config.Catalog{
		HTMLBoards: []config.HTMLBoard{boardConfig("https://board.example")},
		JSONFeeds:  []config.JSONFeed{feedConfig("https://feed.example")},
	}

	reg, err := scraper.BuildRegistry(cfg, catalog, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []model.Source{"headhunter", "htmlboard:demo", "jsonfeed:beta"}, reg.Sources())

	cfg.Adzuna.AppID, cfg.Adzuna.AppKey = "id", "key"
	reg, err = scraper.BuildRegistry(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	_, ok := reg.Lookup(model.SourceAdzuna)
	assert.True(t, ok)

	catalog.JSONFeeds[0].Items = "data.["
	_, err = scraper.BuildRegistry(cfg, catalog, zap.NewNop())
	assert.ErrorContains(t, err, "json feed")
}
