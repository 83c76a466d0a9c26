package scraper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/scraper"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		title, location, want string
	}{
		{"Senior Go Developer (H/F) - Paris - Remote", "Paris", "Senior Go Developer"},
		{"Backend Engineer (Remote)", "", "Backend Engineer"},
		{"Data Engineer | London", "London", "Data Engineer"},
		{"Engineer - Platform (Kubernetes)", "", "Engineer - Platform (Kubernetes)"},
		{"  Product   Designer  ", "", "Product Designer"},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, scraper.CleanTitle(tc.title, tc.location))
		})
	}
}

func TestCanonicalLocation(t *testing.T) {
	assert.Equal(t, "Paris", scraper.CanonicalLocation("75001 Paris, France"))
	assert.Equal(t, "London", scraper.CanonicalLocation("Greater London"))
	assert.Equal(t, "Moscow", scraper.CanonicalLocation("Москва"))
	assert.Equal(t, "Toulouse", scraper.CanonicalLocation("Toulouse, Occitanie"))
	assert.Equal(t, "", scraper.CanonicalLocation("  "))
}

func TestCanonicalURL(t *testing.T) {
	got := scraper.CanonicalURL("HTTPS://Example.com/jobs/1?utm_source=x&id=3#top")
	assert.Equal(t, "https://example.com/jobs/1?id=3", got)
	assert.Equal(t, "", scraper.CanonicalURL(""))
}

func TestParseSalary(t *testing.T) {
	s := scraper.ParseSalary("Package: €45k - €60k depending on experience")
	assert.Equal(t, model.Salary{Min: 45000, Max: 60000, Currency: "EUR"}, s)

	s = scraper.ParseSalary("$120,000 - $150,000 a year")
	assert.Equal(t, model.Salary{Min: 120000, Max: 150000, Currency: "USD"}, s)

	assert.True(t, scraper.ParseSalary("Founded in 2024 with 12 engineers").IsZero())
}

func TestClassification(t *testing.T) {
	assert.Equal(t, model.EmploymentFullTime, scraper.ClassifyEmployment("", "Full-time position"))
	assert.Equal(t, model.EmploymentPartTime, scraper.ClassifyEmployment("part_time", ""))
	assert.Equal(t, model.EmploymentInternship, scraper.ClassifyEmployment("", "Summer internship"))
	assert.Equal(t, model.EmploymentUnknown, scraper.ClassifyEmployment("", "Build great APIs"))

	assert.Equal(t, model.RemoteHybrid, scraper.ClassifyRemote("Hybrid, 2 days remote"))
	assert.Equal(t, model.RemoteFull, scraper.ClassifyRemote("Fully remote team"))
	assert.Equal(t, model.RemoteFull, scraper.ClassifyRemote("Удаленная работа"))
	assert.Equal(t, model.RemoteUnknown, scraper.ClassifyRemote("Paris office"))

	assert.Equal(t, model.ExperienceSenior, scraper.ClassifyExperience("between3And6", "Developer"))
	assert.Equal(t, model.ExperienceLead, scraper.ClassifyExperience("", "Lead Backend Engineer"))
	assert.Equal(t, model.ExperienceJunior, scraper.ClassifyExperience("", "Junior Developer"))
	assert.Equal(t, model.ExperienceUnknown, scraper.ClassifyExperience("", "Developer"))
}

func TestExtractSkills(t *testing.T) {
	got := scraper.ExtractSkills("We use Go, PostgreSQL and k8s. Let's go!")
	assert.Equal(t, []string{"Go", "PostgreSQL", "Kubernetes"}, got)
	assert.Empty(t, scraper.ExtractSkills("let's go to the office"))
}

func TestExtractSections(t *testing.T) {
	text := "About us\nWe ship.\n\nRequirements:\n- Go\n- SQL\nResponsibilities:\n- Build APIs\n\nBenefits galore"
	req, resp := scraper.ExtractSections(text)
	assert.Equal(t, []string{"Go", "SQL"}, req)
	assert.Equal(t, []string{"Build APIs"}, resp)
}

func TestHTMLToText(t *testing.T) {
	got := scraper.HTMLToText("<p>Hello&nbsp;there</p><ul><li>Go</li><li>SQL</li></ul><script>x()</script>")
	assert.Contains(t, got, "Hello there")
	assert.Contains(t, got, "- Go")
	assert.Contains(t, got, "- SQL")
	assert.NotContains(t, got, "x()")
	assert.Equal(t, "plain & simple", scraper.HTMLToText("plain &amp; simple"))
}

func TestParseDate(t *testing.T) {
	got, ok := scraper.ParseDate("3 days ago", now)
	require.True(t, ok)
	assert.Equal(t, now.AddDate(0, 0, -3), got)

	got, ok = scraper.ParseDate("2025-01-02T10:00:00+0300", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 2, 7, 0, 0, 0, time.UTC), got)

	got, ok = scraper.ParseDate("yesterday", now)
	require.True(t, ok)
	assert.Equal(t, now.AddDate(0, 0, -1), got)

	_, ok = scraper.ParseDate("someday", now)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	raw := model.RawPosting{
		Source:      model.SourceAdzuna,
		ExternalID:  "42",
		Title:       "Senior Go Developer (H/F)",
		Company:     " Acme &amp; Co ",
		Location:    "Paris 75",
		Description: "<p>Remote friendly team.</p><p>Salary €50k - €65k</p><p>Requirements:</p><ul><li>Go</li><li>Kafka</li></ul>",
		SourceURL:   "https://jobs.example.com/1?utm_medium=mail",
	}
	p := scraper.Normalize(raw, now)

	assert.Equal(t, "Senior Go Developer", p.Title)
	assert.Equal(t, "Acme & Co", p.Company)
	assert.Equal(t, "Paris", p.Location)
	assert.Equal(t, "https://jobs.example.com/1", p.CanonicalURL)
	assert.Equal(t, model.Salary{Min: 50000, Max: 65000, Currency: "EUR"}, p.Salary)
	assert.Equal(t, model.RemoteFull, p.RemoteMode)
	assert.Equal(t, model.ExperienceSenior, p.ExperienceLevel)
	assert.Equal(t, []string{"Go", "Kafka"}, p.Skills)
	assert.Equal(t, []string{"Go", "Kafka"}, p.Requirements)
	assert.Equal(t, now, p.FirstSeenAt)
	assert.Equal(t, now, p.LastSeenAt)
	assert.Nil(t, p.PostedAt, "no publish date")

	raw.PublishedAt = "3 days ago"
	p = scraper.Normalize(raw, now)
	require.NotNil(t, p.PostedAt)
	assert.Equal(t, now.AddDate(0, 0, -3), *p.PostedAt)

	raw.PublishedAt = "someday"
	assert.Nil(t, scraper.Normalize(raw, now).PostedAt)
}
