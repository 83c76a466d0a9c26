package scraper

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmate/discovery-service/internal/model"
)

// Normalize turns a raw offer into a posting first seen at now. Adapters
// call it and then apply source-specific corrections.
func Normalize(raw model.RawPosting, now time.Time) model.Posting {
	description := HTMLToText(raw.Description)
	location := CanonicalLocation(raw.Location)
	title := CleanTitle(raw.Title, location)

	salary := model.Salary{Min: raw.SalaryMin, Max: raw.SalaryMax, Currency: strings.ToUpper(raw.Currency)}
	if salary.IsZero() {
		text := raw.SalaryText
		if text == "" {
			text = description
		}
		salary = ParseSalary(text)
	}
	if !salary.IsZero() && salary.Max != 0 && salary.Min > salary.Max {
		salary.Min, salary.Max = salary.Max, salary.Min
	}

	classify := strings.Join([]string{raw.ContractType, raw.Schedule, raw.Title, description}, " ")

	skills := raw.Skills
	if len(skills) == 0 {
		skills = ExtractSkills(raw.Title + "\n" + description)
	}
	requirements, responsibilities := ExtractSections(description)

	// An unknown publish date stays nil so a re-sighting never moves the
	// stored one. The insert path fills it with the first-seen time.
	var posted *time.Time
	if t, ok := ParseDate(raw.PublishedAt, now); ok {
		posted = &t
	}

	return model.Posting{
		CanonicalURL:     CanonicalURL(raw.SourceURL),
		Source:           raw.Source,
		ExternalID:       raw.ExternalID,
		Title:            title,
		Company:          collapseSpace(html.UnescapeString(raw.Company)),
		Location:         location,
		Description:      description,
		Salary:           salary,
		EmploymentType:   ClassifyEmployment(raw.ContractType + " " + raw.Schedule, classify),
		RemoteMode:       ClassifyRemote(raw.Schedule + " " + raw.Location + " " + classify),
		ExperienceLevel:  ClassifyExperience(raw.Experience, raw.Title),
		Skills:           skills,
		Requirements:     requirements,
		Responsibilities: responsibilities,
		FirstSeenAt:      now,
		LastSeenAt:       now,
		PostedAt:         posted,
	}
}

// ─── Text ────────────────────────────────────────────────────────────────────

var (
	spaceRe     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLineRe = regexp.MustCompile(`\n{3,}`)
)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// HTMLToText renders an HTML fragment as plain text, keeping one line per
// block element and prefixing list items with "- ".
func HTMLToText(s string) string {
	if !strings.Contains(s, "<") {
		return tidyLines(html.UnescapeString(s))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return tidyLines(html.UnescapeString(s))
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		sel.PrependHtml("\n- ")
	})
	doc.Find("p, div, h1, h2, h3, h4, h5, h6, ul, ol, tr, section").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	return tidyLines(doc.Text())
}

func tidyLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = collapseSpace(l)
	}
	out := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLineRe.ReplaceAllString(out, "\n\n"))
}

// ─── Title ───────────────────────────────────────────────────────────────────

var (
	genderSuffixRe = regexp.MustCompile(`(?i)\s*[\(\[]?\s*\b(?:h\s*/\s*f|f\s*/\s*h|m\s*/\s*f(?:\s*/\s*d)?|m\s*/\s*w\s*/\s*d|w\s*/\s*m\s*/\s*d|f\s*/\s*m\s*/\s*x)\b\s*[\)\]]?`)
	remoteWordRe   = regexp.MustCompile(`(?i)^(?:full(?:y)?[ -]?)?(?:remote|hybrid|on[ -]?site|télétravail|teletravail|remote[ -]first|100% remote|wfh)(?: only| ok| possible)?$`)
	parenRe        = regexp.MustCompile(`\s*[\(\[]([^\)\]]*)[\)\]]\s*`)
	titleSplitRe   = regexp.MustCompile(`\s+(?:-|–|—|\||@)\s+|,\s+`)
)

// CleanTitle strips gender markers and trailing location or work-mode
// qualifiers from a title, e.g. "Go Developer (H/F) - Paris - Remote"
// becomes "Go Developer".
func CleanTitle(title, location string) string {
	t := collapseSpace(HTMLToText(title))
	t = collapseSpace(genderSuffixRe.ReplaceAllString(t, " "))

	loc := strings.ToLower(location)
	isQualifier := func(part string) bool {
		p := strings.ToLower(strings.TrimSpace(part))
		switch {
		case p == "":
			return true
		case remoteWordRe.MatchString(p):
			return true
		case loc != "" && (p == loc || strings.Contains(p, loc)):
			return true
		}
		_, known := locationAliases[p]
		return known
	}

	t = parenRe.ReplaceAllStringFunc(t, func(m string) string {
		if isQualifier(parenRe.FindStringSubmatch(m)[1]) {
			return " "
		}
		return m
	})
	t = collapseSpace(t)

	for {
		seps := titleSplitRe.FindAllStringIndex(t, -1)
		if len(seps) == 0 {
			break
		}
		last := seps[len(seps)-1]
		if !isQualifier(t[last[1]:]) {
			break
		}
		t = t[:last[0]]
	}
	return strings.Trim(t, " -–—|,")
}

// ─── Location ────────────────────────────────────────────────────────────────

var locationAliases = map[string]string{
	"paris":            "Paris",
	"paris 75":         "Paris",
	"ile-de-france":    "Paris",
	"île-de-france":    "Paris",
	"lyon":             "Lyon",
	"marseille":        "Marseille",
	"london":           "London",
	"greater london":   "London",
	"nyc":              "New York",
	"new york city":    "New York",
	"new york":         "New York",
	"sf":               "San Francisco",
	"san francisco":    "San Francisco",
	"bay area":         "San Francisco",
	"berlin":           "Berlin",
	"москва":           "Moscow",
	"moscow":           "Moscow",
	"санкт-петербург":  "Saint Petersburg",
	"saint petersburg": "Saint Petersburg",
	"remote":           "Remote",
	"anywhere":         "Remote",
	"worldwide":        "Remote",
	"télétravail":      "Remote",
}

var postalCodeRe = regexp.MustCompile(`\b\d{4,5}\b|\(\d{2,3}\)`)

// CanonicalLocation maps a free-text location onto a canonical city name.
// Known aliases win; otherwise the first comma-separated segment is kept
// with postal codes removed.
func CanonicalLocation(s string) string {
	s = collapseSpace(html.UnescapeString(s))
	if s == "" {
		return ""
	}
	if v, ok := locationAliases[strings.ToLower(s)]; ok {
		return v
	}
	first := strings.TrimSpace(strings.Split(s, ",")[0])
	first = collapseSpace(postalCodeRe.ReplaceAllString(first, ""))
	first = strings.Trim(first, " -")
	if v, ok := locationAliases[strings.ToLower(first)]; ok {
		return v
	}
	if first == "" {
		return s
	}
	return first
}

// ─── URL ─────────────────────────────────────────────────────────────────────

// CanonicalURL lowercases scheme and host, drops the fragment and removes
// tracking parameters. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "ref" || lk == "source" || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ─── Salary ──────────────────────────────────────────────────────────────────

const (
	salaryNum = `(\d{1,3}(?:[ ,.\x{00a0}\x{202f}]\d{3})+|\d+(?:[.,]\d+)?)`
	salaryCur = `([$€£₽]|eur(?:os?)?|usd|gbp|rub|руб)`
)

var salaryRe = regexp.MustCompile(`(?i)` + salaryCur + `?\s?` + salaryNum + `\s?(k)?\s?` + salaryCur + `?` +
	`(?:\s?(?:-|–|to|à|до)\s?` + salaryCur + `?\s?` + salaryNum + `\s?(k)?)?\s?` + salaryCur + `?`)

var currencyCodes = map[string]string{
	"$": "USD", "usd": "USD",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP",
	"₽": "RUB", "rub": "RUB", "руб": "RUB",
}

// ParseSalary extracts the first salary figure or range from text. A match
// only counts when it carries a currency or a k suffix, so ordinary numbers
// in a description are ignored.
func ParseSalary(text string) model.Salary {
	for _, m := range salaryRe.FindAllStringSubmatch(text, -1) {
		var symbol string
		for _, g := range []string{m[1], m[4], m[5], m[8]} {
			if g != "" {
				symbol = g
				break
			}
		}
		kLow, kHigh := m[3] != "", m[7] != ""
		if symbol == "" && !kLow && !kHigh {
			continue
		}
		lo := parseAmount(m[2])
		hi := parseAmount(m[6])
		if kHigh && !kLow && hi != 0 && lo < 1000 {
			kLow = true
		}
		if kLow {
			lo *= 1000
		}
		if kHigh {
			hi *= 1000
		}
		if lo < 100 && hi < 100 {
			continue
		}
		return model.Salary{Min: lo, Max: hi, Currency: currencyCodes[strings.ToLower(symbol)]}
	}
	return model.Salary{}
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.NewReplacer(" ", "", " ", "", " ", "").Replace(s)
	// "45,000" / "45.000" are thousands; "45,5" / "45.5" are decimals.
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		if len(s)-i-1 == 3 {
			s = strings.NewReplacer(",", "", ".", "").Replace(s)
		} else {
			s = strings.ReplaceAll(s[:i], ",", "") + "." + s[i+1:]
			s = strings.Replace(s, ".", "", strings.Count(s, ".")-1)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ─── Classification ──────────────────────────────────────────────────────────

type rule[T any] struct {
	value T
	re    *regexp.Regexp
}

// Go's \b is ASCII-only, so Cyrillic and accent-final terms sit outside the
// word-boundary groups.
var employmentRules = []rule[model.EmploymentType]{
	{model.EmploymentInternship, regexp.MustCompile(`(?i)\b(?:intern(?:ship)?|stagiaire|alternance|apprenti\w*)\b|стажир`)},
	{model.EmploymentPartTime, regexp.MustCompile(`(?i)\b(?:part[ _-]?time|temps partiel|parttime)\b|частичная`)},
	{model.EmploymentContract, regexp.MustCompile(`(?i)\b(?:contract(?:or)?|freelance|cdd)\b|проектная`)},
	{model.EmploymentTemporary, regexp.MustCompile(`(?i)\b(?:temporary|temp|interim|intérim|seasonal)\b`)},
	{model.EmploymentFullTime, regexp.MustCompile(`(?i)\b(?:full[ _-]?time|permanent|cdi|fulltime)\b|полная`)},
}

// ClassifyEmployment classifies the contract kind. Structured fields from
// the source are tried before free text.
func ClassifyEmployment(structured, text string) model.EmploymentType {
	for _, in := range []string{structured, text} {
		for _, r := range employmentRules {
			if r.re.MatchString(in) {
				return r.value
			}
		}
	}
	return model.EmploymentUnknown
}

var remoteRules = []rule[model.RemoteMode]{
	{model.RemoteHybrid, regexp.MustCompile(`(?i)\b(?:hybrid|hybride|télétravail partiel|partial remote)\b|гибрид`)},
	{model.RemoteFull, regexp.MustCompile(`(?i)\b(?:full[ -]?remote|remote|remote[ -]first|wfh|work from home|anywhere)\b|t[ée]l[ée]travail|удал[её]нн`)},
	{model.RemoteOnsite, regexp.MustCompile(`(?i)\b(?:on[ -]?site|in[ -]office|sur site|présentiel|office[ -]based)\b|полный день`)},
}

// ClassifyRemote classifies the work arrangement. Hybrid is checked first
// because hybrid offers usually also mention remote work.
func ClassifyRemote(text string) model.RemoteMode {
	for _, r := range remoteRules {
		if r.re.MatchString(text) {
			return r.value
		}
	}
	return model.RemoteUnknown
}

var experienceRules = []rule[model.ExperienceLevel]{
	{model.ExperienceIntern, regexp.MustCompile(`(?i)\b(?:intern|internship|stagiaire)\b|стажер`)},
	{model.ExperienceLead, regexp.MustCompile(`(?i)\b(?:lead|principal|staff|head of|architect|moreThan6)\b|тимлид|руководитель`)},
	{model.ExperienceSenior, regexp.MustCompile(`(?i)\b(?:senior|sr\.?|between3And6|expert)\b|confirmé|ведущий|старший`)},
	{model.ExperienceJunior, regexp.MustCompile(`(?i)\b(?:junior|jr\.?|entry[ -]level|graduate|débutant|noExperience|between1And3)\b|младший`)},
	{model.ExperienceMid, regexp.MustCompile(`(?i)\b(?:mid|middle|intermediate|medior)\b`)},
}

// ClassifyExperience classifies seniority from the structured experience
// field first, then the title.
func ClassifyExperience(structured, title string) model.ExperienceLevel {
	for _, in := range []string{structured, title} {
		for _, r := range experienceRules {
			if r.re.MatchString(in) {
				return r.value
			}
		}
	}
	return model.ExperienceUnknown
}

// ─── Skills and sections ─────────────────────────────────────────────────────

var skillVocabulary = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Go", regexp.MustCompile(`\bGo\b|(?i:\bgolang\b)`)},
	{"Python", regexp.MustCompile(`(?i)\bpython\b`)},
	{"Java", regexp.MustCompile(`(?i)\bjava\b`)},
	{"Kotlin", regexp.MustCompile(`(?i)\bkotlin\b`)},
	{"Rust", regexp.MustCompile(`(?i)\brust\b`)},
	{"C++", regexp.MustCompile(`(?i)\bc\+\+`)},
	{"C#", regexp.MustCompile(`(?i)\bc#`)},
	{"JavaScript", regexp.MustCompile(`(?i)\bjavascript\b`)},
	{"TypeScript", regexp.MustCompile(`(?i)\btypescript\b`)},
	{"Node.js", regexp.MustCompile(`(?i)\bnode(?:\.js|js)?\b`)},
	{"React", regexp.MustCompile(`(?i)\breact\b`)},
	{"Vue", regexp.MustCompile(`(?i)\bvue(?:\.js)?\b`)},
	{"PHP", regexp.MustCompile(`(?i)\bphp\b`)},
	{"Ruby", regexp.MustCompile(`(?i)\bruby\b`)},
	{"SQL", regexp.MustCompile(`(?i)\bsql\b`)},
	{"PostgreSQL", regexp.MustCompile(`(?i)\bpostgres(?:ql)?\b`)},
	{"MySQL", regexp.MustCompile(`(?i)\bmysql\b`)},
	{"MongoDB", regexp.MustCompile(`(?i)\bmongo(?:db)?\b`)},
	{"Redis", regexp.MustCompile(`(?i)\bredis\b`)},
	{"Kafka", regexp.MustCompile(`(?i)\bkafka\b`)},
	{"RabbitMQ", regexp.MustCompile(`(?i)\brabbitmq\b`)},
	{"gRPC", regexp.MustCompile(`(?i)\bgrpc\b`)},
	{"Docker", regexp.MustCompile(`(?i)\bdocker\b`)},
	{"Kubernetes", regexp.MustCompile(`(?i)\bkubernetes\b|\bk8s\b`)},
	{"Terraform", regexp.MustCompile(`(?i)\bterraform\b`)},
	{"AWS", regexp.MustCompile(`(?i)\baws\b|amazon web services`)},
	{"GCP", regexp.MustCompile(`(?i)\bgcp\b|google cloud`)},
	{"Azure", regexp.MustCompile(`(?i)\bazure\b`)},
	{"Linux", regexp.MustCompile(`(?i)\blinux\b`)},
	{"Git", regexp.MustCompile(`(?i)\bgit\b`)},
	{"CI/CD", regexp.MustCompile(`(?i)\bci\s*/\s*cd\b`)},
	{"Machine Learning", regexp.MustCompile(`(?i)\bmachine learning\b|\bml\b`)},
	{"Figma", regexp.MustCompile(`(?i)\bfigma\b`)},
}

// ExtractSkills lists vocabulary skills mentioned in text, in vocabulary
// order, without duplicates.
func ExtractSkills(text string) []string {
	var out []string
	for _, s := range skillVocabulary {
		if s.re.MatchString(text) {
			out = append(out, s.name)
		}
	}
	return out
}

var (
	requirementHeaderRe    = regexp.MustCompile(`(?i)^(?:requirements?|qualifications?|what we(?:'|’)re looking for|what you(?:'|’)ll bring|you have|your profile|profile|profil(?: recherché)?|must[ -]haves?|skills|compétences|требования)\s*:?$`)
	responsibilityHeaderRe = regexp.MustCompile(`(?i)^(?:responsibilities|what you(?:'|’)ll do|your role|the role|missions?|vos missions|duties|tasks|обязанности)\s*:?$`)
	bulletRe               = regexp.MustCompile(`^(?:[-*•·▪◦]|\d+[.)])\s+`)
)

// ExtractSections collects bullet lines that follow a requirements header
// and a responsibilities header, preserving order.
func ExtractSections(text string) (requirements, responsibilities []string) {
	var current *[]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case requirementHeaderRe.MatchString(line):
			current = &requirements
			continue
		case responsibilityHeaderRe.MatchString(line):
			current = &responsibilities
			continue
		}
		if current == nil {
			continue
		}
		if bulletRe.MatchString(line) {
			*current = append(*current, strings.TrimSpace(bulletRe.ReplaceAllString(line, "")))
			continue
		}
		// A non-bullet line ends the section.
		if strings.HasSuffix(line, ":") || len(*current) > 0 {
			current = nil
		}
	}
	return requirements, responsibilities
}

// ─── Dates ───────────────────────────────────────────────────────────────────

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700", // hh.ru
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"02.01.2006",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

var relativeDateRe = regexp.MustCompile(`(?i)^(?:posted\s+)?(\d+)\+?\s*(minute|min|hour|hr|day|week|month)s?\s+ago$`)

// ParseDate parses the date formats seen across sources, including
// relative forms like "3 days ago" resolved against now. ok is false when
// nothing matched.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = collapseSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	switch strings.ToLower(s) {
	case "today", "just now", "just posted", "aujourd'hui", "сегодня":
		return now, true
	case "yesterday", "hier", "вчера":
		return now.AddDate(0, 0, -1), true
	}

	if m := relativeDateRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "minute", "min":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "hour", "hr":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		}
	}
	return time.Time{}, false
}
