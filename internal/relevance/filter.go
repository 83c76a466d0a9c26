package relevance

import (
	"strings"

	"jobmate/discovery-service/internal/model"
)

// nonTargetDomains are job families a technical profile never targets.
var nonTargetDomains = []string{
	"sales", "account executive", "account manager", "business developer",
	"business development", "commercial", "recruiter", "talent acquisition",
	"customer support", "customer service", "call center", "telemarketing",
	"cashier", "driver", "delivery", "warehouse", "retail", "nurse",
	"caregiver", "accountant", "bookkeeper", "teacher", "waiter", "chef",
	"cook", "receptionist", "real estate", "insurance agent",
}

// Exclusion decides which postings are rejected before scoring. Built-in
// domain terms are matched against the title; the profile's red flags
// against title and company.
type Exclusion struct {
	domains  []string
	redFlags []string
	targets  []target
}

type target struct {
	name  string
	words []string
}

// NewExclusion builds the filter for one profile. A title matching one of
// the profile's target titles overrides the built-in domains; red flags
// always apply.
func NewExclusion(p model.UserProfile) Exclusion {
	return Exclusion{
		domains:  normalizeAll(nonTargetDomains),
		redFlags: normalizeAll(p.RedFlags),
		targets:  targets(p.TargetTitles()),
	}
}

func targets(titles []string) []target {
	var out []target
	for _, t := range titles {
		if words := strings.Fields(model.NormalizeKeyPart(t)); len(words) > 0 {
			out = append(out, target{name: strings.TrimSpace(t), words: words})
		}
	}
	return out
}

// Excluded reports whether posting falls in an excluded category and the
// term that matched.
func (e Exclusion) Excluded(posting model.Posting) (bool, string) {
	title := model.NormalizeKeyPart(posting.Title)
	if term := ContainsRedFlag([]string{title, model.NormalizeKeyPart(posting.Company)}, e.redFlags); term != "" {
		return true, term
	}
	term := ContainsRedFlag([]string{title}, e.domains)
	if term == "" || e.MatchesTarget(posting.Title) != "" {
		return false, ""
	}
	return true, term
}

// MatchesTarget returns the first target title whose words all appear in
// title, or "".
func (e Exclusion) MatchesTarget(title string) string {
	words := " " + model.NormalizeKeyPart(title) + " "
	for _, t := range e.targets {
		all := true
		for _, w := range t.words {
			if !strings.Contains(words, " "+w+" ") {
				all = false
				break
			}
		}
		if all {
			return t.name
		}
	}
	return ""
}

// ContainsRedFlag returns the first term that appears as whole words in
// any of the normalized fields, or "".
func ContainsRedFlag(fields []string, terms []string) string {
	for _, term := range terms {
		for _, f := range fields {
			if strings.Contains(" "+f+" ", " "+term+" ") {
				return term
			}
		}
	}
	return ""
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := model.NormalizeKeyPart(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
