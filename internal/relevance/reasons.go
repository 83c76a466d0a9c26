package relevance

import (
	"fmt"
	"strings"

	"jobmate/discovery-service/internal/model"
)

const maxReasons = 3

// Reasons explains a match with one to three short statements drawn from
// title alignment, skill overlap, work mode and semantic similarity.
func Reasons(profile model.UserProfile, excl Exclusion, p model.Posting, score float64) []string {
	var out []string
	if t := excl.MatchesTarget(p.Title); t != "" {
		out = append(out, fmt.Sprintf("Title matches your target role %q", t))
	}
	if shared := SharedSkills(profile.AllSkills(), p.Skills); len(shared) > 0 {
		shown := shared
		if len(shown) > 3 {
			shown = shown[:3]
		}
		out = append(out, fmt.Sprintf("Shares %d of your skills: %s", len(shared), strings.Join(shown, ", ")))
	}
	if profile.WorkMode != model.RemoteUnknown && p.RemoteMode == profile.WorkMode {
		out = append(out, fmt.Sprintf("Matches your %s work preference", profile.WorkMode))
	}
	if len(out) < maxReasons {
		out = append(out, fmt.Sprintf("Semantic similarity %.0f%%", score))
	}
	if len(out) > maxReasons {
		out = out[:maxReasons]
	}
	return out
}

// SharedSkills lists posting skills the profile also has, in posting order,
// compared case-insensitively.
func SharedSkills(profileSkills, postingSkills []string) []string {
	have := make(map[string]bool, len(profileSkills))
	for _, s := range profileSkills {
		have[model.NormalizeKeyPart(s)] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range postingSkills {
		k := model.NormalizeKeyPart(s)
		if k != "" && have[k] && !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}
