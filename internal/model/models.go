// Package model defines shared data structures for the discovery service.
package model

import "time"

// Source identifies the external board a posting was fetched from.
type Source string

const (
	SourceAdzuna     Source = "adzuna"
	SourceHeadhunter Source = "headhunter"
	SourceHTMLBoard  Source = "htmlboard"
	SourceJSONFeed   Source = "jsonfeed"
	SourceManual     Source = "manual"
)

// EmploymentType is the normalized contract kind of a posting.
type EmploymentType string

const (
	EmploymentUnknown    EmploymentType = ""
	EmploymentFullTime   EmploymentType = "full_time"
	EmploymentPartTime   EmploymentType = "part_time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
	EmploymentTemporary  EmploymentType = "temporary"
)

// RemoteMode is the normalized work arrangement of a posting.
type RemoteMode string

const (
	RemoteUnknown RemoteMode = ""
	RemoteFull    RemoteMode = "remote"
	RemoteHybrid  RemoteMode = "hybrid"
	RemoteOnsite  RemoteMode = "onsite"
)

// ExperienceLevel is the normalized seniority requested by a posting.
type ExperienceLevel string

const (
	ExperienceUnknown ExperienceLevel = ""
	ExperienceIntern  ExperienceLevel = "intern"
	ExperienceJunior  ExperienceLevel = "junior"
	ExperienceMid     ExperienceLevel = "mid"
	ExperienceSenior  ExperienceLevel = "senior"
	ExperienceLead    ExperienceLevel = "lead"
)

// Salary is an extracted salary range. Zero bounds mean "not stated".
type Salary struct {
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// IsZero reports whether no salary information was extracted.
func (s Salary) IsZero() bool { return s.Min == 0 && s.Max == 0 }

// Posting is a normalised, deduplicated job listing stored in job_feed.
type Posting struct {
	ID           string `json:"id"`
	CanonicalURL string `json:"canonicalUrl,omitempty"`
	Source       Source `json:"source"`
	ExternalID   string `json:"externalId,omitempty"`

	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`

	Salary           Salary          `json:"salary"`
	EmploymentType   EmploymentType  `json:"employmentType,omitempty"`
	RemoteMode       RemoteMode      `json:"remoteMode,omitempty"`
	ExperienceLevel  ExperienceLevel `json:"experienceLevel,omitempty"`
	Skills           []string        `json:"skills,omitempty"`
	Requirements     []string        `json:"requirements,omitempty"`
	Responsibilities []string        `json:"responsibilities,omitempty"`

	FirstSeenAt time.Time  `json:"firstSeenAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	PostedAt    *time.Time `json:"postedAt,omitempty"`
}

// RawPosting is an offer as fetched from an external job board, before
// normalisation. Fields not every board provides are left empty.
type RawPosting struct {
	Source       Source                 `json:"source"`
	ExternalID   string                 `json:"externalId"`
	Title        string                 `json:"title"`
	Company      string                 `json:"company"`
	Location     string                 `json:"location"`
	Description  string                 `json:"description"`
	SalaryText   string                 `json:"salaryText,omitempty"`
	SalaryMin    float64                `json:"salaryMin,omitempty"`
	SalaryMax    float64                `json:"salaryMax,omitempty"`
	Currency     string                 `json:"currency,omitempty"`
	SourceURL    string                 `json:"sourceUrl"`
	ContractType string                 `json:"contractType,omitempty"`
	Schedule     string                 `json:"schedule,omitempty"`
	Experience   string                 `json:"experience,omitempty"`
	Skills       []string               `json:"skills,omitempty"`
	PublishedAt  string                 `json:"publishedAt,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Query is the search a source adapter runs.
type Query struct {
	Keywords   string `json:"keywords"`
	Location   string `json:"location"`
	MaxResults int    `json:"maxResults"`
	// Budget lowers the coordinator's per-run posting cap when positive.
	// Set by the scheduler to share one cap across a cycle.
	Budget int `json:"-"`
}

// SearchConfig mirrors the search_configs table row relevant to scraping.
type SearchConfig struct {
	ID           string
	UserID       string
	JobTitles    []string
	Locations    []string
	RemotePolicy string
	Keywords     []string // must-have tech/role keywords used to narrow search
	RedFlags     []string // exclusion terms
}

// Queries expands the config into one Query per (job title × location) pair.
func (c SearchConfig) Queries(maxResults int) []Query {
	locations := c.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}
	out := make([]Query, 0, len(c.JobTitles)*len(locations))
	for _, title := range c.JobTitles {
		for _, loc := range locations {
			out = append(out, Query{Keywords: title, Location: loc, MaxResults: maxResults})
		}
	}
	return out
}

// UserProfile is the read model of a user's profile used for scoring.
type UserProfile struct {
	UserID            string     `json:"userId"`
	PrimaryTitle      string     `json:"primaryTitle"`
	SecondaryTitles   []string   `json:"secondaryTitles,omitempty"`
	Seniority         string     `json:"seniority,omitempty"`
	TechnicalSkills   []string   `json:"technicalSkills,omitempty"`
	ToolSkills        []string   `json:"toolSkills,omitempty"`
	SoftSkills        []string   `json:"softSkills,omitempty"`
	Industries        []string   `json:"industries,omitempty"`
	WorkMode          RemoteMode `json:"workMode,omitempty"`
	ExperienceSummary string     `json:"experienceSummary,omitempty"`
	RedFlags          []string   `json:"redFlags,omitempty"`
}

// TargetTitles returns the primary title followed by the secondary ones.
func (p UserProfile) TargetTitles() []string {
	out := make([]string, 0, 1+len(p.SecondaryTitles))
	if p.PrimaryTitle != "" {
		out = append(out, p.PrimaryTitle)
	}
	return append(out, p.SecondaryTitles...)
}

// AllSkills returns technical, tool and soft skills in that order.
func (p UserProfile) AllSkills() []string {
	out := make([]string, 0, len(p.TechnicalSkills)+len(p.ToolSkills)+len(p.SoftSkills))
	out = append(out, p.TechnicalSkills...)
	out = append(out, p.ToolSkills...)
	return append(out, p.SoftSkills...)
}
