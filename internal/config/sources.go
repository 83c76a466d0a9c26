package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog lists the configurable HTML boards and JSON feeds. It is read from
// SOURCES_FILE.
type Catalog struct {
	HTMLBoards []HTMLBoard `yaml:"html_boards" validate:"dive"`
	JSONFeeds  []JSONFeed  `yaml:"json_feeds" validate:"dive"`
}

// HTMLBoard describes a job board page scraped with CSS selectors.
// SearchURL may contain {keywords} and {location} placeholders.
type HTMLBoard struct {
	Name        string `yaml:"name" validate:"required,alphanum"`
	SearchURL   string `yaml:"search_url" validate:"required,url"`
	Item        string `yaml:"item" validate:"required"`
	Title       string `yaml:"title" validate:"required"`
	Company     string `yaml:"company"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link" validate:"required"`
	Description string `yaml:"description"`
	Salary      string `yaml:"salary"`
	Posted      string `yaml:"posted"`
	PostedAttr  string `yaml:"posted_attr"`
}

// JSONFeed describes a JSON job API whose fields are mapped with JMESPath
// expressions evaluated against each item.
type JSONFeed struct {
	Name   string            `yaml:"name" validate:"required,alphanum"`
	URL    string            `yaml:"url" validate:"required,url"`
	Items  string            `yaml:"items" validate:"required"`
	Fields map[string]string `yaml:"fields" validate:"required"`
}

// LoadCatalog parses and validates the YAML catalog at path. An empty path
// yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses and validates a YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid sources file: %w", err)
	}
	names := make(map[string]bool)
	for _, b := range c.HTMLBoards {
		if names[b.Name] {
			return nil, fmt.Errorf("duplicate source name %q", b.Name)
		}
		names[b.Name] = true
	}
	for _, f := range c.JSONFeeds {
		if names[f.Name] {
			return nil, fmt.Errorf("duplicate source name %q", f.Name)
		}
		if f.Fields["title"] == "" {
			return nil, fmt.Errorf("json feed %q: fields.title is required", f.Name)
		}
		names[f.Name] = true
	}
	return &c, nil
}
