package importer

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML []byte

// Registry holds the configuration for all grant sources.
type Registry struct {
	Sources []Source `yaml:"sources"`
}

// Source describes one listing page and how to read grants from it.
type Source struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	BaseURL      string   `yaml:"base_url"`
	Organization string   `yaml:"organization"`
	Currency     string   `yaml:"currency,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`

	Selectors  Selectors  `yaml:"selectors"`
	Pagination Pagination `yaml:"pagination,omitempty"`
	MaxPages   int        `yaml:"max_pages,omitempty"`
	Detail     Detail     `yaml:"detail,omitempty"`
	Fetch      Fetch      `yaml:"fetch,omitempty"`
}

type Selectors struct {
	Container string `yaml:"container"` // wrapper for one listing item
	Title     string `yaml:"title"`
	Link      string `yaml:"link,omitempty"`
	Content   string `yaml:"content,omitempty"`
	Amount    string `yaml:"amount,omitempty"`
	Deadline  string `yaml:"deadline,omitempty"`
}

type Pagination struct {
	Next string `yaml:"next,omitempty"` // CSS selector for the next page link
}

type Detail struct {
	Enabled      bool   `yaml:"enabled"`
	Description  string `yaml:"description,omitempty"`
	Requirements string `yaml:"requirements,omitempty"`
	Amount       string `yaml:"amount,omitempty"`
	Deadline     string `yaml:"deadline,omitempty"`
	PDF          string `yaml:"pdf,omitempty"` // link to a PDF call document
}

type Fetch struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // default 30
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // default 1
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

const defaultUserAgent = "Mozilla/5.0 (compatible; grantmatch-importer/1.0)"

func (f Fetch) timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f Fetch) delay() time.Duration {
	if f.RateLimitRPS <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / f.RateLimitRPS)
}

func (f Fetch) userAgent() string {
	if f.UserAgent == "" {
		return defaultUserAgent
	}
	return f.UserAgent
}

func (s Source) maxPages() int {
	if s.MaxPages <= 0 {
		return 1
	}
	return s.MaxPages
}

// LoadRegistry parses the embedded sources.yaml.
func LoadRegistry() (*Registry, error) {
	return ParseRegistry(sourcesYAML)
}

// LoadRegistryFile parses a registry from disk, for local overrides.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry expands environment variables in data and decodes it.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	seen := make(map[string]bool, len(reg.Sources))
	for i, src := range reg.Sources {
		switch {
		case src.ID == "":
			return nil, fmt.Errorf("source #%d: missing id", i+1)
		case seen[src.ID]:
			return nil, fmt.Errorf("source %q: duplicate id", src.ID)
		case src.BaseURL == "":
			return nil, fmt.Errorf("source %q: missing base_url", src.ID)
		case src.Selectors.Container == "" || src.Selectors.Title == "":
			return nil, fmt.Errorf("source %q: container and title selectors are required", src.ID)
		}
		seen[src.ID] = true
	}
	return &reg, nil
}

// Source looks up a source by id.
func (r *Registry) Source(id string) (Source, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// IDs lists the configured source ids in file order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.Sources))
	for _, src := range r.Sources {
		ids = append(ids, src.ID)
	}
	return ids
}
