package matcher

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/rules.yaml
var rulesFS embed.FS

// Override is a category rule: when one of its triggers is present in the
// query, grants are matched on Terms instead of the extracted keywords.
type Override struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
	Terms    []string `yaml:"terms"`
}

type Rules struct {
	Signals   []string   `yaml:"signals"`
	Overrides []Override `yaml:"overrides"`
}

// DefaultRules returns the rule table shipped with the binary.
func DefaultRules() (*Rules, error) {
	data, err := rulesFS.ReadFile("config/rules.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded rules: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) validate() error {
	if len(r.Signals) == 0 {
		return fmt.Errorf("rules: at least one ranking signal is required")
	}
	r.Signals = lowerAll(r.Signals)

	seen := make(map[string]bool)
	for i := range r.Overrides {
		o := &r.Overrides[i]
		if o.Name == "" {
			return fmt.Errorf("rules: override %d has no name", i)
		}
		if seen[o.Name] {
			return fmt.Errorf("rules: duplicate override %q", o.Name)
		}
		seen[o.Name] = true
		if len(o.Triggers) == 0 || len(o.Terms) == 0 {
			return fmt.Errorf("rules: override %q needs triggers and terms", o.Name)
		}
		o.Triggers = lowerAll(o.Triggers)
		o.Terms = lowerAll(o.Terms)
	}
	return nil
}

// Select returns the first override triggered by q, or nil when keyword
// matching applies.
func (r *Rules) Select(q Query) *Override {
	for i := range r.Overrides {
		for _, trigger := range r.Overrides[i].Triggers {
			if q.hasTerm(trigger) {
				return &r.Overrides[i]
			}
		}
	}
	return nil
}

// Vocabulary is every term the rules know about, in declaration order.
func (r *Rules) Vocabulary() []string {
	var out []string
	out = appendUnique(out, r.Signals...)
	for _, o := range r.Overrides {
		out = appendUnique(out, o.Terms...)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range list {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup && item != "" {
			list = append(list, item)
		}
	}
	return list
}
