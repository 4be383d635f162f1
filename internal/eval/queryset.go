package eval

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Query is one entry in the evaluation set. ExpectNoEvidence marks
// negative probes: questions the corpus genuinely cannot answer.
type Query struct {
	ID               string `yaml:"id" json:"id"`
	Type             string `yaml:"type" json:"type"`
	Query            string `yaml:"query" json:"query"`
	ExpectNoEvidence bool   `yaml:"expected_no_evidence" json:"expected_no_evidence"`
}

type QuerySet struct {
	Queries []Query `yaml:"queries"`
}

func LoadQuerySet(path string) (*QuerySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query set: %w", err)
	}

	var set QuerySet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse query set: %w", err)
	}
	if len(set.Queries) == 0 {
		return nil, fmt.Errorf("query set %s has no queries", path)
	}

	seen := make(map[string]bool, len(set.Queries))
	for i, q := range set.Queries {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("query %d has no id", i)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("duplicate query id %q", q.ID)
		}
		seen[q.ID] = true
		if strings.TrimSpace(q.Query) == "" {
			return nil, fmt.Errorf("query %q has empty text", q.ID)
		}
	}
	return &set, nil
}
