// Package examples holds the curated few-shot library and its
// relevance-scored selection.
package examples

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meridianmed/insight-engine/pkg/models"
)

//go:embed examples.yaml
var seedYAML []byte

// DefaultMaxExamples bounds selection; more examples dilute the prompt and
// bias the model toward copying unrelated templates.
const DefaultMaxExamples = 4

// Library is the immutable few-shot collection, in registration order.
type Library struct {
	examples []models.DomainExample
}

type seedFile struct {
	Examples []models.DomainExample `yaml:"examples"`
}

// Load parses the embedded seed file.
func Load() (*Library, error) {
	var seed seedFile
	if err := yaml.Unmarshal(seedYAML, &seed); err != nil {
		return nil, fmt.Errorf("parse examples seed: %w", err)
	}
	return &Library{examples: seed.Examples}, nil
}

// NewLibrary creates a library from explicit examples, for tests.
func NewLibrary(examples []models.DomainExample) *Library {
	return &Library{examples: examples}
}

// Select returns up to maxK examples scored by how many of their keywords
// appear in the question (case-insensitive). Zero-score examples are
// filtered; ties keep registration order.
func (l *Library) Select(question string, maxK int) []models.DomainExample {
	return l.SelectForDomains(question, nil, maxK)
}

// SelectForDomains is Select with a domain tie-break: among examples with
// equal keyword scores, ones tagged with a domain the question touches rank
// first. Keyword matching still gates inclusion; a domain match alone never
// pulls in an unrelated example.
func (l *Library) SelectForDomains(question string, domains []string, maxK int) []models.DomainExample {
	if maxK <= 0 {
		maxK = DefaultMaxExamples
	}
	lower := strings.ToLower(question)

	inDomain := func(ex models.DomainExample) bool {
		for _, d := range domains {
			if strings.EqualFold(ex.Domain, d) {
				return true
			}
		}
		return false
	}

	type scored struct {
		example models.DomainExample
		score   int
		domain  bool
		order   int
	}

	var candidates []scored
	for i, ex := range l.examples {
		score := 0
		for _, kw := range ex.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{example: ex, score: score, domain: inDomain(ex), order: i})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].domain != candidates[j].domain {
			return candidates[i].domain
		}
		return candidates[i].order < candidates[j].order
	})

	if len(candidates) > maxK {
		candidates = candidates[:maxK]
	}

	out := make([]models.DomainExample, len(candidates))
	for i, c := range candidates {
		out[i] = c.example
	}
	return out
}

// All returns every example in registration order.
func (l *Library) All() []models.DomainExample {
	return l.examples
}

// Render substitutes the project and dataset placeholders in a template.
func Render(template, project, dataset string) string {
	qualified := dataset
	if project != "" {
		qualified = project + "." + dataset
	}
	return strings.ReplaceAll(template, "{dataset}", qualified)
}
