// Package registry classifies warehouse tables into business domains and
// holds the join graph used for table expansion and join hints.
package registry

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/meridianmed/insight-engine/pkg/models"
)

//go:embed registry.yaml
var seedYAML []byte

// Domain is the closed set of business classifications.
type Domain string

const (
	DomainFinancial       Domain = "financial"
	DomainSalesOperations Domain = "sales_operations"
	DomainInventory       Domain = "inventory"
	DomainCustomer        Domain = "customer"
	DomainProduct         Domain = "product"
	DomainGeneral         Domain = "general"
)

type domainPattern struct {
	domain  Domain
	pattern *regexp.Regexp
}

type seedFile struct {
	Domains []struct {
		Domain   string   `yaml:"domain"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"domains"`
	Keywords      map[string][]string       `yaml:"keywords"`
	Relationships []models.JoinRelationship `yaml:"relationships"`
}

// Registry owns domain classification and join relationships.
type Registry struct {
	patterns      []domainPattern
	keywords      map[Domain][]string
	relationships []models.JoinRelationship

	mu             sync.RWMutex
	classification map[string]Domain
}

// Load parses the embedded seed file and compiles its patterns.
func Load() (*Registry, error) {
	var seed seedFile
	if err := yaml.Unmarshal(seedYAML, &seed); err != nil {
		return nil, fmt.Errorf("parse registry seed: %w", err)
	}

	r := &Registry{
		keywords:       make(map[Domain][]string),
		relationships:  seed.Relationships,
		classification: make(map[string]Domain),
	}

	for _, d := range seed.Domains {
		for _, p := range d.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q: %w", p, err)
			}
			r.patterns = append(r.patterns, domainPattern{domain: Domain(d.Domain), pattern: re})
		}
	}
	for domain, words := range seed.Keywords {
		// Keywords go through the same singularisation as question
		// tokens so plural forms match either way.
		normalized := make([]string, len(words))
		for i, w := range words {
			normalized[i] = normalizeQuestion(w)
		}
		r.keywords[Domain(domain)] = normalized
	}

	return r, nil
}

// Classify returns the domain for a table name. Patterns are checked in
// ascending priority order; the first match wins and the result is cached.
func (r *Registry) Classify(tableName string) Domain {
	r.mu.RLock()
	if d, ok := r.classification[tableName]; ok {
		r.mu.RUnlock()
		return d
	}
	r.mu.RUnlock()

	domain := DomainGeneral
	for _, dp := range r.patterns {
		if dp.pattern.MatchString(tableName) {
			domain = dp.domain
			break
		}
	}

	r.mu.Lock()
	r.classification[tableName] = domain
	r.mu.Unlock()
	return domain
}

// DomainsForQuestion scans a question for registered domain keywords.
// Tokens are singularised so "invoices" matches the "invoice" keyword.
// Returns {general} when nothing matches.
func (r *Registry) DomainsForQuestion(question string) []Domain {
	normalized := " " + normalizeQuestion(question) + " "

	set := make(map[Domain]bool)
	for domain, words := range r.keywords {
		for _, w := range words {
			if strings.Contains(normalized, " "+w+" ") {
				set[domain] = true
				break
			}
		}
	}

	if len(set) == 0 {
		return []Domain{DomainGeneral}
	}

	domains := make([]Domain, 0, len(set))
	for d := range set {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	return domains
}

// Expand returns the input tables plus every table reachable through one
// join-graph hop, deduplicated and sorted.
func (r *Registry) Expand(tables []string) []string {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}

	for _, t := range tables {
		for _, rel := range r.relationships {
			if strings.EqualFold(rel.SourceTable, t) {
				set[rel.TargetTable] = true
			}
			if strings.EqualFold(rel.TargetTable, t) {
				set[rel.SourceTable] = true
			}
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// JoinHints returns the relationship between two tables, or nil. When the
// registered edge runs (b, a), the returned hint is reversed: key pairs
// swapped and left/right join types flipped.
func (r *Registry) JoinHints(a, b string) *models.JoinRelationship {
	for _, rel := range r.relationships {
		if strings.EqualFold(rel.SourceTable, a) && strings.EqualFold(rel.TargetTable, b) {
			out := rel
			return &out
		}
		if strings.EqualFold(rel.SourceTable, b) && strings.EqualFold(rel.TargetTable, a) {
			rev := rel.Reverse()
			return &rev
		}
	}
	return nil
}

// Relationships returns every registered edge.
func (r *Registry) Relationships() []models.JoinRelationship {
	return r.relationships
}

func normalizeQuestion(question string) string {
	words := strings.Fields(strings.ToLower(question))
	for i, w := range words {
		w = strings.Trim(w, ".,?!'\"")
		words[i] = inflection.Singular(w)
	}
	return strings.Join(words, " ")
}
