// Package prompts assembles the SQL-generation prompt. Block order is
// fixed so generated SQL stays reproducible across runs for the same
// inputs: role, schema, domain rules, formatting rules, examples,
// conversation context, then the question.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/meridianmed/insight-engine/pkg/entity"
	"github.com/meridianmed/insight-engine/pkg/examples"
	"github.com/meridianmed/insight-engine/pkg/format"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/registry"
)

// Composer renders generation and repair prompts.
type Composer struct {
	registry *registry.Registry
	resolver *entity.Resolver
	project  string
	dataset  string
	dialect  string
}

// NewComposer wires the composer to its table registry and entity
// resolver. project may be empty; dataset qualifies table names in the
// rendered examples.
func NewComposer(reg *registry.Registry, resolver *entity.Resolver, project, dataset, dialect string) *Composer {
	return &Composer{
		registry: reg,
		resolver: resolver,
		project:  project,
		dataset:  dataset,
		dialect:  dialect,
	}
}

// Input carries everything a single generation needs.
type Input struct {
	Question string
	Tables   []*models.TableDescriptor
	Examples []models.DomainExample
	// Context holds prior conversation turns, oldest first. Assistant
	// turns contribute only their SQL.
	Context []models.Message
	// Feedback is a repair instruction from a failed earlier attempt.
	Feedback string
}

// SystemMessage returns the fixed role block sent as the system prompt.
func (c *Composer) SystemMessage() string {
	var b strings.Builder
	b.WriteString("You are a SQL analyst for a surgical device distribution business. ")
	fmt.Fprintf(&b, "You write a single %s SELECT statement that answers the user's question.\n\n", c.dialectName())
	b.WriteString("Rules:\n")
	b.WriteString("- Produce exactly one statement. No DDL, no DML, no semicolons separating statements.\n")
	b.WriteString("- Use only tables and columns shown in the schema. Never invent a column.\n")
	b.WriteString("- Write explicit JOIN ... ON clauses; never comma joins.\n")
	b.WriteString("- Guard every division with NULLIF on the divisor.\n")
	b.WriteString("- Do not cast columns unless the schema note says a cast is needed.\n")
	b.WriteString("- Return the SQL in a ```sql fenced block, followed by one short sentence explaining it.\n")
	return b.String()
}

// Compose renders the user prompt for one generation attempt.
func (c *Composer) Compose(in Input) string {
	var b strings.Builder

	c.writeSchema(&b, in.Tables)
	c.writeDomainRules(&b, in.Tables)

	b.WriteString(format.RulesBlock())
	b.WriteString("\n")

	c.writeExamples(&b, in.Examples)
	c.writeContext(&b, in.Context)
	c.writeEntities(&b, in.Question)

	if in.Feedback != "" {
		b.WriteString("Previous attempt failed. ")
		b.WriteString(in.Feedback)
		b.WriteString("\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(in.Question)
	b.WriteString("\n")
	return b.String()
}

func (c *Composer) writeSchema(b *strings.Builder, tables []*models.TableDescriptor) {
	b.WriteString("Available tables:\n\n")
	for _, t := range tables {
		fmt.Fprintf(b, "Table %s", c.qualify(t.TableName))
		if t.Description != "" {
			fmt.Fprintf(b, " -- %s", t.Description)
		}
		if t.RowCount > 0 {
			fmt.Fprintf(b, " (~%d rows)", t.RowCount)
		}
		b.WriteString("\n")

		for _, group := range groupColumns(t.Columns) {
			if len(group.columns) == 0 {
				continue
			}
			fmt.Fprintf(b, "  %s: %s\n", group.label, strings.Join(group.columns, ", "))
		}
		b.WriteString("  Columns are already typed; do not cast them.\n\n")
	}
}

func (c *Composer) writeDomainRules(b *strings.Builder, tables []*models.TableDescriptor) {
	b.WriteString("Domain rules:\n")
	b.WriteString("- Never join vendor or distributor tables on display-name columns; use the key columns from the join hints.\n")
	b.WriteString("- Duplicate invoice detection groups on the external reference column, never on the internal document number.\n")

	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.TableName)
	}
	sort.Strings(names)

	hinted := false
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			rel := c.registry.JoinHints(names[i], names[j])
			if rel == nil {
				continue
			}
			if !hinted {
				b.WriteString("Join hints:\n")
				hinted = true
			}
			pairs := make([]string, len(rel.JoinKeys))
			for k, key := range rel.JoinKeys {
				pairs[k] = fmt.Sprintf("%s.%s = %s.%s",
					rel.SourceTable, key.SourceColumn, rel.TargetTable, key.TargetColumn)
			}
			fmt.Fprintf(b, "- %s JOIN %s ON %s (%s)\n",
				rel.SourceTable, rel.TargetTable, strings.Join(pairs, " AND "), rel.Cardinality)
		}
	}
	b.WriteString("\n")
}

func (c *Composer) writeExamples(b *strings.Builder, exs []models.DomainExample) {
	if len(exs) == 0 {
		return
	}
	b.WriteString("Examples of similar questions:\n\n")
	for _, ex := range exs {
		fmt.Fprintf(b, "Q: %s\n```sql\n%s\n```\n", ex.Question,
			examples.Render(ex.SQLTemplate, c.project, c.dataset))
		if ex.Explanation != "" {
			fmt.Fprintf(b, "%s\n", ex.Explanation)
		}
		b.WriteString("\n")
	}
}

func (c *Composer) writeContext(b *strings.Builder, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	b.WriteString("Earlier in this conversation:\n")
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			fmt.Fprintf(b, "User asked: %s\n", m.Content)
		case models.RoleAssistant:
			if m.SQL != "" {
				fmt.Fprintf(b, "You answered with:\n```sql\n%s\n```\n", m.SQL)
			}
		}
	}
	b.WriteString("Follow-up questions refer to this context.\n\n")
}

// writeEntities annotates capitalised tokens the resolver knows about, so
// the model filters on the right column. Names registered under more than
// one class list every binding.
func (c *Composer) writeEntities(b *strings.Builder, question string) {
	if c.resolver == nil {
		return
	}
	seen := make(map[string]bool)
	wrote := false
	for _, phrase := range capitalizedPhrases(question) {
		key := strings.ToLower(phrase)
		if seen[key] {
			continue
		}
		seen[key] = true

		records := c.resolver.ResolveAll(phrase)
		if len(records) == 0 {
			continue
		}
		if !wrote {
			b.WriteString("Named entities in the question:\n")
			wrote = true
		}
		for _, rec := range records {
			fmt.Fprintf(b, "- %q is a %s; filter with %s\n",
				rec.CanonicalName, rec.EntityClass, rec.ColumnBinding)
		}
	}
	if wrote {
		b.WriteString("\n")
	}
}

func (c *Composer) qualify(table string) string {
	if c.dataset == "" {
		return table
	}
	if c.project != "" {
		return c.project + "." + c.dataset + "." + table
	}
	return c.dataset + "." + table
}

func (c *Composer) dialectName() string {
	switch c.dialect {
	case "mssql":
		return "T-SQL"
	default:
		return "PostgreSQL"
	}
}

type columnGroup struct {
	label   string
	columns []string
}

// groupColumns buckets columns by broad type so the schema block reads as
// four short lines instead of one per column.
func groupColumns(cols []models.ColumnDescriptor) []columnGroup {
	groups := []columnGroup{
		{label: "numeric"},
		{label: "text"},
		{label: "date/time"},
		{label: "boolean"},
	}
	for _, col := range cols {
		entry := col.Name
		if col.Description != "" {
			entry = fmt.Sprintf("%s (%s)", col.Name, col.Description)
		}
		idx := 1
		t := strings.ToLower(col.Type)
		switch {
		case strings.Contains(t, "int") || strings.Contains(t, "numeric") ||
			strings.Contains(t, "decimal") || strings.Contains(t, "float") ||
			strings.Contains(t, "double") || strings.Contains(t, "money") ||
			strings.Contains(t, "real"):
			idx = 0
		case strings.Contains(t, "date") || strings.Contains(t, "time"):
			idx = 2
		case strings.Contains(t, "bool") || t == "bit":
			idx = 3
		}
		groups[idx].columns = append(groups[idx].columns, entry)
	}
	return groups
}

// capitalizedPhrases extracts runs of capitalised words, the usual shape
// of proper names in a question ("Mercy General", "Smith").
func capitalizedPhrases(question string) []string {
	words := strings.Fields(question)
	var phrases []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, strings.Join(current, " "))
			current = nil
		}
	}

	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		runes := []rune(trimmed)
		// The sentence-initial word is capitalised by grammar, not by
		// being a name; skip it unless it continues into a phrase.
		if len(runes) > 0 && unicode.IsUpper(runes[0]) && i > 0 {
			current = append(current, trimmed)
		} else {
			flush()
		}
	}
	flush()

	// Single trailing words of a phrase are names too ("Smith").
	var out []string
	for _, p := range phrases {
		out = append(out, p)
		if parts := strings.Fields(p); len(parts) > 1 {
			out = append(out, parts...)
		}
	}
	return out
}
