// Package format applies display formatting to result columns by name:
// currency, percentage, or thousands-separated counts. The same rules are
// rendered into the generation prompt so SQL aliases line up with them.
package format

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind is a column's display treatment.
type Kind int

const (
	KindNone Kind = iota
	KindCurrency
	KindPercent
	KindCount
)

var (
	percentPattern  = regexp.MustCompile(`(?i)percent|pct|rate|ratio|growth|change`)
	currencyPattern = regexp.MustCompile(`(?i)revenue|sales|cost|price|amount|total|profit|margin`)
	countPattern    = regexp.MustCompile(`(?i)quantity|count|number|volume|units`)
)

// ClassifyColumn picks a treatment from the column name. Percent patterns
// are checked before currency so margin_percent formats as a percentage
// even though "margin" alone is a currency word.
func ClassifyColumn(name string) Kind {
	switch {
	case percentPattern.MatchString(name):
		return KindPercent
	case currencyPattern.MatchString(name):
		return KindCurrency
	case countPattern.MatchString(name):
		return KindCount
	default:
		return KindNone
	}
}

// FormatValue renders a value under a treatment. Strings that already carry
// the treatment's marker pass through unchanged, so formatting twice is a
// no-op. Non-numeric values pass through untouched.
func FormatValue(value any, kind Kind) any {
	if kind == KindNone || value == nil {
		return value
	}

	if s, ok := value.(string); ok {
		switch kind {
		case KindCurrency:
			if strings.HasPrefix(s, "$") || strings.HasPrefix(s, "-$") {
				return s
			}
		case KindPercent:
			if strings.HasSuffix(s, "%") {
				return s
			}
		case KindCount:
			if strings.Contains(s, ",") {
				return s
			}
		}
	}

	f, ok := toFloat(value)
	if !ok {
		return value
	}

	switch kind {
	case KindCurrency:
		if f < 0 {
			return "-$" + groupThousands(-f, 2)
		}
		return "$" + groupThousands(f, 2)
	case KindPercent:
		return groupThousands(f, 2) + "%"
	case KindCount:
		return groupThousands(f, 0)
	}
	return value
}

// ApplyToRows formats every row in place according to the column names.
func ApplyToRows(columns []string, rows []map[string]any) {
	kinds := make(map[string]Kind, len(columns))
	for _, col := range columns {
		if k := ClassifyColumn(col); k != KindNone {
			kinds[col] = k
		}
	}
	if len(kinds) == 0 {
		return
	}
	for _, row := range rows {
		for col, kind := range kinds {
			if v, present := row[col]; present {
				row[col] = FormatValue(v, kind)
			}
		}
	}
}

// RulesBlock renders the naming conventions for inclusion in the
// generation prompt.
func RulesBlock() string {
	var b strings.Builder
	b.WriteString("Column naming conventions for display formatting:\n")
	b.WriteString("- Alias monetary results with words like revenue, cost, amount, total, or profit; they render as currency.\n")
	b.WriteString("- Alias ratio results with a _percent or _rate suffix; they render as percentages.\n")
	b.WriteString("- Alias tallies with words like count, quantity, or units; they render with thousands separators.\n")
	b.WriteString("- Compute percentages as numbers on the 0-100 scale, not 0-1 fractions.\n")
	return b.String()
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// groupThousands renders f with comma-separated integer digits and the
// given number of decimals.
func groupThousands(f float64, decimals int) string {
	neg := f < 0 || (f == 0 && math.Signbit(f))
	s := strconv.FormatFloat(math.Abs(f), 'f', decimals, 64)

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(fracPart)
	return b.String()
}
