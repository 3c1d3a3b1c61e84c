package models

// DomainExample is a curated few-shot question/SQL pair. The SQL template is
// parameterised on {project} and {dataset} so one library serves every
// configured warehouse.
type DomainExample struct {
	Domain      string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	Question    string   `json:"question" yaml:"question"`
	SQLTemplate string   `json:"sql_template" yaml:"sql_template"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}
