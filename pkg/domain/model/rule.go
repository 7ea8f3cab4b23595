package model

// ClassificationRule is a user supplied deterministic classification rule. The
// pattern is a regular expression matched against the record text.
type ClassificationRule struct {
	Name     string   `toml:"name"`
	Pattern  string   `toml:"pattern"`
	Category Category `toml:"category"`
}

// ClassificationRuleSet is the document format of the rules file
type ClassificationRuleSet struct {
	Rules []ClassificationRule `toml:"rule"`
}
