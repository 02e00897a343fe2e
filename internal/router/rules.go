package router

import (
	"fmt"
	"strings"
)

// Rule routes the exports of one Label Studio project output directory to a
// destination bucket.
type Rule struct {
	Source string `json:"source"`
	Bucket string `json:"bucket"`
}

// DefaultRules is the production routing table.
var DefaultRules = []Rule{
	{Source: "randomsampled", Bucket: "cleanproduction"},
	{Source: "lowconfidence", Bucket: "lowconfidence"},
	{Source: "userfeedback", Bucket: "userfeedback"},
	{Source: "userfeedback2", Bucket: "userfeedback2"},
}

// ParseRules parses a "source=bucket,source=bucket" list.
func ParseRules(s string) ([]Rule, error) {
	var rules []Rule
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		src, bucket, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("routing rule %q: expected source=bucket", pair)
		}
		rules = append(rules, Rule{Source: strings.TrimSpace(src), Bucket: strings.TrimSpace(bucket)})
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules rejects empty tables, blank fields and duplicate sources.
// Each source owns its tracking record, so it may appear only once.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("no routing rules configured")
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Source == "" || r.Bucket == "" {
			return fmt.Errorf("routing rule %q=%q: source and bucket are required", r.Source, r.Bucket)
		}
		if strings.Contains(r.Source, "/") || strings.Contains(r.Bucket, "/") {
			return fmt.Errorf("routing rule %s=%s: names must not contain '/'", r.Source, r.Bucket)
		}
		if seen[r.Source] {
			return fmt.Errorf("routing rule for %s defined twice", r.Source)
		}
		seen[r.Source] = true
	}
	return nil
}

// FilterRules keeps only the rules whose source is in sources.
// An empty sources list keeps every rule.
func FilterRules(rules []Rule, sources []string) ([]Rule, error) {
	if len(sources) == 0 {
		return rules, nil
	}
	bySource := make(map[string]Rule, len(rules))
	for _, r := range rules {
		bySource[r.Source] = r
	}
	out := make([]Rule, 0, len(sources))
	for _, s := range sources {
		r, ok := bySource[s]
		if !ok {
			return nil, fmt.Errorf("no routing rule for source %q", s)
		}
		out = append(out, r)
	}
	return out, nil
}
