package warehouse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// deniedPatterns match statements that mutate warehouse state. Source
// queries and metric queries must be plain reads.
var deniedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bCREATE\b`),
	regexp.MustCompile(`(?i)\bDROP\b`),
	regexp.MustCompile(`(?i)\bALTER\b`),
	regexp.MustCompile(`(?i)\bGRANT\b`),
	regexp.MustCompile(`(?i)\bREVOKE\b`),
	regexp.MustCompile(`(?i)\bMERGE\b`),
	regexp.MustCompile(`(?i)\bDELETE\b`),
	regexp.MustCompile(`(?i)\bUPDATE\b`),
	regexp.MustCompile(`(?i)\bINSERT\b`),
	regexp.MustCompile(`(?i)\bTRUNCATE\b`),
	regexp.MustCompile(`(?i)\bCALL\b`),
	regexp.MustCompile(`(?i)\bEXECUTE\s+IMMEDIATE\b`),
}

var allowedLeading = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN"}

// ValidateReadOnly rejects statements that could write to the
// warehouse. It returns a ValidationError naming the offending
// pattern.
func ValidateReadOnly(statement string) error {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return fmt.Errorf("empty statement")
	}

	upper := strings.ToUpper(trimmed)
	leading := false
	for _, kw := range allowedLeading {
		if strings.HasPrefix(upper, kw) {
			leading = true
			break
		}
	}
	if !leading {
		return &core.ValidationError{Pattern: firstWord(upper), Statement: statement}
	}

	for _, p := range deniedPatterns {
		if loc := p.FindStringIndex(statement); loc != nil {
			return &core.ValidationError{Pattern: statement[loc[0]:loc[1]], Statement: statement}
		}
	}
	return nil
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i > 0 {
		return s[:i]
	}
	return s
}
