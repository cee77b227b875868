package engine

import (
	"strings"
)

// SplitStatements splits cell text into individual statements on ";",
// trimming whitespace and dropping empty fragments.
//
// This is a deliberately naive heuristic: a semicolon inside a string literal
// splits the statement incorrectly. Fixing that requires a SQL parser, which
// is out of scope; the behavior is documented rather than repaired.
func SplitStatements(text string) []string {
	parts := strings.Split(text, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// ddlPrefixes are the statement prefixes that change catalog metadata and thus
// require dependent caches and views to refresh.
var ddlPrefixes = []string{"CREATE", "DROP", "ALTER", "TRUNCATE"}

// IsDDL reports whether a statement changes catalog metadata.
func IsDDL(statement string) bool {
	upper := strings.ToUpper(strings.TrimSpace(statement))
	for _, prefix := range ddlPrefixes {
		if strings.HasPrefix(upper, prefix+" ") || upper == prefix {
			return true
		}
	}
	return false
}
