// Package boundary enforces the configured dataset allow-list before any
// request reaches BigQuery. Query filtering is an advisory lexical scan of
// the SQL text, not a parser: it must never reject a query it cannot fully
// understand, only queries whose every detected dataset reference falls
// outside the allow-list.
package boundary

import (
	"fmt"
	"regexp"
	"strings"
)

// Denial reasons carried by DeniedError.
const (
	ReasonNotAllowed = "dataset not in allow-list"
	ReasonMalformed  = "malformed table reference"
)

// DeniedError reports an access-boundary violation.
type DeniedError struct {
	Ref    string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied for %q: %s", e.Ref, e.Reason)
}

// Boundary holds the dataset allow-list. An empty list means unrestricted.
// The set is frozen at construction and safe for concurrent reads.
type Boundary struct {
	allowed map[string]struct{}
}

func New(datasets []string) *Boundary {
	b := &Boundary{}
	if len(datasets) > 0 {
		b.allowed = make(map[string]struct{}, len(datasets))
		for _, d := range datasets {
			b.allowed[d] = struct{}{}
		}
	}
	return b
}

// Unrestricted reports whether every dataset is reachable.
func (b *Boundary) Unrestricted() bool {
	return b.allowed == nil
}

// DatasetAllowed reports whether the dataset may be served.
func (b *Boundary) DatasetAllowed(dataset string) bool {
	if b.allowed == nil {
		return true
	}
	_, ok := b.allowed[dataset]
	return ok
}

// identPattern bounds the characters accepted in each component of a table
// reference. Components flow into SQL identifiers, so anything outside this
// set (backticks in particular) is malformed.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9_$-]+$`)

// CheckTableRef validates a fully-qualified table reference against the
// allow-list. Accepted shapes are dataset.table and project.dataset.table
// with each component restricted to identifier characters; anything else is
// denied as malformed. The allow-list check applies to the dataset
// component.
func (b *Boundary) CheckTableRef(ref string) error {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return &DeniedError{Ref: ref, Reason: ReasonMalformed}
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return &DeniedError{Ref: ref, Reason: ReasonMalformed}
		}
	}
	dataset := parts[len(parts)-2]
	if !b.DatasetAllowed(dataset) {
		return &DeniedError{Ref: ref, Reason: ReasonNotAllowed}
	}
	return nil
}

// refPattern matches dataset.table and project.dataset.table shaped
// identifiers. The leading character class keeps it off numeric literals
// like 1.5, and the prefix group keeps it from re-matching inside a longer
// dotted path.
var refPattern = regexp.MustCompile(`(?i)(^|[^a-z0-9_.$])([a-z_][a-z0-9_-]*)\.([a-z_][a-z0-9_$-]*)(\.[a-z_][a-z0-9_$-]*)?`)

// ReferencedDatasets performs the advisory scan: every dataset.table shaped
// token in the query text contributes its dataset component. Backticks are
// stripped first so quoted references are seen too. Order of first
// appearance is preserved; duplicates are dropped.
func (b *Boundary) ReferencedDatasets(query string) []string {
	text := strings.ReplaceAll(query, "`", "")
	var out []string
	seen := make(map[string]struct{})
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		dataset := m[2]
		if m[4] != "" {
			// project.dataset.table: the middle component is the dataset.
			dataset = m[3]
		}
		if _, ok := seen[dataset]; ok {
			continue
		}
		seen[dataset] = struct{}{}
		out = append(out, dataset)
	}
	return out
}

// CheckQuery denies a query only when references were detected and every
// one of them is outside the allow-list. A query with zero detected
// references passes: the scan is heuristic, and subqueries or templated SQL
// it cannot see fail open. Such invocations surface in the audit trail.
func (b *Boundary) CheckQuery(query string) error {
	if b.allowed == nil {
		return nil
	}
	refs := b.ReferencedDatasets(query)
	if len(refs) == 0 {
		return nil
	}
	for _, d := range refs {
		if b.DatasetAllowed(d) {
			return nil
		}
	}
	return &DeniedError{Ref: strings.Join(refs, ", "), Reason: ReasonNotAllowed}
}

// FilterTables drops every dataset.table entry whose dataset is outside the
// allow-list. Entries without a dataset component are dropped when the
// boundary is restricted.
func (b *Boundary) FilterTables(tables []string) []string {
	if b.allowed == nil {
		return tables
	}
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		parts := strings.Split(t, ".")
		if len(parts) < 2 {
			continue
		}
		if b.DatasetAllowed(parts[len(parts)-2]) {
			out = append(out, t)
		}
	}
	return out
}

// writeKeywords are statement-leading keywords that mark a query as not
// read-only.
var writeKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "drop": {},
	"create": {}, "alter": {}, "truncate": {}, "grant": {}, "revoke": {},
	"call": {}, "begin": {}, "commit": {},
}

// ReadOnly reports whether the statement's leading keyword is permitted for
// the execute-query tool. Leading comments and parentheses are skipped;
// unknown keywords pass, only known write statements are rejected.
func ReadOnly(query string) bool {
	kw := firstKeyword(query)
	if kw == "" {
		return true
	}
	_, write := writeKeywords[kw]
	return !write
}

func firstKeyword(query string) string {
	s := query
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		break
	}
	end := len(s)
	for i, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			end = i
			break
		}
	}
	return strings.ToLower(s[:end])
}
