package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/logsift/logsift/pkg/logs"
)

// TokenType represents the type of token in a query
type TokenType int

const (
	TokenWord   TokenType = iota // bare term, field name, aggregation keyword
	TokenString                  // "value"
	TokenRegex                   // /pattern/

	TokenEqual // =
	TokenPipe  // |
	TokenStar  // *

	TokenEOF
	TokenIllegal
)

// Token represents a single token in the query
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input string
}

// ParseError reports invalid query syntax with the offending position.
// Parse errors are caller-input failures: the query is never partially
// executed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

// Filter is one clause of a query. All filters of a query combine with
// implicit AND.
type Filter interface {
	Match(e *logs.Entry) bool
}

// FieldMatch matches a named field against a literal or regex.
// Unknown field names are not an error (log data is schema-less);
// they simply match nothing.
type FieldMatch struct {
	Field string
	Value string
	Regex bool

	re *regexp.Regexp
}

func (f *FieldMatch) Match(e *logs.Entry) bool {
	v, ok := e.Field(f.Field)
	if !ok {
		return false
	}
	if f.Regex {
		return f.re.MatchString(v)
	}
	return v == f.Value
}

// FreeText matches a bare term against the message and raw content,
// case-insensitively.
type FreeText struct {
	Term string
}

func (f *FreeText) Match(e *logs.Entry) bool {
	term := strings.ToLower(f.Term)
	return strings.Contains(strings.ToLower(e.Message), term) ||
		strings.Contains(strings.ToLower(e.RawContent), term)
}

// Aggregation is the pipeline stage after `|`. The only supported form is
// `stats count by <field>`.
type Aggregation struct {
	Op      string // always "count"
	GroupBy string
}

// Query is the parsed structured form of a query: AND-combined filters
// plus an optional aggregation pipeline. A nil Pipeline means a plain
// search. Query implements storage.Matcher.
type Query struct {
	Filters  []Filter
	Pipeline *Aggregation

	raw string
}

// Match reports whether an entry satisfies every filter clause.
func (q *Query) Match(e *logs.Entry) bool {
	for _, f := range q.Filters {
		if !f.Match(e) {
			return false
		}
	}
	return true
}

// MatchAll reports whether the query has no filter clauses.
func (q *Query) MatchAll() bool {
	return len(q.Filters) == 0
}

// String returns the original query text.
func (q *Query) String() string {
	return q.raw
}

// Bucket is one fixed-width histogram interval [BucketStart,
// BucketStart+width) with the count of entries falling into it.
type Bucket struct {
	BucketStart int64 `json:"bucket_start"`
	Count       int   `json:"count"`
}

// Group is one row of an aggregation table.
type Group struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// SearchResult carries everything a search run produces: the requested
// page of matches, the exact total, the zero-filled histogram over the
// full requested range, and the aggregation table when the query has a
// pipeline.
type SearchResult struct {
	Matches     []logs.Entry `json:"matches"`
	TotalCount  int          `json:"total_count"`
	Histogram   []Bucket     `json:"histogram"`
	Aggregation []Group      `json:"aggregation,omitempty"`
}
