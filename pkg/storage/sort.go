package storage

import (
	"sort"
	"strconv"

	"github.com/logsift/logsift/pkg/logs"
)

// SortEntries orders entries by the requested field. Log data is
// schema-less, so field values are compared with lazy type inference:
// numerically when both sides parse as numbers, lexically otherwise.
// Ties always break by ID for stable pagination.
func SortEntries(entries []logs.Entry, field string, ascending bool) {
	if field == "" {
		field = "timestamp"
	}

	sort.Slice(entries, func(i, j int) bool {
		cmp := compareField(&entries[i], &entries[j], field)
		if cmp == 0 {
			cmp = compareStrings(entries[i].ID, entries[j].ID)
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
}

// Page slices out a zero-based page. A page past the end returns an empty
// (non-nil) slice so callers can distinguish "no results" from "error".
func Page(entries []logs.Entry, page, pageSize int) []logs.Entry {
	if pageSize <= 0 {
		return entries
	}
	start := page * pageSize
	if start >= len(entries) {
		return []logs.Entry{}
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

func compareField(a, b *logs.Entry, field string) int {
	if field == "timestamp" {
		return compareInt64(a.Timestamp, b.Timestamp)
	}

	av, aok := a.Field(field)
	bv, bok := b.Field(field)

	// Entries missing the field sort after entries that have it.
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}

	if an, err := strconv.ParseFloat(av, 64); err == nil {
		if bn, err := strconv.ParseFloat(bv, 64); err == nil {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	return compareStrings(av, bv)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
