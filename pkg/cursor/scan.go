package cursor

import (
	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/query"
)

// Unlimited disables the result limit.
const Unlimited = -1

// ScanOptions controls pagination and direction of a scan. A negative Skip
// is treated as zero and a negative Limit as Unlimited. Limit zero yields
// nothing.
type ScanOptions struct {
	Skip    int
	Limit   int
	Reverse bool
}

// ScanResult holds the matches of a scan in scan order and the number of
// records the matcher was run against.
type ScanResult struct {
	Records []document.Record
	Visited int
}

// Scan walks records forward (or backward when Reverse is set), discarding
// the first Skip matches and stopping after Limit matches. Returned records
// are the source records, not copies.
func Scan(q query.Query, records []document.Record, opts ScanOptions) ScanResult {
	if opts.Limit == 0 {
		return ScanResult{Records: []document.Record{}}
	}
	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	limit := opts.Limit
	if limit < 0 {
		limit = Unlimited
	}

	m := query.NewMatcher(q)
	out := make([]document.Record, 0)
	visited := 0
	n := len(records)
	for i := 0; i < n; i++ {
		idx := i
		if opts.Reverse {
			idx = n - 1 - i
		}
		visited++
		if !m.Match(records[idx]) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, records[idx])
		if limit != Unlimited && len(out) >= limit {
			break
		}
	}
	return ScanResult{Records: out, Visited: visited}
}
