package querykit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// Dialect parameterizes the time-window rewriter per vendor query language.
// One rewriter core, thin per-vendor syntax.
type Dialect struct {
	Name string

	// AggregateHints are the aggregate keys a flattener probes for when a
	// record has no declared result alias.
	AggregateHints []string

	// TimeClause renders the absolute time-bound clause from millisecond
	// epoch bounds. BucketClause renders the timeseries/step clause.
	TimeClause   func(startMillis, endMillis int64) string
	BucketClause func(bucketSeconds int64) string
}

// NRQL is the NewRelic query language dialect. Clause order on output is
// SINCE...UNTIL, then COMPARE WITH, then TIMESERIES; NRQL rejects duplicates
// of any of them, so the rewriter strips before it appends.
var NRQL = Dialect{
	Name:           "nrql",
	AggregateHints: []string{"result", "score", "count", "average", "sum", "min", "max", "median"},
	TimeClause: func(startMillis, endMillis int64) string {
		return fmt.Sprintf("SINCE %d UNTIL %d", startMillis, endMillis)
	},
	BucketClause: func(bucketSeconds int64) string {
		return fmt.Sprintf("TIMESERIES %d SECONDS", bucketSeconds)
	},
}

var (
	compareStartRe    = regexp.MustCompile(`(?i)\bCOMPARE\s+WITH\b`)
	sinceStartRe      = regexp.MustCompile(`(?i)\bSINCE\b`)
	untilStartRe      = regexp.MustCompile(`(?i)\bUNTIL\b`)
	afterCompareRe    = regexp.MustCompile(`(?i)\b(LIMIT|TIMESERIES|FACET)\b`)
	afterSinceRe      = regexp.MustCompile(`(?i)\b(UNTIL|COMPARE|LIMIT|TIMESERIES|FACET)\b`)
	afterUntilRe      = regexp.MustCompile(`(?i)\b(COMPARE|LIMIT|TIMESERIES|FACET)\b`)
	timeseriesRe      = regexp.MustCompile(`(?i)(?:\bLIMIT\s+MAX\s+)?\bTIMESERIES(?:\s+MAX\b|\s+AUTO\b|\s+\d+\s+\w+)?`)
	multipleSpacesRe  = regexp.MustCompile(`\s+`)
	timeseriesProbeRe = regexp.MustCompile(`(?i)\btimeseries\b`)
)

// HasTimeseriesClause reports whether the query already carries a
// timeseries keyword, used to auto-detect the has_timeseries flag.
func HasTimeseriesClause(query string) bool {
	return timeseriesProbeRe.MatchString(query)
}

// InjectOptions tunes a single InjectTimeWindow call.
type InjectOptions struct {
	// HasTimeseries controls whether a bucket clause is appended.
	HasTimeseries bool
	// Now supplies the clock for the invalid-range fallback. Defaults to
	// time.Now.
	Now func() time.Time
	// Logger receives the invalid-range warning. Optional.
	Logger logger.Logger
}

// InjectTimeWindow rewrites query so its time clauses exactly match tr.
// Pre-existing SINCE/UNTIL/TIMESERIES clauses are stripped first; a COMPARE
// WITH clause is extracted and reinserted in its correct position. An
// invalid range (lt <= geq) falls back to the hour ending now.
func (d Dialect) InjectTimeWindow(query string, tr models.TimeRange, opts InjectOptions) string {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	original := strings.TrimSpace(query)
	q := original

	tr, substituted := tr.OrDefault(now())
	if substituted && opts.Logger != nil {
		opts.Logger.Warn("invalid time range (start >= end); defaulting to last 1 hour", "query", original)
	}

	timeClause := d.TimeClause(tr.StartMillis(), tr.EndMillis())
	bucketClause := d.BucketClause(BucketSeconds(tr.SpanSeconds()))

	var compareClause string
	q, compareClause = extractClause(q, compareStartRe, afterCompareRe)
	q, _ = extractClause(q, sinceStartRe, afterSinceRe)
	q, _ = extractClause(q, untilStartRe, afterUntilRe)
	q = strings.TrimSpace(timeseriesRe.ReplaceAllString(q, ""))

	q += " " + timeClause
	if compareClause != "" {
		q += " " + compareClause
	}
	if opts.HasTimeseries {
		q += " " + bucketClause
	}

	return strings.TrimSpace(multipleSpacesRe.ReplaceAllString(q, " "))
}

// extractClause removes the clause that starts at the first match of
// startRe and runs until the next clause keyword (boundaryRe) or the end of
// the string. Returns the query without the clause, and the clause text.
func extractClause(query string, startRe, boundaryRe *regexp.Regexp) (string, string) {
	loc := startRe.FindStringIndex(query)
	if loc == nil {
		return query, ""
	}
	rest := query[loc[1]:]
	end := len(query)
	if b := boundaryRe.FindStringIndex(rest); b != nil {
		end = loc[1] + b[0]
	}
	clause := strings.TrimSpace(query[loc[0]:end])
	stripped := strings.TrimSpace(query[:loc[0]] + query[end:])
	return stripped, clause
}

// NormalizeSQL is the entire extent of SQL-family rewriting: trim and drop a
// trailing semicolon. Time windowing for SQL queries is the caller's
// responsibility via WHERE clauses in the query text.
func NormalizeSQL(query string) string {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}
