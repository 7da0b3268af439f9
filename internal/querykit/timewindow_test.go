package querykit

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/playbookd/sourcekit/internal/models"
)

func fixedNow() time.Time {
	return time.Unix(1700010000, 0).UTC()
}

func TestInjectTimeWindow_ReplacesStaleClauses(t *testing.T) {
	q := "SELECT average(duration) FROM Transaction TIMESERIES SINCE 1 DAY AGO"
	tr := models.TimeRange{GEq: 1700000000, Lt: 1700003600}

	out := NRQL.InjectTimeWindow(q, tr, InjectOptions{HasTimeseries: true, Now: fixedNow})

	assert.Contains(t, out, "SINCE 1700000000000 UNTIL 1700003600000")
	assert.Contains(t, out, "TIMESERIES 60 SECONDS")
	assert.NotContains(t, out, "1 DAY AGO")
}

func TestInjectTimeWindow_NeverDuplicatesClauses(t *testing.T) {
	queries := []string{
		"SELECT count(*) FROM Transaction SINCE 3 hours ago UNTIL 1 hour ago TIMESERIES AUTO",
		"SELECT count(*) FROM Transaction SINCE 1700000000 UNTIL 1700003600 TIMESERIES 300 SECONDS",
		"SELECT count(*) FROM Transaction LIMIT MAX TIMESERIES",
		"SELECT count(*) FROM Transaction",
	}
	tr := models.TimeRange{GEq: 1700000000, Lt: 1700003600}

	for _, q := range queries {
		out := NRQL.InjectTimeWindow(q, tr, InjectOptions{HasTimeseries: true, Now: fixedNow})
		assert.Equal(t, 1, strings.Count(strings.ToUpper(out), "SINCE"), "query: %s -> %s", q, out)
		assert.Equal(t, 1, strings.Count(strings.ToUpper(out), "UNTIL"), "query: %s -> %s", q, out)
		assert.Equal(t, 1, strings.Count(strings.ToUpper(out), "TIMESERIES"), "query: %s -> %s", q, out)
	}
}

func TestInjectTimeWindow_PreservesCompareWith(t *testing.T) {
	q := "SELECT count(*) FROM Transaction FACET host COMPARE WITH 1 week ago SINCE 1 day ago TIMESERIES"
	tr := models.TimeRange{GEq: 1700000000, Lt: 1700003600}

	out := NRQL.InjectTimeWindow(q, tr, InjectOptions{HasTimeseries: true, Now: fixedNow})

	assert.Contains(t, out, "COMPARE WITH 1 week ago")
	assert.Equal(t, 1, strings.Count(out, "COMPARE WITH"))
	// NRQL clause order: time bounds, then COMPARE WITH, then TIMESERIES.
	sinceIdx := strings.Index(out, "SINCE")
	compareIdx := strings.Index(out, "COMPARE WITH")
	tsIdx := strings.Index(out, "TIMESERIES")
	assert.Less(t, sinceIdx, compareIdx)
	assert.Less(t, compareIdx, tsIdx)
}

func TestInjectTimeWindow_InvalidRangeFallsBackToLastHour(t *testing.T) {
	q := "SELECT count(*) FROM Transaction TIMESERIES"
	tr := models.TimeRange{GEq: 1700003600, Lt: 1700000000} // lt <= geq

	out := NRQL.InjectTimeWindow(q, tr, InjectOptions{HasTimeseries: true, Now: fixedNow})

	end := fixedNow().Unix() * 1000
	start := end - 3600*1000
	assert.Contains(t, out, "SINCE "+itoa(start)+" UNTIL "+itoa(end))
}

func TestInjectTimeWindow_NoBucketClauseForNonTimeseries(t *testing.T) {
	q := "SELECT count(*) FROM Transaction SINCE 1 day ago"
	tr := models.TimeRange{GEq: 1700000000, Lt: 1700003600}

	out := NRQL.InjectTimeWindow(q, tr, InjectOptions{HasTimeseries: false, Now: fixedNow})

	assert.NotContains(t, out, "TIMESERIES")
	assert.Contains(t, out, "SINCE 1700000000000 UNTIL 1700003600000")
}

func TestHasTimeseriesClause(t *testing.T) {
	assert.True(t, HasTimeseriesClause("SELECT count(*) FROM Txn TIMESERIES"))
	assert.True(t, HasTimeseriesClause("select count(*) from Txn timeseries 5 minute"))
	assert.False(t, HasTimeseriesClause("SELECT count(*) FROM Txn"))
}

func TestNormalizeSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", NormalizeSQL("  SELECT 1;  "))
	assert.Equal(t, "SELECT 1", NormalizeSQL("SELECT 1;;"))
	assert.Equal(t, "SELECT 1", NormalizeSQL("SELECT 1"))
}

func TestBucketSeconds(t *testing.T) {
	cases := []struct {
		span int64
		want int64
	}{
		{0, 60},
		{-5, 60},
		{600, 60},
		{3600, 60},
		{7200, 300},
		{86400, 3600},  // exactly 1 day -> 1h floor for >12h spans
		{86402, 10800}, // just over a day -> 3h floor
		{605000, 21600},
		{2600000, 43200},
		{10000000, 43200}, // ideal ~28571 -> 12h
	}
	for _, c := range cases {
		assert.Equal(t, c.want, BucketSeconds(c.span), "span %d", c.span)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
