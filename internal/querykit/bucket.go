// Package querykit rewrites vendor query strings: absolute time-window
// injection, timeseries bucket sizing, and dashboard template-variable
// resolution. Everything here is a pure function of its inputs.
package querykit

const (
	// maxBuckets caps the point count of a timeseries query so charts stay
	// readable regardless of the requested span.
	maxBuckets       = 350
	minBucketSeconds = 60
)

// durationThresholds maps a span lower bound to the minimum bucket size for
// that span. Ordered largest-first; the first matching entry wins.
var durationThresholds = [][2]int64{
	{2592001, 43200}, // > 30 days -> 12h
	{604801, 21600},  // > 7 days -> 6h
	{86401, 10800},   // > 1 day -> 3h
	{43201, 3600},    // > 12 hours -> 1h
	{21601, 1800},    // > 6 hours -> 30m
	{3601, 300},      // > 1 hour -> 5m; anything up to 1h gets 1m buckets
}

// standardBucketSizes are the sizes a computed bucket gets rounded up to:
// 1m, 2m, 5m, 10m, 15m, 30m, 1h, 3h, 6h, 12h, 1d.
var standardBucketSizes = []int64{60, 120, 300, 600, 900, 1800, 3600, 10800, 21600, 43200, 86400}

// BucketSeconds returns the timeseries aggregation bucket for a span of
// totalSeconds. The result is monotonic in the span, at least one minute,
// and keeps the point count under maxBuckets.
func BucketSeconds(totalSeconds int64) int64 {
	if totalSeconds <= 0 {
		return minBucketSeconds
	}

	ideal := (totalSeconds + maxBuckets - 1) / maxBuckets

	minForDuration := int64(minBucketSeconds)
	for _, th := range durationThresholds {
		if totalSeconds >= th[0] {
			minForDuration = th[1]
			break
		}
	}

	bucket := ideal
	if bucket < minBucketSeconds {
		bucket = minBucketSeconds
	}
	if bucket < minForDuration {
		bucket = minForDuration
	}

	for _, std := range standardBucketSizes {
		if bucket <= std {
			return std
		}
	}
	return standardBucketSizes[len(standardBucketSizes)-1]
}
