package models

import "time"

// TimeRange is a half-open UNIX-epoch interval in seconds: [GEq, Lt).
type TimeRange struct {
	GEq int64 `json:"time_geq"`
	Lt  int64 `json:"time_lt"`
}

// Valid reports whether the range has a positive width.
func (tr TimeRange) Valid() bool {
	return tr.Lt > tr.GEq
}

// SpanSeconds returns the width of the range in seconds.
func (tr TimeRange) SpanSeconds() int64 {
	return tr.Lt - tr.GEq
}

// OrDefault returns the range unchanged when valid; otherwise a 1-hour
// window ending at now. The boolean reports whether a substitution happened.
func (tr TimeRange) OrDefault(now time.Time) (TimeRange, bool) {
	if tr.Valid() {
		return tr, false
	}
	end := now.Unix()
	return TimeRange{GEq: end - 3600, Lt: end}, true
}

// StartMillis and EndMillis convert the bounds to milliseconds-since-epoch,
// the unit every vendor time clause in this toolkit is written in.
func (tr TimeRange) StartMillis() int64 { return tr.GEq * 1000 }

func (tr TimeRange) EndMillis() int64 { return tr.Lt * 1000 }

// LastHours is a convenience constructor for CLI one-shot executions.
func LastHours(now time.Time, hours int64) TimeRange {
	end := now.Unix()
	return TimeRange{GEq: end - hours*3600, Lt: end}
}
