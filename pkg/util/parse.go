package util

import (
	"strconv"
	"time"
)

// unixMillisCutoff separates second from millisecond timestamps (year 2286 in seconds).
const unixMillisCutoff = 1e10

// ParseTime accepts RFC3339 (with or without fraction), unix seconds and unix
// milliseconds as used by the exchange.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts >= unixMillisCutoff {
		return time.UnixMilli(ts).UTC(), true
	}
	return time.Unix(ts, 0).UTC(), true
}
