package fixtype

import (
	"fmt"
	"time"
)

// FIX time layouts. UTCTimestamp milliseconds became standard with FIX 4.2;
// both second and millisecond precision are accepted on decode, and encode
// always emits milliseconds.
const (
	utcTimestampMillisLayout = "20060102-15:04:05.000"
	utcTimestampLayout       = "20060102-15:04:05"
	localDateLayout          = "20060102"
)

// ParseUTCTimestamp decodes YYYYMMDD-HH:MM:SS[.sss] in UTC.
func ParseUTCTimestamp(b []byte) (time.Time, error) {
	s := string(b)
	if t, err := time.ParseInLocation(utcTimestampMillisLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(utcTimestampLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid UTCTimestamp value %q", b)
}

// AppendUTCTimestamp encodes t as YYYYMMDD-HH:MM:SS.sss. Sub-millisecond
// precision is truncated; UTCTimestamp does not support it.
func AppendUTCTimestamp(dst []byte, t time.Time) []byte {
	return t.UTC().Truncate(time.Millisecond).AppendFormat(dst, utcTimestampMillisLayout)
}

// ParseLocalDate decodes a LocalMktDate value, YYYYMMDD.
func ParseLocalDate(b []byte) (time.Time, error) {
	t, err := time.ParseInLocation(localDateLayout, string(b), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid LocalMktDate value %q", b)
	}
	return t, nil
}

// AppendLocalDate encodes the date portion of t as YYYYMMDD.
func AppendLocalDate(dst []byte, t time.Time) []byte {
	return t.AppendFormat(dst, localDateLayout)
}
