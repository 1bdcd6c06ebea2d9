// Package sms turns loosely typed panel rows into validated SMS records
package sms

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	pstrings "otprelay/internal/platform/strings"

	"github.com/cespare/xxhash/v2"
)

// TimestampLayout is the panel's date-time format
const TimestampLayout = "2006-01-02 15:04:05"

// IdentityPrefixRunes is how much of the message body feeds the identity digest
// Two long messages that share this prefix at the same second and number collide
const IdentityPrefixRunes = 50

// Record is one validated SMS row
type Record struct {
	Timestamp    time.Time
	RawTimestamp string
	Route        string
	Number       string
	Service      string
	Client       string
	Message      string
}

// Identity is the ledger key of a record
type Identity string

// ID derives the record identity: raw timestamp, number and a digest of the message head
func (r Record) ID() Identity {
	head := pstrings.HeadRunes(r.Message, IdentityPrefixRunes)
	return Identity(fmt.Sprintf("%s_%s_%016x", r.RawTimestamp, r.Number, xxhash.Sum64String(head)))
}

// Country is the leading route token before a dash, or Unknown
func (r Record) Country() string {
	c, _, _ := strings.Cut(r.Route, "-")
	return pstrings.Or(strings.TrimSpace(c), "Unknown")
}

// Reason says why a row was dropped
type Reason string

const (
	// ReasonNotRow means the value was a scalar or a mapping
	ReasonNotRow Reason = "not_row"
	// ReasonShort means fewer fields than the layout needs
	ReasonShort Reason = "short"
	// ReasonTimestampType means field 0 was not text
	ReasonTimestampType Reason = "timestamp_type"
	// ReasonSentinel means an aggregate or summary row
	ReasonSentinel Reason = "sentinel"
	// ReasonTimestampFormat means field 0 did not parse as a timestamp
	ReasonTimestampFormat Reason = "timestamp_format"
	// ReasonFieldType means a mapped field held a nested value
	ReasonFieldType Reason = "field_type"
)

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Validator converts raw rows for one profile
type Validator struct {
	Profile Profile
	// Location is used to parse timestamps; nil means time.Local
	Location *time.Location
	// Lenient accepts a date prefix without a full time part
	Lenient bool
}

// Tally counts dropped rows by reason
type Tally map[Reason]int

// Total is the number of dropped rows
func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

// Rows returns the valid records in input order plus a tally of the rest
// Dropped rows are expected on every poll, so they are counted rather than reported
func (v Validator) Rows(raw []any) ([]Record, Tally) {
	out := make([]Record, 0, len(raw))
	tally := Tally{}
	for _, r := range raw {
		rec, reason := v.Row(r)
		if reason != "" {
			tally[reason]++
			continue
		}
		out = append(out, rec)
	}
	return out, tally
}

// Row validates one raw row; a non-empty Reason means it was rejected
func (v Validator) Row(raw any) (Record, Reason) {
	fields, ok := raw.([]any)
	if !ok {
		return Record{}, ReasonNotRow
	}
	p := v.Profile
	if len(fields) < p.MinFields() {
		return Record{}, ReasonShort
	}
	ts, ok := fields[p.TS].(string)
	if !ok {
		return Record{}, ReasonTimestampType
	}
	ts = strings.TrimSpace(ts)
	if strings.HasPrefix(ts, "0,") || strings.Contains(ts, ",") {
		return Record{}, ReasonSentinel
	}
	if !datePrefix.MatchString(ts) {
		return Record{}, ReasonTimestampFormat
	}
	loc := v.Location
	if loc == nil {
		loc = time.Local
	}
	parsed, err := time.ParseInLocation(TimestampLayout, ts, loc)
	if err != nil {
		if !v.Lenient {
			return Record{}, ReasonTimestampFormat
		}
		if parsed, err = time.ParseInLocation("2006-01-02", ts[:10], loc); err != nil {
			return Record{}, ReasonTimestampFormat
		}
	}

	rec := Record{Timestamp: parsed, RawTimestamp: ts}
	for _, f := range []struct {
		idx int
		dst *string
	}{
		{p.Route, &rec.Route},
		{p.Number, &rec.Number},
		{p.Service, &rec.Service},
		{p.Client, &rec.Client},
		{p.Message, &rec.Message},
	} {
		if f.idx < 0 {
			continue
		}
		s, ok := text(fields[f.idx])
		if !ok {
			return Record{}, ReasonFieldType
		}
		*f.dst = s
	}
	return rec, ""
}

// text coerces a decoded JSON scalar to a trimmed string
func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// SortOldestFirst orders records by timestamp ascending; equal timestamps keep input order
func SortOldestFirst(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) })
}
