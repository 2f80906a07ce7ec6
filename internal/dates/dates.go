// Package dates resolves one canonical timestamp from the date fields that
// different metadata schemas carry for the same file.
package dates

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/starford/mediatag/internal/apperr"
)

// Precedence decides which successfully parsed candidate wins.
type Precedence int

const (
	// LastWins keeps the last candidate, in priority order, that parses.
	LastWins Precedence = iota
	// FirstWins keeps the first candidate that parses.
	FirstWins
)

// DefaultPrecedence is the policy used by the zero Resolver.
const DefaultPrecedence = LastWins

// ParsePrecedence maps a config value to a Precedence.
func ParsePrecedence(s string) (Precedence, error) {
	switch strings.ToLower(s) {
	case "", "last":
		return LastWins, nil
	case "first":
		return FirstWins, nil
	}
	return LastWins, fmt.Errorf("dates: unknown precedence %q", s)
}

func (p Precedence) String() string {
	if p == FirstWins {
		return "first"
	}
	return "last"
}

// layout is one entry of the format cascade.
type layout struct {
	name  string
	parse func(string) (time.Time, error)
}

func timeLayout(name, l string) layout {
	return layout{name: name, parse: func(s string) (time.Time, error) {
		// Layouts without a zone parse as UTC.
		return time.Parse(l, s)
	}}
}

// cascade is tried in order; the first match is used.
var cascade = []layout{
	timeLayout("rfc3339", time.RFC3339),
	{name: "rfc2822", parse: parseRFC2822},
	timeLayout("datetime", "2006-01-02T15:04:05"),
	timeLayout("datetime-space", "2006-01-02 15:04:05"),
	timeLayout("exif-datetime", "2006:01:02 15:04:05"),
	timeLayout("datetime-minutes-zone", "2006-01-02T15:04Z07:00"),
	timeLayout("datetime-minutes", "2006-01-02T15:04"),
	timeLayout("datetime-minutes-space", "2006-01-02 15:04"),
	timeLayout("date", "2006-01-02"),
	timeLayout("exif-date", "2006:01:02"),
	timeLayout("year-month", "2006-01"),
	timeLayout("year", "2006"),
}

// obsoleteZones are the alphabetic zones RFC 2822 section 4.3 defines.
var obsoleteZones = map[string]int{
	"UT": 0, "GMT": 0,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// parseRFC2822 wraps mail.ParseDate, which resolves a zone abbreviation
// against the local zone database and treats any other name as UTC.
// Alphabetic zones are pinned to their RFC offset instead; unknown ones fail.
func parseRFC2822(s string) (time.Time, error) {
	t, err := mail.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	tok := zoneToken(s)
	if tok == "" || !isAlpha(tok) {
		return t, nil
	}
	off, ok := obsoleteZones[strings.ToUpper(tok)]
	if !ok {
		return time.Time{}, fmt.Errorf("mail: unsupported zone %q", tok)
	}
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), time.FixedZone(strings.ToUpper(tok), off)), nil
}

// zoneToken returns the last field of s with any trailing comment removed.
func zoneToken(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ")") {
		if i := strings.LastIndex(s, "("); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
	}
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Formats returns the names of the recognised formats in cascade order.
func Formats() []string {
	out := make([]string, len(cascade))
	for i, l := range cascade {
		out[i] = l.name
	}
	return out
}

// Parse parses raw against the format cascade. On failure the returned
// error lists every attempted format with its individual failure.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	perr := &apperr.ParseError{Input: raw, Attempts: make([]apperr.FormatFailure, 0, len(cascade))}
	for _, l := range cascade {
		t, err := l.parse(s)
		if err == nil {
			return fixed(t), nil
		}
		perr.Attempts = append(perr.Attempts, apperr.FormatFailure{Format: l.name, Err: err})
	}
	return time.Time{}, perr
}

// fixed pins t to an unnamed fixed-offset zone, or UTC for offset 0.
func fixed(t time.Time) time.Time {
	_, off := t.Zone()
	if off == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", off))
}

// Format serialises a canonical timestamp for writing back to the store.
func Format(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// Candidate is one raw date value and the field it came from. Present is
// false when the field is absent from the container.
type Candidate struct {
	Field   string
	Raw     string
	Present bool
}

// Attempt is the outcome for one present candidate.
type Attempt struct {
	Field string
	Raw   string
	Err   error
}

// Resolution is the result of resolving a candidate set.
type Resolution struct {
	Date     time.Time
	Field    string
	Resolved bool
	Attempts []Attempt
}

// Value returns the resolved date, if any.
func (r Resolution) Value() (time.Time, bool) {
	return r.Date, r.Resolved
}

// Failures returns the attempts whose value did not parse.
func (r Resolution) Failures() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Resolver turns a prioritised candidate set into at most one timestamp.
type Resolver struct {
	Precedence Precedence
}

// Resolve attempts every present candidate independently and keeps one of
// those that parse according to the resolver's precedence. An unresolved
// date is a valid result, never an error.
func (r Resolver) Resolve(candidates []Candidate) Resolution {
	var res Resolution
	for _, c := range candidates {
		if !c.Present {
			continue
		}
		t, err := Parse(c.Raw)
		res.Attempts = append(res.Attempts, Attempt{Field: c.Field, Raw: c.Raw, Err: err})
		if err != nil {
			continue
		}
		if res.Resolved && r.Precedence == FirstWins {
			continue
		}
		res.Date, res.Field, res.Resolved = t, c.Field, true
	}
	return res
}

// Resolve resolves candidates with DefaultPrecedence.
func Resolve(candidates []Candidate) Resolution {
	return Resolver{Precedence: DefaultPrecedence}.Resolve(candidates)
}
