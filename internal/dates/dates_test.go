package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/mediatag/internal/apperr"
)

func candidates(raw ...string) []Candidate {
	fields := []string{"xmp:CreateDate", "exif:DateTimeOriginal", "dc:created"}
	out := make([]Candidate, len(raw))
	for i, r := range raw {
		out[i] = Candidate{Field: fields[i%len(fields)], Raw: r, Present: r != ""}
	}
	return out
}

func TestResolve_LastWins(t *testing.T) {
	res := Resolve(candidates("2022-01-01T00:00:00+00:00", "2023-06-15T10:20:30+02:00", "garbage"))
	if !res.Resolved {
		t.Fatal("expected a date")
	}
	want := time.Date(2023, 6, 15, 8, 20, 30, 0, time.UTC)
	if !res.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", res.Date, want)
	}
	if _, off := res.Date.Zone(); off != 2*3600 {
		t.Errorf("offset = %d, want +02:00", off)
	}
	if res.Field != "exif:DateTimeOriginal" {
		t.Errorf("Field = %q", res.Field)
	}
	if f := res.Failures(); len(f) != 1 || f[0].Raw != "garbage" {
		t.Errorf("Failures = %+v", f)
	}
}

func TestResolve_FirstWins(t *testing.T) {
	r := Resolver{Precedence: FirstWins}
	res := r.Resolve(candidates("garbage", "2023-06-15T10:20:30+02:00", "2021-01-01"))
	if !res.Resolved || res.Field != "exif:DateTimeOriginal" {
		t.Errorf("res = %+v", res)
	}
}

func TestResolve_NoDateIsNotAnError(t *testing.T) {
	res := Resolve(candidates("", "not-a-date", ""))
	if res.Resolved {
		t.Fatalf("unexpected date %v", res.Date)
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("absent candidates must not be attempted: %+v", res.Attempts)
	}
	var pe *apperr.ParseError
	if !errors.As(res.Attempts[0].Err, &pe) {
		t.Fatalf("err = %v, want ParseError", res.Attempts[0].Err)
	}
	if len(pe.Attempts) != len(Formats()) {
		t.Errorf("attempts = %d, want %d", len(pe.Attempts), len(Formats()))
	}

	if res := Resolve(nil); res.Resolved {
		t.Error("empty candidate set should not resolve")
	}
}

func TestParse_Cascade(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		offset int
	}{
		{"2022-03-02T22:37:46+05:30", time.Date(2022, 3, 2, 17, 7, 46, 0, time.UTC), 19800},
		{"2022-03-02T22:37:46.125Z", time.Date(2022, 3, 2, 22, 37, 46, 125e6, time.UTC), 0},
		{"Thu, 02 Mar 2022 22:37:46 +0000", time.Date(2022, 3, 2, 22, 37, 46, 0, time.UTC), 0},
		{"Thu, 02 Mar 2022 22:37:46 -0700", time.Date(2022, 3, 3, 5, 37, 46, 0, time.UTC), -7 * 3600},
		{"Thu, 02 Mar 2022 22:37:46 EST", time.Date(2022, 3, 3, 3, 37, 46, 0, time.UTC), -5 * 3600},
		{"Thu, 02 Mar 2022 22:37:46 PDT", time.Date(2022, 3, 3, 5, 37, 46, 0, time.UTC), -7 * 3600},
		{"Thu, 02 Mar 2022 22:37:46 GMT", time.Date(2022, 3, 2, 22, 37, 46, 0, time.UTC), 0},
		{"Thu, 02 Mar 2022 22:37:46 -0500 (EST)", time.Date(2022, 3, 3, 3, 37, 46, 0, time.UTC), -5 * 3600},
		{"2022-03-02T22:37:46", time.Date(2022, 3, 2, 22, 37, 46, 0, time.UTC), 0},
		{"2022-03-02 22:37:46", time.Date(2022, 3, 2, 22, 37, 46, 0, time.UTC), 0},
		{"2022:03:02 22:37:46", time.Date(2022, 3, 2, 22, 37, 46, 0, time.UTC), 0},
		{"2022-03-02T22:37+01:00", time.Date(2022, 3, 2, 21, 37, 0, 0, time.UTC), 3600},
		{"2022-03-02T22:37", time.Date(2022, 3, 2, 22, 37, 0, 0, time.UTC), 0},
		{"2022-03-02", time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC), 0},
		{"2022:03:02", time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC), 0},
		{"2022-03", time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), 0},
		{" 2022 ", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if _, off := got.Zone(); off != tt.offset {
				t.Errorf("offset = %d, want %d", off, tt.offset)
			}
			if got.Location() == time.Local {
				t.Error("result must not use the local zone")
			}
		})
	}
}

func TestParse_NamedZoneIgnoresLocal(t *testing.T) {
	// An abbreviation unknown to the local zone must not collapse to UTC.
	old := time.Local
	time.Local = time.UTC
	defer func() { time.Local = old }()

	got, err := Parse("Thu, 02 Jun 2022 22:37:46 EST")
	if err != nil {
		t.Fatal(err)
	}
	if _, off := got.Zone(); off != -5*3600 {
		t.Errorf("offset = %d, want %d", off, -5*3600)
	}
}

func TestParse_UnknownZoneRejected(t *testing.T) {
	_, err := Parse("Thu, 02 Mar 2022 22:37:46 XYZ")
	var pe *apperr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Attempts[1].Format != "rfc2822" || pe.Attempts[1].Err == nil {
		t.Errorf("rfc2822 attempt = %+v", pe.Attempts[1])
	}
}

func TestParse_FailureListsEveryFormat(t *testing.T) {
	_, err := Parse("not-a-date")
	var pe *apperr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	names := Formats()
	for i, a := range pe.Attempts {
		if a.Format != names[i] || a.Err == nil {
			t.Errorf("attempt %d = %+v", i, a)
		}
	}
	if pe.Input != "not-a-date" {
		t.Errorf("Input = %q", pe.Input)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	in := time.Date(2023, 6, 15, 10, 20, 30, 0, time.FixedZone("", 2*3600))
	s := Format(in)
	if s != "2023-06-15T10:20:30+02:00" {
		t.Errorf("Format = %q", s)
	}
	out, err := Parse(s)
	if err != nil || !out.Equal(in) {
		t.Errorf("Parse(Format) = %v, %v", out, err)
	}
}

func TestParsePrecedence(t *testing.T) {
	for in, want := range map[string]Precedence{"": LastWins, "last": LastWins, "FIRST": FirstWins} {
		if got, err := ParsePrecedence(in); err != nil || got != want {
			t.Errorf("ParsePrecedence(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePrecedence("middle"); err == nil {
		t.Error("expected error")
	}
}
