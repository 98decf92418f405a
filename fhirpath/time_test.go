package fhirpath

import (
	"context"
	"testing"
)

func TestParseDatePrecision(t *testing.T) {
	cases := map[string]TemporalPrecision{
		"@2015":       PrecisionYear,
		"@2015-02":    PrecisionMonth,
		"@2015-02-04": PrecisionDay,
	}
	for src, want := range cases {
		d, err := ParseDate(src)
		if err != nil {
			t.Fatalf("%q: %v", src, err)
		}
		if d.Precision != want {
			t.Errorf("%q: precision = %v, want %v", src, d.Precision, want)
		}
	}
}

func TestParseDateRejectsMalformed(t *testing.T) {
	if _, err := ParseDate("@2015-2"); err == nil {
		t.Errorf("expected error for single-digit month")
	}
}

func TestDateEqualMixedPrecisionIsUndefined(t *testing.T) {
	a, err := ParseDate("@2015-02")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseDate("@2015-02-01")
	if err != nil {
		t.Fatal(err)
	}
	_, ok := a.Equal(b)
	if ok {
		t.Errorf("comparing a Month-precision date to a Day-precision date should be undefined (ok=false)")
	}
}

func TestDateEqualSamePrecision(t *testing.T) {
	a, _ := ParseDate("@2015-02-04")
	b, _ := ParseDate("@2015-02-04")
	eq, ok := a.Equal(b)
	if !ok || !eq {
		t.Errorf("identical dates should compare equal: eq=%v ok=%v", eq, ok)
	}
}

func TestDateCmpOrdersByCommonPrecision(t *testing.T) {
	a, _ := ParseDate("@2015-01")
	b, _ := ParseDate("@2015-02")
	cmp, ok, err := a.Cmp(b)
	if err != nil || !ok {
		t.Fatalf("Cmp failed: ok=%v err=%v", ok, err)
	}
	if cmp >= 0 {
		t.Errorf("Cmp = %d, want negative (Jan < Feb)", cmp)
	}
}

func TestParseTimePrecision(t *testing.T) {
	cases := map[string]TemporalPrecision{
		"@T10":              PrecisionHour,
		"@T10:30":           PrecisionMinute,
		"@T10:30:00":        PrecisionSecond,
		"@T10:30:00.123":    PrecisionMillisecond,
	}
	for src, want := range cases {
		tm, err := ParseTime(src)
		if err != nil {
			t.Fatalf("%q: %v", src, err)
		}
		if tm.Precision != want {
			t.Errorf("%q: precision = %v, want %v", src, tm.Precision, want)
		}
	}
}

func TestParseTimeFractionalPadding(t *testing.T) {
	tm, err := ParseTime("@T10:30:00.5")
	if err != nil {
		t.Fatal(err)
	}
	if tm.Millisecond != 500 {
		t.Errorf("millisecond = %d, want 500 (right-padded from .5)", tm.Millisecond)
	}
}

func TestParseDateTimeFullForm(t *testing.T) {
	dt, err := ParseDateTime("@2015-02-04T10:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if !dt.HasTime || !dt.HasTZ {
		t.Fatalf("expected HasTime and HasTZ, got %+v", dt)
	}
	if dt.Precision != PrecisionSecond {
		t.Errorf("precision = %v, want second", dt.Precision)
	}
}

func TestParseDateTimeOffset(t *testing.T) {
	dt, err := ParseDateTime("@2015-02-04T10:30:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if dt.TZOffsetMinutes != 120 {
		t.Errorf("offset = %d minutes, want 120", dt.TZOffsetMinutes)
	}
}

func TestDateTimeEqualNormalizesTimezone(t *testing.T) {
	a, err := ParseDateTime("@2015-02-04T10:30:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseDateTime("@2015-02-04T08:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	eq, ok := a.Equal(b)
	if !ok || !eq {
		t.Errorf("10:30+02:00 should equal 08:30Z: eq=%v ok=%v", eq, ok)
	}
}

func TestDateTimeShiftCalendarUnits(t *testing.T) {
	dt, err := ParseDateTime("@2015-01-31")
	if err != nil {
		t.Fatal(err)
	}
	one, err := ParseDecimalLiteral("1")
	if err != nil {
		t.Fatal(err)
	}
	q := Quantity{Value: one, Unit: "month"}
	shifted, err := dt.Add(context.Background(), q)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	out, ok := shifted.(DateTime)
	if !ok {
		t.Fatalf("Add returned %T, want DateTime", shifted)
	}
	if out.Date.Month != 2 || out.Date.Year != 2015 {
		t.Errorf("shifted date = %+v, want Feb 2015 (time.AddDate clamping applies)", out.Date)
	}
}

func TestDateStringRoundTripsPrecision(t *testing.T) {
	cases := []string{"@2015", "@2015-02", "@2015-02-04"}
	for _, src := range cases {
		d, err := ParseDate(src)
		if err != nil {
			t.Fatal(err)
		}
		if got := "@" + d.String(); got != src {
			t.Errorf("round trip: got %q, want %q", got, src)
		}
	}
}
