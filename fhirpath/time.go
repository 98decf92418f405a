package fhirpath

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateRe/timeRe/dateTimeRe accept any leftward-truncated prefix of the
// full form, per FHIRPath's partial-precision literals: @2020,
// @2020-01, @2020-01-05 are all valid Dates; @T10, @T10:30,
// @T10:30:00.000 are all valid Times.
var (
	dateRe     = regexp.MustCompile(`^@(\d{4})(?:-(\d{2})(?:-(\d{2}))?)?$`)
	timeRe     = regexp.MustCompile(`^@T(\d{2})(?::(\d{2})(?::(\d{2})(?:\.(\d+))?)?)?$`)
	dateTimeRe = regexp.MustCompile(`^@(\d{4})(?:-(\d{2})(?:-(\d{2})(?:T(\d{2})(?::(\d{2})(?::(\d{2})(?:\.(\d+))?)?)?(Z|[+-]\d{2}:\d{2})?)?)?)?$`)
)

// Date is a FHIRPath date literal truncated to the precision actually
// written (Year, Month, or Day).
type Date struct {
	Year      int
	Month     int // 1-12, 0 if unspecified
	Day       int // 1-31, 0 if unspecified
	Precision TemporalPrecision
}

// ParseDate parses a `@YYYY[-MM[-DD]]` literal (leading `@` required).
func ParseDate(text string) (Date, error) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return Date{}, fmt.Errorf("invalid date literal %q", text)
	}
	d := Date{Precision: PrecisionYear}
	d.Year, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		d.Month, _ = strconv.Atoi(m[2])
		d.Precision = PrecisionMonth
	}
	if m[3] != "" {
		d.Day, _ = strconv.Atoi(m[3])
		d.Precision = PrecisionDay
	}
	return d, nil
}

func (d Date) Children(name ...string) Collection { return nil }
func (d Date) ToBoolean(explicit bool) (Boolean, bool, error) { return false, false, nil }
func (d Date) ToString(explicit bool) (String, bool, error) {
	return String(d.String()), true, nil
}
func (d Date) ToInteger(explicit bool) (Integer, bool, error)   { return 0, false, nil }
func (d Date) ToDecimal(explicit bool) (Decimal, bool, error)   { return Decimal{}, false, nil }
func (d Date) ToDate(explicit bool) (Date, bool, error)         { return d, true, nil }
func (d Date) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (d Date) ToDateTime(explicit bool) (DateTime, bool, error) {
	return DateTime{Date: d, Precision: d.Precision, HasTZ: false}, true, nil
}
func (d Date) ToQuantity(explicit bool) (Quantity, bool, error) { return Quantity{}, false, nil }

func (d Date) Equal(other Value) (eq bool, ok bool) {
	o, isDate := other.(Date)
	if !isDate {
		if dt, isDT := other.(DateTime); isDT {
			return d.Equal(dt.Date)
		}
		return false, true
	}
	if d.Precision != o.Precision {
		return false, false
	}
	return d.comparableFields() == o.comparableFields(), true
}

func (d Date) Equivalent(other Value) bool {
	o, ok := other.(Date)
	if !ok {
		return false
	}
	return d.Precision == o.Precision && d.comparableFields() == o.comparableFields()
}

func (d Date) comparableFields() [3]int { return [3]int{d.Year, d.Month, d.Day} }

func (d Date) Cmp(other Value) (cmp int, ok bool, err error) {
	o, isDate := other.(Date)
	if !isDate {
		return 0, false, fmt.Errorf("can not compare Date to %T", other)
	}
	prec := d.Precision
	if o.Precision < prec {
		prec = o.Precision
	}
	af, bf := d.comparableFields(), o.comparableFields()
	limit := 1
	if prec >= PrecisionMonth {
		limit = 2
	}
	if prec >= PrecisionDay {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		if af[i] != bf[i] {
			if af[i] < bf[i] {
				return -1, true, nil
			}
			return 1, true, nil
		}
	}
	if d.Precision != o.Precision {
		return 0, false, nil
	}
	return 0, true, nil
}

func (d Date) TypeInfo() TypeInfo { return SimpleTypeInfo{Namespace: "System", Name: "Date"} }

func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

// Time is a FHIRPath time-of-day literal, precision-truncated.
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Millisecond int
	Precision   TemporalPrecision
}

// ParseTime parses a `@THH[:MM[:SS[.sss]]]` literal.
func ParseTime(text string) (Time, error) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return Time{}, fmt.Errorf("invalid time literal %q", text)
	}
	t := Time{Precision: PrecisionHour}
	t.Hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		t.Minute, _ = strconv.Atoi(m[2])
		t.Precision = PrecisionMinute
	}
	if m[3] != "" {
		t.Second, _ = strconv.Atoi(m[3])
		t.Precision = PrecisionSecond
	}
	if m[4] != "" {
		frac := (m[4] + "000")[:3]
		t.Millisecond, _ = strconv.Atoi(frac)
		t.Precision = PrecisionMillisecond
	}
	return t, nil
}

func (t Time) Children(name ...string) Collection                  { return nil }
func (t Time) ToBoolean(explicit bool) (Boolean, bool, error)       { return false, false, nil }
func (t Time) ToString(explicit bool) (String, bool, error)         { return String(t.String()), true, nil }
func (t Time) ToInteger(explicit bool) (Integer, bool, error)       { return 0, false, nil }
func (t Time) ToDecimal(explicit bool) (Decimal, bool, error)       { return Decimal{}, false, nil }
func (t Time) ToDate(explicit bool) (Date, bool, error)             { return Date{}, false, nil }
func (t Time) ToTime(explicit bool) (Time, bool, error)             { return t, true, nil }
func (t Time) ToDateTime(explicit bool) (DateTime, bool, error)     { return DateTime{}, false, nil }
func (t Time) ToQuantity(explicit bool) (Quantity, bool, error)     { return Quantity{}, false, nil }

func (t Time) comparableFields() [4]int {
	return [4]int{t.Hour, t.Minute, t.Second, t.Millisecond}
}

func (t Time) Equal(other Value) (eq bool, ok bool) {
	o, isTime := other.(Time)
	if !isTime {
		return false, true
	}
	if t.Precision != o.Precision {
		return false, false
	}
	return t.comparableFields() == o.comparableFields(), true
}

func (t Time) Equivalent(other Value) bool {
	o, ok := other.(Time)
	if !ok {
		return false
	}
	return t.Precision == o.Precision && t.comparableFields() == o.comparableFields()
}

func (t Time) Cmp(other Value) (cmp int, ok bool, err error) {
	o, isTime := other.(Time)
	if !isTime {
		return 0, false, fmt.Errorf("can not compare Time to %T", other)
	}
	prec := t.Precision
	if o.Precision < prec {
		prec = o.Precision
	}
	af, bf := t.comparableFields(), o.comparableFields()
	limit := int(prec-PrecisionHour) + 1
	for i := 0; i < limit; i++ {
		if af[i] != bf[i] {
			if af[i] < bf[i] {
				return -1, true, nil
			}
			return 1, true, nil
		}
	}
	if t.Precision != o.Precision {
		return 0, false, nil
	}
	return 0, true, nil
}

func (t Time) TypeInfo() TypeInfo { return SimpleTypeInfo{Namespace: "System", Name: "Time"} }

func (t Time) String() string {
	switch t.Precision {
	case PrecisionHour:
		return fmt.Sprintf("%02d", t.Hour)
	case PrecisionMinute:
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	case PrecisionSecond:
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	default:
		return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
	}
}

// DateTime combines Date with an optional time-of-day and offset.
type DateTime struct {
	Date      Date
	Time      Time
	HasTime   bool
	HasTZ     bool
	TZOffsetMinutes int
	Precision TemporalPrecision
}

// ParseDateTime parses the full `@YYYY[-MM[-DD[THH[:MM[:SS[.sss]]]][Z|+hh:mm]]]` grammar.
func ParseDateTime(text string) (DateTime, error) {
	m := dateTimeRe.FindStringSubmatch(text)
	if m == nil {
		return DateTime{}, fmt.Errorf("invalid datetime literal %q", text)
	}
	dt := DateTime{Precision: PrecisionYear}
	dt.Date.Year, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		dt.Date.Month, _ = strconv.Atoi(m[2])
		dt.Date.Precision = PrecisionMonth
		dt.Precision = PrecisionMonth
	}
	if m[3] != "" {
		dt.Date.Day, _ = strconv.Atoi(m[3])
		dt.Date.Precision = PrecisionDay
		dt.Precision = PrecisionDay
	}
	if m[4] != "" {
		dt.HasTime = true
		dt.Time.Hour, _ = strconv.Atoi(m[4])
		dt.Time.Precision = PrecisionHour
		dt.Precision = PrecisionHour
	}
	if m[5] != "" {
		dt.Time.Minute, _ = strconv.Atoi(m[5])
		dt.Time.Precision = PrecisionMinute
		dt.Precision = PrecisionMinute
	}
	if m[6] != "" {
		dt.Time.Second, _ = strconv.Atoi(m[6])
		dt.Time.Precision = PrecisionSecond
		dt.Precision = PrecisionSecond
	}
	if m[7] != "" {
		frac := (m[7] + "000")[:3]
		dt.Time.Millisecond, _ = strconv.Atoi(frac)
		dt.Time.Precision = PrecisionMillisecond
		dt.Precision = PrecisionMillisecond
	}
	if m[8] != "" {
		dt.HasTZ = true
		if m[8] != "Z" {
			sign := 1
			offs := m[8]
			if strings.HasPrefix(offs, "-") {
				sign = -1
			}
			offs = strings.TrimLeft(offs, "+-")
			parts := strings.Split(offs, ":")
			h, _ := strconv.Atoi(parts[0])
			mi, _ := strconv.Atoi(parts[1])
			dt.TZOffsetMinutes = sign * (h*60 + mi)
		}
	}
	return dt, nil
}

func (dt DateTime) Children(name ...string) Collection { return nil }
func (dt DateTime) ToBoolean(explicit bool) (Boolean, bool, error) { return false, false, nil }
func (dt DateTime) ToString(explicit bool) (String, bool, error) { return String(dt.String()), true, nil }
func (dt DateTime) ToInteger(explicit bool) (Integer, bool, error) { return 0, false, nil }
func (dt DateTime) ToDecimal(explicit bool) (Decimal, bool, error) { return Decimal{}, false, nil }
func (dt DateTime) ToDate(explicit bool) (Date, bool, error)       { return dt.Date, true, nil }
func (dt DateTime) ToTime(explicit bool) (Time, bool, error) {
	if !dt.HasTime {
		return Time{}, false, nil
	}
	return dt.Time, true, nil
}
func (dt DateTime) ToDateTime(explicit bool) (DateTime, bool, error) { return dt, true, nil }
func (dt DateTime) ToQuantity(explicit bool) (Quantity, bool, error) { return Quantity{}, false, nil }

func (dt DateTime) normalizeUTC() (DateTime, bool) {
	if !dt.HasTZ || dt.TZOffsetMinutes == 0 {
		return dt, true
	}
	if dt.Precision < PrecisionHour {
		return dt, true
	}
	t := time.Date(dt.Date.Year, time.Month(max(dt.Date.Month, 1)), max(dt.Date.Day, 1),
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Millisecond*1e6, time.UTC)
	t = t.Add(-time.Duration(dt.TZOffsetMinutes) * time.Minute)
	out := dt
	out.Date.Year, out.Date.Month, out.Date.Day = t.Year(), int(t.Month()), t.Day()
	out.Time.Hour, out.Time.Minute, out.Time.Second = t.Hour(), t.Minute(), t.Second()
	out.TZOffsetMinutes = 0
	return out, true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (dt DateTime) Equal(other Value) (eq bool, ok bool) {
	o, isDT := other.(DateTime)
	if !isDT {
		if d, isDate := other.(Date); isDate {
			o = DateTime{Date: d, Precision: d.Precision}
		} else {
			return false, true
		}
	}
	if dt.Precision != o.Precision || dt.HasTZ != o.HasTZ {
		return false, false
	}
	a, _ := dt.normalizeUTC()
	b, _ := o.normalizeUTC()
	return a.fields() == b.fields(), true
}

func (dt DateTime) Equivalent(other Value) bool {
	eq, ok := dt.Equal(other)
	return ok && eq
}

func (dt DateTime) fields() [7]int {
	return [7]int{dt.Date.Year, dt.Date.Month, dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Millisecond}
}

func (dt DateTime) Cmp(other Value) (cmp int, ok bool, err error) {
	o, isDT := other.(DateTime)
	if !isDT {
		return 0, false, fmt.Errorf("can not compare DateTime to %T", other)
	}
	prec := dt.Precision
	if o.Precision < prec {
		prec = o.Precision
	}
	a, _ := dt.normalizeUTC()
	b, _ := o.normalizeUTC()
	af, bf := a.fields(), b.fields()
	limit := int(prec) + 1
	if limit > 7 {
		limit = 7
	}
	for i := 0; i < limit; i++ {
		if af[i] != bf[i] {
			if af[i] < bf[i] {
				return -1, true, nil
			}
			return 1, true, nil
		}
	}
	if dt.Precision != o.Precision {
		return 0, false, nil
	}
	return 0, true, nil
}

func (dt DateTime) Add(ctx context.Context, other Value) (Value, error) {
	return dt.shift(other, 1)
}

func (dt DateTime) Subtract(ctx context.Context, other Value) (Value, error) {
	return dt.shift(other, -1)
}

// shift applies a calendar-duration Quantity: years/months roll the
// calendar month and clamp the day to the target month's length
// (Jan 31 + 1 month = Feb 28), weeks/days roll the calendar date, and
// hours and smaller units add a fixed duration via time.Time.
func (dt DateTime) shift(other Value, sign int) (Value, error) {
	q, ok := other.(Quantity)
	if !ok {
		return nil, fmt.Errorf("can not add %T to DateTime", other)
	}
	n, err := q.Value.Value.Int64()
	if err != nil {
		return nil, fmt.Errorf("non-integral calendar duration %v", q.Value)
	}
	n *= int64(sign)
	t := time.Date(dt.Date.Year, time.Month(max(dt.Date.Month, 1)), max(dt.Date.Day, 1),
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Millisecond*1e6, time.UTC)
	switch canonicalCalendarUnit(q.Unit) {
	case "year", "month":
		months := int(n)
		if canonicalCalendarUnit(q.Unit) == "year" {
			months *= 12
		}
		day := t.Day()
		t = time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).AddDate(0, months, 0)
		t = t.AddDate(0, 0, min(day, daysInMonth(t.Year(), int(t.Month())))-1)
	case "week":
		t = t.AddDate(0, 0, int(n)*7)
	case "day":
		t = t.AddDate(0, 0, int(n))
	case "hour":
		t = t.Add(time.Duration(n) * time.Hour)
	case "minute":
		t = t.Add(time.Duration(n) * time.Minute)
	case "second":
		t = t.Add(time.Duration(n) * time.Second)
	case "millisecond":
		t = t.Add(time.Duration(n) * time.Millisecond)
	default:
		return nil, fmt.Errorf("unsupported calendar duration unit %q", q.Unit)
	}
	out := dt
	out.Date.Year, out.Date.Month, out.Date.Day = t.Year(), int(t.Month()), t.Day()
	if out.HasTime {
		out.Time.Hour, out.Time.Minute, out.Time.Second = t.Hour(), t.Minute(), t.Second()
		out.Time.Millisecond = t.Nanosecond() / 1e6
	}
	return out, nil
}

func (dt DateTime) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "DateTime"}
}

func (dt DateTime) String() string {
	var b strings.Builder
	b.WriteString(dt.Date.String())
	if dt.HasTime {
		b.WriteString("T")
		b.WriteString(dt.Time.String())
		if dt.HasTZ {
			if dt.TZOffsetMinutes == 0 {
				b.WriteString("Z")
			} else {
				sign := "+"
				off := dt.TZOffsetMinutes
				if off < 0 {
					sign = "-"
					off = -off
				}
				fmt.Fprintf(&b, "%s%02d:%02d", sign, off/60, off%60)
			}
		}
	}
	return b.String()
}
