package fhirpath

import (
	"context"
	"time"
)

// timeSourceKey lets tests pin "now" instead of depending on wall clock
// time, via an injectable clock rather than calling time.Now() directly
// in business logic.
type timeSourceKey struct{}

// WithClock overrides the time source used by today()/now()/timeOfDay()
// for a deterministic evaluation.
func WithClock(ctx context.Context, clock func() time.Time) context.Context {
	return context.WithValue(ctx, timeSourceKey{}, clock)
}

func clockFrom(ctx context.Context) time.Time {
	if clock, ok := ctx.Value(timeSourceKey{}).(func() time.Time); ok && clock != nil {
		return clock()
	}
	return time.Now()
}

// registerDateTimeFunctions wires today()/now()/timeOfDay() plus the
// lowBoundary()/highBoundary() precision-widening pair: a
// partial-precision literal like @2020 has a defined range of instants
// it could mean, and these widen it to the earliest/latest moment
// consistent with what was actually written.
func registerDateTimeFunctions(r *Registry) {
	r.registerFunc("today", CategoryDateTime, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		t := clockFrom(ctx)
		return Collection{Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Precision: PrecisionDay}}, nil
	})
	r.registerFunc("now", CategoryDateTime, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		t := clockFrom(ctx)
		_, offset := t.Zone()
		return Collection{DateTime{
			Date:            Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Precision: PrecisionDay},
			Time:            Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Millisecond: t.Nanosecond() / 1e6, Precision: PrecisionMillisecond},
			HasTime:         true,
			HasTZ:           true,
			TZOffsetMinutes: offset / 60,
			Precision:       PrecisionMillisecond,
		}}, nil
	})
	r.registerFunc("timeOfDay", CategoryDateTime, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		t := clockFrom(ctx)
		return Collection{Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Millisecond: t.Nanosecond() / 1e6, Precision: PrecisionMillisecond}}, nil
	})
	r.registerSyncFunc("lowBoundary", CategoryDateTime, func(focus Collection, args []Arg) (Collection, bool, error) {
		return boundaryOp(focus, false)
	})
	r.registerSyncFunc("highBoundary", CategoryDateTime, func(focus Collection, args []Arg) (Collection, bool, error) {
		return boundaryOp(focus, true)
	})
}

// boundaryOp widens a precision-truncated Date/Time/DateTime to the
// earliest (high=false) or latest (high=true) instant it could denote.
func boundaryOp(focus Collection, high bool) (Collection, bool, error) {
	v, ok, err := Singleton[Value](focus)
	if err != nil || !ok {
		return nil, true, err
	}
	switch x := v.(type) {
	case Date:
		return Collection{widenDate(x, high)}, true, nil
	case DateTime:
		return Collection{widenDateTime(x, high)}, true, nil
	case Time:
		return Collection{widenTime(x, high)}, true, nil
	default:
		return nil, true, nil
	}
}

func widenDate(d Date, high bool) Date {
	out := d
	out.Precision = PrecisionDay
	if d.Precision < PrecisionMonth {
		if high {
			out.Month = 12
		} else {
			out.Month = 1
		}
	}
	if d.Precision >= PrecisionDay {
		return out
	}
	if high {
		out.Day = daysInMonth(out.Year, out.Month)
	} else {
		out.Day = 1
	}
	return out
}

func daysInMonth(year, month int) int {
	t := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
	return t.Day()
}

func widenTime(t Time, high bool) Time {
	out := t
	out.Precision = PrecisionMillisecond
	if t.Precision < PrecisionHour {
		if high {
			out.Hour = 23
		}
	}
	if t.Precision < PrecisionMinute {
		if high {
			out.Minute = 59
		}
	}
	if t.Precision < PrecisionSecond {
		if high {
			out.Second = 59
		}
	}
	if t.Precision < PrecisionMillisecond {
		if high {
			out.Millisecond = 999
		}
	}
	return out
}

func widenDateTime(dt DateTime, high bool) DateTime {
	out := dt
	out.Date = widenDate(dt.Date, high)
	out.HasTime = true
	out.Time = widenTime(dt.Time, high)
	out.Precision = PrecisionMillisecond
	return out
}
