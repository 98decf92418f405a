package fhirpath

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Quantity pairs a Decimal value with a UCUM unit code. Conversion
// between commensurable units is hand-rolled rather than delegated to a
// UCUM library: the handful of units FHIRPath arithmetic needs (calendar
// durations plus a small set of base SI units) is small enough to table
// directly, the way other standalone ucum packages in the ecosystem
// keep their own conversion tables rather than pull in an external
// dependency for a handful of units.
type Quantity struct {
	Value Decimal
	Unit  string
}

// unitConversion records a factor to the canonical base unit for its
// dimension; two quantities are commensurable iff their units share a
// dimension key.
type unitConversion struct {
	dimension string
	factor    float64 // multiply by this to reach the base unit
}

var ucumTable = map[string]unitConversion{
	"1":    {"dimensionless", 1},
	"mg":   {"mass", 0.001},
	"g":    {"mass", 1},
	"kg":   {"mass", 1000},
	"ug":   {"mass", 0.000001},
	"mL":   {"volume", 0.001},
	"L":    {"volume", 1},
	"mm":   {"length", 0.001},
	"cm":   {"length", 0.01},
	"m":    {"length", 1},
	"km":   {"length", 1000},
	"s":    {"time", 1},
	"min":  {"time", 60},
	"h":    {"time", 3600},
	"d":    {"time", 86400},
	"wk":   {"time", 604800},
	"mo":   {"time", 2629800},
	"a":    {"time", 31557600},
	"ms":   {"time", 0.001},
	"%":    {"dimensionless", 0.01},
	"/min": {"rate", 1.0 / 60},
}

// calendarUnitAliases maps both the long calendar-duration keywords
// ("years", "year") and their UCUM time-unit equivalents onto a single
// canonical key used by DateTime arithmetic: calendar durations use
// calendar rules, not fixed 24-hour/365-day conversions, for year/month.
var calendarUnitAliases = map[string]string{
	"year": "year", "years": "year", "a": "year",
	"month": "month", "months": "month", "mo": "month",
	"week": "week", "weeks": "week", "wk": "week",
	"day": "day", "days": "day", "d": "day",
	"hour": "hour", "hours": "hour", "h": "hour",
	"minute": "minute", "minutes": "minute", "min": "minute",
	"second": "second", "seconds": "second", "s": "second",
	"millisecond": "millisecond", "milliseconds": "millisecond", "ms": "millisecond",
}

func canonicalCalendarUnit(unit string) string {
	return calendarUnitAliases[unit]
}

// IsCalendarDuration reports whether unit is one of the sixteen
// calendar-duration keywords (eight units, singular and plural) or the
// UCUM time unit it corresponds to.
func IsCalendarDuration(unit string) bool {
	_, ok := calendarUnitAliases[unit]
	return ok
}

// ParseQuantityLiteral parses `<number> '<unit>'` or `<number> <calendar-keyword>`
// from one string with number and unit separated by a space. It serves
// String.toQuantity() conversions; the parser reads TokenQuantity lexemes
// with ParseQuantity instead.
func ParseQuantityLiteral(text string) (Quantity, error) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, " ", 2)
	numText := strings.TrimSpace(parts[0])
	d, _, err := apd.NewFromString(numText)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity literal %q: %w", text, err)
	}
	unit := "1"
	if len(parts) == 2 {
		unit = strings.Trim(strings.TrimSpace(parts[1]), "'")
	}
	return Quantity{Value: Decimal{Value: d}, Unit: unit}, nil
}

// ParseQuantity parses a tokenizer TokenQuantity lexeme: a numeric
// literal immediately followed (after optional horizontal whitespace) by
// either a `'ucum code'` string or a bare calendar-duration keyword, e.g.
// `10'mg'` or `4 days`.
func ParseQuantity(text string) (Quantity, error) {
	i := 0
	for i < len(text) && (text[i] == '-' || text[i] == '+' || (text[i] >= '0' && text[i] <= '9') || text[i] == '.') {
		i++
	}
	numText := text[:i]
	rest := strings.TrimLeft(text[i:], " \t")
	d, _, err := apd.NewFromString(numText)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity literal %q: %w", text, err)
	}
	unit := strings.TrimSpace(rest)
	if strings.HasPrefix(unit, "'") && strings.HasSuffix(unit, "'") && len(unit) >= 2 {
		inner, uerr := unescape(unit[1 : len(unit)-1])
		if uerr != nil {
			return Quantity{}, uerr
		}
		unit = inner
	}
	if unit == "" {
		unit = "1"
	}
	return Quantity{Value: Decimal{Value: d}, Unit: unit}, nil
}

// NewQuantity builds a Quantity from a raw numeric literal and unit text,
// as produced by the tokenizer's TokenQuantity handling.
func NewQuantity(numberText, unit string) (Quantity, error) {
	d, _, err := apd.NewFromString(numberText)
	if err != nil {
		return Quantity{}, err
	}
	if unit == "" {
		unit = "1"
	}
	return Quantity{Value: Decimal{Value: d}, Unit: unit}, nil
}

func (q Quantity) dimension() string {
	if conv, ok := ucumTable[q.Unit]; ok {
		return conv.dimension
	}
	if canon := canonicalCalendarUnit(q.Unit); canon != "" {
		return "time"
	}
	return "unknown:" + q.Unit
}

// toBase returns the Quantity's value expressed in its dimension's base
// unit, or ok=false when the unit has no known conversion factor (an
// arbitrary/custom UCUM code is left as-is: it is only commensurable with
// an identical unit string).
func (q Quantity) toBase() (float64, bool) {
	conv, ok := ucumTable[q.Unit]
	if !ok {
		return 0, false
	}
	f, err := q.Value.Value.Float64()
	if err != nil {
		return 0, false
	}
	return f * conv.factor, true
}

func (q Quantity) Children(name ...string) Collection { return nil }
func (q Quantity) ToBoolean(explicit bool) (Boolean, bool, error) { return false, false, nil }
func (q Quantity) ToString(explicit bool) (String, bool, error) {
	return String(q.String()), true, nil
}
func (q Quantity) ToInteger(explicit bool) (Integer, bool, error) { return 0, false, nil }
func (q Quantity) ToDecimal(explicit bool) (Decimal, bool, error) {
	if q.Unit != "1" && q.Unit != "" {
		return Decimal{}, false, nil
	}
	return q.Value, true, nil
}
func (q Quantity) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, nil }
func (q Quantity) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (q Quantity) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (q Quantity) ToQuantity(explicit bool) (Quantity, bool, error) { return q, true, nil }

func (q Quantity) Equal(other Value) (eq bool, ok bool) {
	o, isQty := other.(Quantity)
	if !isQty {
		return false, true
	}
	if q.Unit == o.Unit {
		return q.Value.Value.Cmp(o.Value.Value) == 0, true
	}
	aBase, aOK := q.toBase()
	bBase, bOK := o.toBase()
	if !aOK || !bOK || q.dimension() != o.dimension() {
		return false, false
	}
	return aBase == bBase, true
}

func (q Quantity) Equivalent(other Value) bool {
	o, ok := other.(Quantity)
	if !ok {
		return false
	}
	if q.Unit != o.Unit {
		aBase, aOK := q.toBase()
		bBase, bOK := o.toBase()
		if !aOK || !bOK || q.dimension() != o.dimension() {
			return false
		}
		return aBase == bBase
	}
	return q.Value.Equivalent(o.Value)
}

func (q Quantity) Cmp(other Value) (cmp int, ok bool, err error) {
	o, isQty := other.(Quantity)
	if !isQty {
		return 0, false, fmt.Errorf("can not compare Quantity to %T", other)
	}
	if q.Unit == o.Unit {
		return q.Value.Value.Cmp(o.Value.Value), true, nil
	}
	aBase, aOK := q.toBase()
	bBase, bOK := o.toBase()
	if !aOK || !bOK || q.dimension() != o.dimension() {
		return 0, false, fmt.Errorf("incommensurable units %q and %q", q.Unit, o.Unit)
	}
	switch {
	case aBase < bBase:
		return -1, true, nil
	case aBase > bBase:
		return 1, true, nil
	default:
		return 0, true, nil
	}
}

func (q Quantity) Multiply(ctx context.Context, other Value) (Value, error) {
	o, ok, err := toQuantityOperand(other)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not multiply Quantity by %T", other)
	}
	var result apd.Decimal
	_, err = apdContext(ctx).Mul(&result, q.Value.Value, o.Value.Value)
	if err != nil {
		return nil, err
	}
	return Quantity{Value: Decimal{Value: &result}, Unit: combineUnits(q.Unit, o.Unit, "*")}, nil
}

func (q Quantity) Divide(ctx context.Context, other Value) (Value, error) {
	o, ok, err := toQuantityOperand(other)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not divide Quantity by %T", other)
	}
	if o.Value.Value.IsZero() {
		return nil, nil
	}
	var result apd.Decimal
	_, err = apdContext(ctx).Div(&result, q.Value.Value, o.Value.Value)
	if err != nil {
		return nil, err
	}
	return Quantity{Value: Decimal{Value: &result}, Unit: combineUnits(q.Unit, o.Unit, "/")}, nil
}

func (q Quantity) Add(ctx context.Context, other Value) (Value, error) {
	return q.sameUnitArith(ctx, other, (*apd.Context).Add)
}

func (q Quantity) Subtract(ctx context.Context, other Value) (Value, error) {
	return q.sameUnitArith(ctx, other, (*apd.Context).Sub)
}

func (q Quantity) sameUnitArith(ctx context.Context, other Value, op func(*apd.Context, *apd.Decimal, *apd.Decimal, *apd.Decimal) (apd.Condition, error)) (Value, error) {
	o, ok, err := toQuantityOperand(other)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not operate on Quantity and %T", other)
	}
	if q.dimension() != o.dimension() {
		return nil, fmt.Errorf("incommensurable units %q and %q", q.Unit, o.Unit)
	}
	lf, lok := q.toBase()
	rf, rok := o.toBase()
	if q.Unit == o.Unit || !lok || !rok {
		var result apd.Decimal
		_, err = op(apdContext(ctx), &result, q.Value.Value, o.Value.Value)
		if err != nil {
			return nil, err
		}
		return Quantity{Value: Decimal{Value: &result}, Unit: q.Unit}, nil
	}
	left := apd.New(0, 0)
	left.SetFloat64(lf)
	right := apd.New(0, 0)
	right.SetFloat64(rf)
	var result apd.Decimal
	_, err = op(apdContext(ctx), &result, left, right)
	if err != nil {
		return nil, err
	}
	return Quantity{Value: Decimal{Value: &result}, Unit: baseUnitFor(q.dimension())}, nil
}

func toQuantityOperand(v Value) (Quantity, bool, error) {
	if q, ok := v.(Quantity); ok {
		return q, true, nil
	}
	return v.ToQuantity(false)
}

func combineUnits(a, b, op string) string {
	if b == "1" {
		return a
	}
	if a == "1" && op == "*" {
		return b
	}
	return a + "." + op + "." + b
}

func baseUnitFor(dimension string) string {
	for unit, conv := range ucumTable {
		if conv.dimension == dimension && conv.factor == 1 {
			return unit
		}
	}
	return dimension
}

func (q Quantity) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Quantity"}
}

func (q Quantity) String() string {
	return fmt.Sprintf("%s '%s'", q.Value.String(), q.Unit)
}
