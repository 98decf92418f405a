package fhirpath

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Value is the FHIRPath value sum type. Every concrete kind,
// Boolean, Integer, Decimal, String, Date, Time, DateTime, Quantity,
// Resource, TypeInfoObject, implements it. Collection, the ordered
// sequence of Values, is itself not a Value; collection nesting is
// flat, and it has its own operator methods instead.
type Value interface {
	// Children returns child nodes with the given names, or every child
	// when no name is given. Primitives return nil.
	Children(name ...string) Collection
	ToBoolean(explicit bool) (v Boolean, ok bool, err error)
	ToString(explicit bool) (v String, ok bool, err error)
	ToInteger(explicit bool) (v Integer, ok bool, err error)
	ToDecimal(explicit bool) (v Decimal, ok bool, err error)
	ToDate(explicit bool) (v Date, ok bool, err error)
	ToTime(explicit bool) (v Time, ok bool, err error)
	ToDateTime(explicit bool) (v DateTime, ok bool, err error)
	ToQuantity(explicit bool) (v Quantity, ok bool, err error)
	Equal(other Value) (eq bool, ok bool)
	Equivalent(other Value) bool
	TypeInfo() TypeInfo
	fmt.Stringer
}

// cmpValue, multiplyValue, ... are narrow capability interfaces: a Value
// only needs to implement the operator it actually supports. Collection's
// arithmetic methods fail fast with a clear error when an operand doesn't
// implement the relevant one, mirroring a conventional
// multiplyElement/addElement/... capability split.
type cmpValue interface {
	Value
	Cmp(other Value) (cmp int, ok bool, err error)
}

type multiplyValue interface {
	Value
	Multiply(ctx context.Context, other Value) (Value, error)
}

type divideValue interface {
	Value
	Divide(ctx context.Context, other Value) (Value, error)
}

type divValue interface {
	Value
	Div(ctx context.Context, other Value) (Value, error)
}

type modValue interface {
	Value
	Mod(ctx context.Context, other Value) (Value, error)
}

type addValue interface {
	Value
	Add(ctx context.Context, other Value) (Value, error)
}

type subtractValue interface {
	Value
	Subtract(ctx context.Context, other Value) (Value, error)
}

type apdContextKey struct{}

// defaultDecimalPrecision keeps 34 significant digits (roughly
// Decimal128), comfortably over FHIRPath's mandated 18 fractional digits
// even for values with a large integer part.
const defaultDecimalPrecision uint32 = 34

var defaultAPDContext = apd.BaseContext.WithPrecision(defaultDecimalPrecision)

// WithAPDContext overrides the apd.Context used for Decimal arithmetic in
// evaluations carrying ctx.
func WithAPDContext(ctx context.Context, apdCtx *apd.Context) context.Context {
	return context.WithValue(ctx, apdContextKey{}, apdCtx)
}

func apdContext(ctx context.Context) *apd.Context {
	if ctx != nil {
		if c, ok := ctx.Value(apdContextKey{}).(*apd.Context); ok && c != nil {
			return c
		}
	}
	return defaultAPDContext
}

// Collection is the ordered sequence every FHIRPath result is expressed
// as; a bare Value `v` is observationally `Collection{v}` at every
// boundary except where an operator's behavior depends on singleton-vs-
// plural arity.
type Collection []Value

func (c Collection) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal implements FHIRPath `=`: item-wise, order-sensitive, propagating
// "not applicable" (ok=false) for empty operands or an item pair whose
// equality is undefined; a length mismatch decides false (ok=true).
func (c Collection) Equal(other Collection) (eq bool, ok bool) {
	if len(c) == 0 || len(other) == 0 {
		return false, false
	}
	if len(c) != len(other) {
		return false, true
	}
	for i := range c {
		e, itemOK := c[i].Equal(other[i])
		if !itemOK {
			return false, false
		}
		if !e {
			return false, true
		}
	}
	return true, true
}

// Equivalent implements FHIRPath `~`: always decides, never Empty.
func (c Collection) Equivalent(other Collection) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if !c[i].Equivalent(other[i]) {
			return false
		}
	}
	return true
}

// Cmp compares two singleton collections; ok is false when either side is
// empty or the underlying values aren't ordered relative to each other
// (e.g. mixed temporal precision that can't decide an order). Values with
// no ordering, and Quantities with incommensurable units, return an error.
func (c Collection) Cmp(other Collection) (cmp int, ok bool, err error) {
	left, leftOK, err := Singleton[Value](c)
	if err != nil || !leftOK {
		return 0, false, err
	}
	right, rightOK, err := Singleton[Value](other)
	if err != nil || !rightOK {
		return 0, false, err
	}
	cv, ok := left.(cmpValue)
	if !ok {
		return 0, false, fmt.Errorf("%T does not support ordering", left)
	}
	return cv.Cmp(right)
}

// Union implements `|`: set union with FHIRPath-equality dedup.
func (c Collection) Union(other Collection) Collection {
	result := make(Collection, 0, len(c)+len(other))
	seen := func(v Value) bool {
		for _, item := range result {
			if eq, ok := item.Equal(v); ok && eq {
				return true
			}
		}
		return false
	}
	for _, v := range c {
		if !seen(v) {
			result = append(result, v)
		}
	}
	for _, v := range other {
		if !seen(v) {
			result = append(result, v)
		}
	}
	return result
}

// Combine concatenates without deduplication.
func (c Collection) Combine(other Collection) Collection {
	result := make(Collection, 0, len(c)+len(other))
	result = append(result, c...)
	result = append(result, other...)
	return result
}

// Distinct removes FHIRPath-equivalent duplicates, preserving order.
func (c Collection) Distinct() Collection {
	var result Collection
	for _, v := range c {
		if !result.Contains(v) {
			result = append(result, v)
		}
	}
	return result
}

func (c Collection) Contains(v Value) bool {
	for _, item := range c {
		if eq := item.Equivalent(v); eq {
			return true
		}
	}
	return false
}

func (c Collection) Multiply(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(multiplyValue)
		if !ok {
			return nil, fmt.Errorf("can not multiply %T", l)
		}
		return m.Multiply(ctx, r)
	})
}

func (c Collection) Divide(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(divideValue)
		if !ok {
			return nil, fmt.Errorf("can not divide %T", l)
		}
		return m.Divide(ctx, r)
	})
}

func (c Collection) Div(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(divValue)
		if !ok {
			return nil, fmt.Errorf("can not div %T", l)
		}
		return m.Div(ctx, r)
	})
}

func (c Collection) Mod(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(modValue)
		if !ok {
			return nil, fmt.Errorf("can not mod %T", l)
		}
		return m.Mod(ctx, r)
	})
}

func (c Collection) Add(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(addValue)
		if !ok {
			return nil, fmt.Errorf("can not add %T", l)
		}
		return m.Add(ctx, r)
	})
}

func (c Collection) Subtract(ctx context.Context, other Collection) (Collection, error) {
	return c.binaryNumeric(ctx, other, func(ctx context.Context, l, r Value) (Value, error) {
		m, ok := l.(subtractValue)
		if !ok {
			return nil, fmt.Errorf("can not subtract %T", l)
		}
		return m.Subtract(ctx, r)
	})
}

// Concat implements `&`: string concatenation that treats Empty as "".
func (c Collection) Concat(ctx context.Context, other Collection) (Collection, error) {
	left, _, err := Singleton[Value](c)
	if err != nil {
		return nil, err
	}
	right, _, err := Singleton[Value](other)
	if err != nil {
		return nil, err
	}
	ls, _, err := toStringOrEmpty(left)
	if err != nil {
		return nil, err
	}
	rs, _, err := toStringOrEmpty(right)
	if err != nil {
		return nil, err
	}
	return Collection{String(string(ls) + string(rs))}, nil
}

func toStringOrEmpty(v Value) (String, bool, error) {
	if v == nil {
		return "", true, nil
	}
	return v.ToString(false)
}

// binaryNumeric applies op to two singleton operands, propagating Empty
// per the general rule that for every operation not explicitly defined
// on Empty, op(..., Empty, ...) = Empty.
func (c Collection) binaryNumeric(ctx context.Context, other Collection, op func(context.Context, Value, Value) (Value, error)) (Collection, error) {
	if len(c) == 0 || len(other) == 0 {
		return nil, nil
	}
	left, ok, err := Singleton[Value](c)
	if err != nil || !ok {
		return nil, err
	}
	right, ok, err := Singleton[Value](other)
	if err != nil || !ok {
		return nil, err
	}
	result, err := op(ctx, left, right)
	if err != nil {
		return nil, err
	}
	return Collection{result}, nil
}

// Singleton extracts and converts the sole element of c to T, following
// FHIRPath's implicit-singleton-conversion rule. ok is false (with no
// error) for an empty collection; an error is returned for a multi-item
// collection or a conversion that fails outright.
func Singleton[T Value](c Collection) (v T, ok bool, err error) {
	if len(c) == 0 {
		return v, false, nil
	}
	if len(c) > 1 {
		return v, false, fmt.Errorf("expected a singleton collection, got %d items", len(c))
	}
	return valueTo[T](c[0], false)
}

func valueTo[T Value](v Value, explicit bool) (out T, ok bool, err error) {
	if converted, isT := v.(T); isT {
		return converted, true, nil
	}
	switch any(out).(type) {
	case Boolean:
		b, ok, err := v.ToBoolean(explicit)
		return any(b).(T), ok, err
	case String:
		s, ok, err := v.ToString(explicit)
		return any(s).(T), ok, err
	case Integer:
		i, ok, err := v.ToInteger(explicit)
		return any(i).(T), ok, err
	case Decimal:
		d, ok, err := v.ToDecimal(explicit)
		return any(d).(T), ok, err
	case Date:
		d, ok, err := v.ToDate(explicit)
		return any(d).(T), ok, err
	case Time:
		t, ok, err := v.ToTime(explicit)
		return any(t).(T), ok, err
	case DateTime:
		dt, ok, err := v.ToDateTime(explicit)
		return any(dt).(T), ok, err
	case Quantity:
		q, ok, err := v.ToQuantity(explicit)
		return any(q).(T), ok, err
	default:
		// T is Value itself (or an interface only v satisfies structurally).
		if conv, isT := v.(T); isT {
			return conv, true, nil
		}
		return out, false, nil
	}
}

// --- Boolean ---

type Boolean bool

func (b Boolean) Children(name ...string) Collection { return nil }
func (b Boolean) ToBoolean(explicit bool) (Boolean, bool, error) { return b, true, nil }
func (b Boolean) ToString(explicit bool) (String, bool, error) {
	if b {
		return "true", true, nil
	}
	return "false", true, nil
}
func (b Boolean) ToInteger(explicit bool) (Integer, bool, error) {
	if !explicit {
		return 0, false, nil
	}
	if b {
		return 1, true, nil
	}
	return 0, true, nil
}
func (b Boolean) ToDecimal(explicit bool) (Decimal, bool, error) {
	if !explicit {
		return Decimal{}, false, nil
	}
	if b {
		return Decimal{Value: apd.New(1, 0)}, true, nil
	}
	return Decimal{Value: apd.New(0, 0)}, true, nil
}
func (b Boolean) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, nil }
func (b Boolean) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (b Boolean) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (b Boolean) ToQuantity(explicit bool) (Quantity, bool, error) { return Quantity{}, false, nil }
func (b Boolean) Equal(other Value) (eq bool, ok bool) {
	o, isBool := other.(Boolean)
	if !isBool {
		return false, true
	}
	return b == o, true
}
func (b Boolean) Equivalent(other Value) bool {
	eq, ok := b.Equal(other)
	return ok && eq
}
func (b Boolean) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Boolean"}
}
func (b Boolean) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Boolean) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

// --- String ---

type String string

var whitespaceCollapse = regexp.MustCompile(`\s+`)

func (s String) Children(name ...string) Collection { return nil }
func (s String) ToBoolean(explicit bool) (Boolean, bool, error) {
	switch strings.ToLower(string(s)) {
	case "true", "t", "yes", "y", "1", "1.0":
		return true, true, nil
	case "false", "f", "no", "n", "0", "0.0":
		return false, true, nil
	}
	return false, false, nil
}
func (s String) ToString(explicit bool) (String, bool, error) { return s, true, nil }
func (s String) ToInteger(explicit bool) (Integer, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return Integer(n), true, nil
}
func (s String) ToDecimal(explicit bool) (Decimal, bool, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(string(s)))
	if err != nil {
		return Decimal{}, false, nil
	}
	return Decimal{Value: d}, true, nil
}
func (s String) ToDate(explicit bool) (Date, bool, error) {
	d, err := ParseDate("@" + strings.TrimSpace(string(s)))
	if err != nil {
		return Date{}, false, nil
	}
	return d, true, nil
}
func (s String) ToTime(explicit bool) (Time, bool, error) {
	text := strings.TrimSpace(string(s))
	if !strings.HasPrefix(text, "T") {
		text = "T" + text
	}
	t, err := ParseTime("@" + text)
	if err != nil {
		return Time{}, false, nil
	}
	return t, true, nil
}
func (s String) ToDateTime(explicit bool) (DateTime, bool, error) {
	dt, err := ParseDateTime("@" + strings.TrimSpace(string(s)))
	if err != nil {
		return DateTime{}, false, nil
	}
	return dt, true, nil
}
func (s String) ToQuantity(explicit bool) (Quantity, bool, error) {
	q, err := ParseQuantityLiteral(string(s))
	if err != nil {
		return Quantity{}, false, nil
	}
	return q, true, nil
}
func (s String) Equal(other Value) (eq bool, ok bool) {
	o, isStr := other.(String)
	if !isStr {
		return false, true
	}
	return s == o, true
}
func (s String) Equivalent(other Value) bool {
	o, isStr := other.(String)
	if !isStr {
		return false
	}
	norm := func(x String) string {
		return strings.TrimSpace(whitespaceCollapse.ReplaceAllString(string(x), " "))
	}
	return strings.EqualFold(norm(s), norm(o))
}
func (s String) Cmp(other Value) (cmp int, ok bool, err error) {
	o, isStr := other.(String)
	if !isStr {
		return 0, false, fmt.Errorf("can not compare String to %T", other)
	}
	return strings.Compare(string(s), string(o)), true, nil
}
func (s String) Add(ctx context.Context, other Value) (Value, error) {
	o, ok, err := other.ToString(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not add String and %T", other)
	}
	return String(string(s) + string(o)), nil
}
func (s String) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "String"}
}
func (s String) String() string          { return string(s) }
func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// --- Integer ---

type Integer int64

func (i Integer) Children(name ...string) Collection { return nil }
func (i Integer) ToBoolean(explicit bool) (Boolean, bool, error) {
	if !explicit {
		return false, false, nil
	}
	switch i {
	case 0:
		return false, true, nil
	case 1:
		return true, true, nil
	}
	return false, false, nil
}
func (i Integer) ToString(explicit bool) (String, bool, error) {
	return String(strconv.FormatInt(int64(i), 10)), true, nil
}
func (i Integer) ToInteger(explicit bool) (Integer, bool, error) { return i, true, nil }
func (i Integer) ToDecimal(explicit bool) (Decimal, bool, error) {
	return Decimal{Value: apd.New(int64(i), 0)}, true, nil
}
func (i Integer) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, nil }
func (i Integer) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (i Integer) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (i Integer) ToQuantity(explicit bool) (Quantity, bool, error) {
	return Quantity{Value: Decimal{Value: apd.New(int64(i), 0)}, Unit: "1"}, true, nil
}
func (i Integer) Equal(other Value) (eq bool, ok bool) {
	switch o := other.(type) {
	case Integer:
		return i == o, true
	case Decimal:
		d, _ := i.ToDecimal(false)
		return d.Equal(o)
	default:
		return false, true
	}
}
func (i Integer) Equivalent(other Value) bool {
	eq, ok := i.Equal(other)
	return ok && eq
}
func (i Integer) Cmp(other Value) (cmp int, ok bool, err error) {
	switch o := other.(type) {
	case Integer:
		switch {
		case i < o:
			return -1, true, nil
		case i > o:
			return 1, true, nil
		default:
			return 0, true, nil
		}
	case Decimal:
		d, _ := i.ToDecimal(false)
		return d.Cmp(o)
	default:
		return 0, false, fmt.Errorf("can not compare Integer to %T", other)
	}
}
func (i Integer) Multiply(ctx context.Context, other Value) (Value, error) {
	return arithDispatch(ctx, i, other,
		func(a, b int64) (Value, error) { return Integer(a * b), nil },
		func(ctx context.Context, a, b *apd.Decimal) (Value, error) { return decimalOp(ctx, a, b, (*apd.Context).Mul) })
}
func (i Integer) Divide(ctx context.Context, other Value) (Value, error) {
	d, _ := i.ToDecimal(false)
	return d.Divide(ctx, other)
}
func (i Integer) Div(ctx context.Context, other Value) (Value, error) {
	o, ok, err := other.ToInteger(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not div Integer by %T", other)
	}
	if o == 0 {
		return nil, fmt.Errorf("integer division by zero")
	}
	return Integer(int64(i) / int64(o)), nil
}
func (i Integer) Mod(ctx context.Context, other Value) (Value, error) {
	o, ok, err := other.ToInteger(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not mod Integer by %T", other)
	}
	if o == 0 {
		return nil, fmt.Errorf("integer modulo by zero")
	}
	return Integer(int64(i) % int64(o)), nil
}
func (i Integer) Add(ctx context.Context, other Value) (Value, error) {
	return arithDispatch(ctx, i, other,
		func(a, b int64) (Value, error) { return Integer(a + b), nil },
		func(ctx context.Context, a, b *apd.Decimal) (Value, error) { return decimalOp(ctx, a, b, (*apd.Context).Add) })
}
func (i Integer) Subtract(ctx context.Context, other Value) (Value, error) {
	return arithDispatch(ctx, i, other,
		func(a, b int64) (Value, error) { return Integer(a - b), nil },
		func(ctx context.Context, a, b *apd.Decimal) (Value, error) { return decimalOp(ctx, a, b, (*apd.Context).Sub) })
}
func (i Integer) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Integer"}
}
func (i Integer) String() string               { return strconv.FormatInt(int64(i), 10) }
func (i Integer) MarshalJSON() ([]byte, error) { return json.Marshal(int64(i)) }

// arithDispatch picks the Integer+Integer fast path or promotes to
// Decimal when the other operand is a Decimal or Quantity:
// Integer+Integer stays Integer; any Decimal promotes the result.
func arithDispatch(
	ctx context.Context, i Integer, other Value,
	intOp func(a, b int64) (Value, error),
	decOp func(ctx context.Context, a, b *apd.Decimal) (Value, error),
) (Value, error) {
	if o, ok := other.(Integer); ok {
		return intOp(int64(i), int64(o))
	}
	if q, ok := other.(Quantity); ok {
		d, _ := i.ToDecimal(false)
		return d.quantityArith(ctx, q, decOp)
	}
	d, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not operate on Integer and %T", other)
	}
	self, _ := i.ToDecimal(false)
	return decOp(ctx, self.Value, d.Value)
}

func decimalOp(ctx context.Context, a, b *apd.Decimal, op func(*apd.Context, *apd.Decimal, *apd.Decimal, *apd.Decimal) (apd.Condition, error)) (Value, error) {
	var result apd.Decimal
	_, err := op(apdContext(ctx), &result, a, b)
	if err != nil {
		return nil, err
	}
	return Decimal{Value: &result}, nil
}

// --- Decimal ---

type Decimal struct {
	Value *apd.Decimal
}

func (d Decimal) Children(name ...string) Collection { return nil }
func (d Decimal) ToBoolean(explicit bool) (Boolean, bool, error) {
	if !explicit {
		return false, false, nil
	}
	f, err := d.Value.Float64()
	if err != nil {
		return false, false, nil
	}
	switch f {
	case 0:
		return false, true, nil
	case 1:
		return true, true, nil
	}
	return false, false, nil
}
func (d Decimal) ToString(explicit bool) (String, bool, error) {
	return String(d.Value.Text('f')), true, nil
}
func (d Decimal) ToInteger(explicit bool) (Integer, bool, error) {
	if !explicit {
		return 0, false, nil
	}
	i, err := d.Value.Int64()
	if err != nil {
		return 0, false, nil
	}
	return Integer(i), true, nil
}
func (d Decimal) ToDecimal(explicit bool) (Decimal, bool, error) { return d, true, nil }
func (d Decimal) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, nil }
func (d Decimal) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (d Decimal) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (d Decimal) ToQuantity(explicit bool) (Quantity, bool, error) {
	return Quantity{Value: d, Unit: "1"}, true, nil
}
func (d Decimal) Equal(other Value) (eq bool, ok bool) {
	o, ok2, err := other.ToDecimal(false)
	if err != nil || !ok2 {
		return false, true
	}
	return d.Value.Cmp(o.Value) == 0, true
}
func (d Decimal) Equivalent(other Value) bool {
	o, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return false
	}
	rounded := roundToLowestSharedScale(d.Value, o.Value)
	return rounded[0].Cmp(rounded[1]) == 0
}

// roundToLowestSharedScale implements FHIRPath decimal equivalence: round
// both values to the precision of whichever has fewer significant digits.
func roundToLowestSharedScale(a, b *apd.Decimal) [2]*apd.Decimal {
	scale := a.Exponent
	if b.Exponent > scale {
		scale = b.Exponent
	}
	var ra, rb apd.Decimal
	ctx := apd.BaseContext.WithPrecision(defaultDecimalPrecision)
	ctx.Rounding = apd.RoundHalfEven
	_, _ = ctx.Quantize(&ra, a, scale)
	_, _ = ctx.Quantize(&rb, b, scale)
	return [2]*apd.Decimal{&ra, &rb}
}

func (d Decimal) Cmp(other Value) (cmp int, ok bool, err error) {
	o, ok2, err := other.ToDecimal(false)
	if err != nil {
		return 0, false, err
	}
	if !ok2 {
		return 0, false, fmt.Errorf("can not compare Decimal to %T", other)
	}
	return d.Value.Cmp(o.Value), true, nil
}
func (d Decimal) Multiply(ctx context.Context, other Value) (Value, error) {
	return d.binaryArith(ctx, other, (*apd.Context).Mul)
}
func (d Decimal) Divide(ctx context.Context, other Value) (Value, error) {
	if q, ok := other.(Quantity); ok {
		return d.quantityArith(ctx, q, func(ctx context.Context, a, b *apd.Decimal) (Value, error) { return decimalOp(ctx, a, b, (*apd.Context).Div) })
	}
	o, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not divide Decimal by %T", other)
	}
	if o.Value.IsZero() {
		return nil, nil
	}
	return decimalOp(ctx, d.Value, o.Value, (*apd.Context).Div)
}
func (d Decimal) Div(ctx context.Context, other Value) (Value, error) {
	o, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not div Decimal by %T", other)
	}
	if o.Value.IsZero() {
		return nil, fmt.Errorf("division by zero")
	}
	var quotient apd.Decimal
	_, err = apdContext(ctx).QuoInteger(&quotient, d.Value, o.Value)
	if err != nil {
		return nil, err
	}
	i, err := quotient.Int64()
	if err != nil {
		return nil, err
	}
	return Integer(i), nil
}
func (d Decimal) Mod(ctx context.Context, other Value) (Value, error) {
	o, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not mod Decimal by %T", other)
	}
	if o.Value.IsZero() {
		return nil, fmt.Errorf("modulo by zero")
	}
	return decimalOp(ctx, d.Value, o.Value, (*apd.Context).Rem)
}
func (d Decimal) Add(ctx context.Context, other Value) (Value, error) {
	return d.binaryArith(ctx, other, (*apd.Context).Add)
}
func (d Decimal) Subtract(ctx context.Context, other Value) (Value, error) {
	return d.binaryArith(ctx, other, (*apd.Context).Sub)
}
func (d Decimal) binaryArith(ctx context.Context, other Value, op func(*apd.Context, *apd.Decimal, *apd.Decimal, *apd.Decimal) (apd.Condition, error)) (Value, error) {
	if q, ok := other.(Quantity); ok {
		return d.quantityArith(ctx, q, func(ctx context.Context, a, b *apd.Decimal) (Value, error) { return decimalOp(ctx, a, b, op) })
	}
	o, ok, err := other.ToDecimal(false)
	if err != nil || !ok {
		return nil, fmt.Errorf("can not operate on Decimal and %T", other)
	}
	return decimalOp(ctx, d.Value, o.Value, op)
}
func (d Decimal) quantityArith(ctx context.Context, q Quantity, op func(context.Context, *apd.Decimal, *apd.Decimal) (Value, error)) (Value, error) {
	self := Quantity{Value: d, Unit: "1"}
	result, err := op(ctx, self.Value.Value, q.Value.Value)
	if err != nil {
		return nil, err
	}
	rd, _ := result.(Decimal)
	return Quantity{Value: rd, Unit: q.Unit}, nil
}
func (d Decimal) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "Decimal"}
}
func (d Decimal) String() string {
	if d.Value == nil {
		return "0"
	}
	return d.Value.Text('f')
}
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d.Value == nil {
		return []byte("0"), nil
	}
	return []byte(d.Value.String()), nil
}

// ParseIntegerLiteral parses a bare (no sign) FHIRPath integer literal.
func ParseIntegerLiteral(text string) (Integer, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, err
	}
	return Integer(n), nil
}

// ParseDecimalLiteral parses a bare FHIRPath decimal literal.
func ParseDecimalLiteral(text string) (Decimal, error) {
	d, _, err := apd.NewFromString(text)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Value: d}, nil
}

// TypeInfoObject wraps a TypeInfo so it can itself be returned as a
// FHIRPath value by the type() function.
type TypeInfoObject struct {
	Info TypeInfo
}

func (t TypeInfoObject) Children(name ...string) Collection { return nil }
func (t TypeInfoObject) ToBoolean(explicit bool) (Boolean, bool, error) { return false, false, nil }
func (t TypeInfoObject) ToString(explicit bool) (String, bool, error) {
	return String(t.Info.String()), true, nil
}
func (t TypeInfoObject) ToInteger(explicit bool) (Integer, bool, error) { return 0, false, nil }
func (t TypeInfoObject) ToDecimal(explicit bool) (Decimal, bool, error) { return Decimal{}, false, nil }
func (t TypeInfoObject) ToDate(explicit bool) (Date, bool, error)         { return Date{}, false, nil }
func (t TypeInfoObject) ToTime(explicit bool) (Time, bool, error)         { return Time{}, false, nil }
func (t TypeInfoObject) ToDateTime(explicit bool) (DateTime, bool, error) { return DateTime{}, false, nil }
func (t TypeInfoObject) ToQuantity(explicit bool) (Quantity, bool, error) { return Quantity{}, false, nil }
func (t TypeInfoObject) Equal(other Value) (eq bool, ok bool) {
	o, isType := other.(TypeInfoObject)
	if !isType {
		return false, true
	}
	return t.Info.String() == o.Info.String(), true
}
func (t TypeInfoObject) Equivalent(other Value) bool {
	eq, ok := t.Equal(other)
	return ok && eq
}
func (t TypeInfoObject) TypeInfo() TypeInfo { return t.Info }
func (t TypeInfoObject) String() string     { return t.Info.String() }
