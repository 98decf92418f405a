package fhirpath

import (
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"
)

// registerMathFunctions wires the numeric functions. Each works on a
// singleton Integer or Decimal focus. abs and round compute through apd;
// ceiling, floor, truncate, sqrt, exp, ln, log and power convert through
// float64 and are limited to float64 precision.
func registerMathFunctions(r *Registry) {
	r.registerSyncFunc("abs", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		v, ok, err := Singleton[Value](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		switch x := v.(type) {
		case Integer:
			if x < 0 {
				return Collection{-x}, true, nil
			}
			return Collection{x}, true, nil
		case Decimal:
			var out apd.Decimal
			out.Abs(x.Value)
			return Collection{Decimal{Value: &out}}, true, nil
		case Quantity:
			var out apd.Decimal
			out.Abs(x.Value.Value)
			return Collection{Quantity{Value: Decimal{Value: &out}, Unit: x.Unit}}, true, nil
		default:
			return nil, true, fmt.Errorf("abs(): not numeric: %T", v)
		}
	})
	r.registerSyncFunc("ceiling", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return decimalToIntegerOp(focus, math.Ceil)
	})
	r.registerSyncFunc("floor", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return decimalToIntegerOp(focus, math.Floor)
	})
	r.registerSyncFunc("truncate", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return decimalToIntegerOp(focus, math.Trunc)
	})
	r.registerSyncFunc("round", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		d, ok, err := Singleton[Decimal](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		precision := int32(0)
		if len(args) > 0 {
			n, ok, err := argSingleton[Integer](args, 0)
			if err != nil {
				return nil, true, err
			}
			if ok {
				precision = int32(n)
			}
		}
		ctx := apd.BaseContext.WithPrecision(defaultDecimalPrecision)
		ctx.Rounding = apd.RoundHalfEven
		var out apd.Decimal
		if _, err := ctx.Quantize(&out, d.Value, -precision); err != nil {
			return nil, true, err
		}
		return Collection{Decimal{Value: &out}}, true, nil
	})
	r.registerSyncFunc("sqrt", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return floatMathOp(focus, math.Sqrt)
	})
	r.registerSyncFunc("exp", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return floatMathOp(focus, math.Exp)
	})
	r.registerSyncFunc("ln", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		return floatMathOp(focus, math.Log)
	})
	r.registerSyncFunc("log", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		d, ok, err := Singleton[Decimal](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		base, ok, err := argSingleton[Decimal](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		f, err := d.Value.Float64()
		if err != nil {
			return nil, true, err
		}
		b, err := base.Value.Float64()
		if err != nil {
			return nil, true, err
		}
		result := math.Log(f) / math.Log(b)
		return Collection{floatToDecimal(result)}, true, nil
	})
	r.registerSyncFunc("power", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		base, ok, err := Singleton[Decimal](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		exp, ok, err := argSingleton[Decimal](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		bf, err := base.Value.Float64()
		if err != nil {
			return nil, true, err
		}
		ef, err := exp.Value.Float64()
		if err != nil {
			return nil, true, err
		}
		result := math.Pow(bf, ef)
		if math.IsNaN(result) {
			return nil, true, nil
		}
		if i, isInt := asExactInteger(result); isInt && inputWasInteger(focus) && inputWasInteger(args[0].Value) {
			return Collection{Integer(i)}, true, nil
		}
		return Collection{floatToDecimal(result)}, true, nil
	})
	r.registerSyncFunc("precision", CategoryMath, func(focus Collection, args []Arg) (Collection, bool, error) {
		v, ok, err := Singleton[Value](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		switch x := v.(type) {
		case Integer:
			return Collection{Integer(0)}, true, nil
		case Decimal:
			scale := -x.Value.Exponent
			if scale < 0 {
				scale = 0
			}
			return Collection{Integer(scale)}, true, nil
		default:
			return nil, true, nil
		}
	})
}

func decimalToIntegerOp(focus Collection, op func(float64) float64) (Collection, bool, error) {
	v, ok, err := Singleton[Value](focus)
	if err != nil || !ok {
		return nil, true, err
	}
	if i, isInt := v.(Integer); isInt {
		return Collection{i}, true, nil
	}
	d, ok, err := valueTo[Decimal](v, false)
	if err != nil || !ok {
		return nil, true, err
	}
	f, err := d.Value.Float64()
	if err != nil {
		return nil, true, err
	}
	result := op(f)
	return Collection{Integer(int64(result))}, true, nil
}

func floatMathOp(focus Collection, op func(float64) float64) (Collection, bool, error) {
	d, ok, err := Singleton[Decimal](focus)
	if err != nil || !ok {
		return nil, true, err
	}
	f, err := d.Value.Float64()
	if err != nil {
		return nil, true, err
	}
	result := op(f)
	if math.IsNaN(result) {
		return nil, true, nil
	}
	return Collection{floatToDecimal(result)}, true, nil
}

func floatToDecimal(f float64) Decimal {
	d, _, _ := apd.NewFromString(fmt.Sprintf("%v", f))
	return Decimal{Value: d}
}

func inputWasInteger(c Collection) bool {
	if len(c) != 1 {
		return false
	}
	_, ok := c[0].(Integer)
	return ok
}

func asExactInteger(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}
