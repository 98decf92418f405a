package fhirpath

import (
	"context"
	"fmt"
)

// registerUtilityFunctions wires trace(), defineVariable(), comparable(),
// and not(). trace() is non-pure: it must run exactly once per
// invocation, in program order, and reports through the Tracer stashed
// in ctx rather than a registry-level side channel.
func registerUtilityFunctions(r *Registry) {
	r.registerFunc("trace", CategoryUtility, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		name := "trace"
		if len(args) > 0 {
			n, ok, err := argSingleton[String](args, 0)
			if err != nil {
				return nil, err
			}
			if ok {
				name = string(n)
			}
		}
		traced := focus
		if len(args) > 1 {
			traced = args[1].Value
		}
		tracerFrom(ctx).Trace(name, traced)
		return focus, nil
	})
	r.registerFunc("defineVariable", CategoryUtility, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("defineVariable() requires a name argument")
		}
		name, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, fmt.Errorf("defineVariable(): name must be a singleton string")
		}
		value := focus
		if len(args) > 1 {
			value = args[1].Value
		}
		setDefinedVar(ctx, string(name), value)
		return focus, nil
	})
	r.registerSyncFunc("not", CategoryLogical, func(focus Collection, args []Arg) (Collection, bool, error) {
		b, ok, err := Singleton[Boolean](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{!b}, true, nil
	})
	r.registerSyncFunc("comparable", CategoryUtility, func(focus Collection, args []Arg) (Collection, bool, error) {
		left, ok, err := Singleton[Value](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		right, ok, err := argSingleton[Value](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{Boolean(quantitiesComparable(left, right))}, true, nil
	})
}

// quantitiesComparable backs comparable(): it decides whether two
// Quantities share a dimension, so that an ordering comparison between
// them is defined; non-Quantity pairs of the same dynamic type are always
// comparable.
func quantitiesComparable(left, right Value) bool {
	lq, lIsQty := left.(Quantity)
	rq, rIsQty := right.(Quantity)
	if lIsQty != rIsQty {
		return false
	}
	if lIsQty && rIsQty {
		return lq.dimension() == rq.dimension()
	}
	return sameComparableKind(left, right)
}

func sameComparableKind(left, right Value) bool {
	switch left.(type) {
	case Integer, Decimal:
		switch right.(type) {
		case Integer, Decimal:
			return true
		default:
			return false
		}
	default:
		return fmt.Sprintf("%T", left) == fmt.Sprintf("%T", right)
	}
}
