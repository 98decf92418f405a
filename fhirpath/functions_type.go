package fhirpath

import (
	"context"
	"strings"
)

// registerTypeFunctions wires type()/ofType()/conformsTo()/hasValue().
// type() reports each value's own TypeInfo(), so a Resource reports
// FHIR.<its type name> (a Patient reports FHIR.Patient); ofType() matches
// on that TypeInfo and consults the ModelProvider only to accept subtypes
// of the requested type.
func registerTypeFunctions(r *Registry) {
	r.registerFunc("type", CategoryType, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		out := make(Collection, len(focus))
		for i, v := range focus {
			out[i] = TypeInfoObject{Info: v.TypeInfo()}
		}
		return out, nil
	})
	r.registerFunc("ofType", CategoryType, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return focus, nil
		}
		spec, ok := typeSpecifierArg(args[0])
		if !ok {
			return nil, nil
		}
		var out Collection
		for _, v := range focus {
			matches, err := matchesTypeSpec(ctx, state.Model, v, spec)
			if err != nil {
				return nil, err
			}
			if matches {
				out = append(out, v)
			}
		}
		return out, nil
	})
	r.registerFunc("conformsTo", CategoryType, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		v, ok, err := Singleton[Value](focus)
		if err != nil || !ok {
			return nil, err
		}
		profile, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, err
		}
		if state.Model == nil {
			return Collection{Boolean(false)}, nil
		}
		matches, err := state.Model.ValidatesAgainstProfile(ctx, v, string(profile))
		if err != nil {
			return nil, err
		}
		return Collection{Boolean(matches)}, nil
	})
	r.registerSyncFunc("hasValue", CategoryType, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(focus) != 1 {
			return Collection{Boolean(false)}, true, nil
		}
		_, isRes := focus[0].(*Resource)
		return Collection{Boolean(!isRes)}, true, nil
	})
	r.registerSyncFunc("toBoolean", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToBoolean(true) })
	})
	r.registerSyncFunc("toString", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToString(true) })
	})
	r.registerSyncFunc("toInteger", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToInteger(true) })
	})
	r.registerSyncFunc("toDecimal", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToDecimal(true) })
	})
	r.registerSyncFunc("toDate", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToDate(true) })
	})
	r.registerSyncFunc("toTime", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToTime(true) })
	})
	r.registerSyncFunc("toDateTime", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToDateTime(true) })
	})
	r.registerSyncFunc("toQuantity", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertSingleton(focus, func(v Value) (Value, bool, error) { return v.ToQuantity(true) })
	})
	r.registerSyncFunc("convertsToBoolean", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToBoolean(true); return ok, err })
	})
	r.registerSyncFunc("convertsToString", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToString(true); return ok, err })
	})
	r.registerSyncFunc("convertsToInteger", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToInteger(true); return ok, err })
	})
	r.registerSyncFunc("convertsToDecimal", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToDecimal(true); return ok, err })
	})
	r.registerSyncFunc("convertsToQuantity", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToQuantity(true); return ok, err })
	})
	r.registerSyncFunc("convertsToDate", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToDate(true); return ok, err })
	})
	r.registerSyncFunc("convertsToTime", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToTime(true); return ok, err })
	})
	r.registerSyncFunc("convertsToDateTime", CategoryConversion, func(focus Collection, args []Arg) (Collection, bool, error) {
		return convertibilityCheck(focus, func(v Value) (bool, error) { _, ok, err := v.ToDateTime(true); return ok, err })
	})
}

func typeSpecifierArg(a Arg) (*TypeSpecifierExpr, bool) {
	s, ok, err := Singleton[String](a.Value)
	if err != nil || !ok {
		return nil, false
	}
	if ns, name, found := strings.Cut(string(s), "."); found {
		return &TypeSpecifierExpr{Namespace: ns, Name: name}, true
	}
	return &TypeSpecifierExpr{Name: string(s)}, true
}

func matchesTypeSpec(ctx context.Context, model ModelProvider, item Value, spec *TypeSpecifierExpr) (bool, error) {
	itemType := item.TypeInfo()
	itemSimple, ok := itemType.(SimpleTypeInfo)
	if !ok {
		return false, nil
	}
	if spec.Namespace != "" {
		return itemSimple.Namespace == spec.Namespace && itemSimple.Name == spec.Name, nil
	}
	if itemSimple.Name == spec.Name {
		return true, nil
	}
	if model == nil {
		return false, nil
	}
	target, found, err := model.GetType(ctx, spec.Name)
	if err != nil || !found {
		return false, err
	}
	return model.IsSubtypeOf(ctx, itemType, target)
}

func convertSingleton(focus Collection, convert func(Value) (Value, bool, error)) (Collection, bool, error) {
	v, ok, err := Singleton[Value](focus)
	if err != nil || !ok {
		return nil, true, err
	}
	result, ok, err := convert(v)
	if err != nil || !ok {
		return nil, true, err
	}
	return Collection{result}, true, nil
}

func convertibilityCheck(focus Collection, convert func(Value) (bool, error)) (Collection, bool, error) {
	v, ok, err := Singleton[Value](focus)
	if err != nil || !ok {
		return Collection{Boolean(false)}, true, nil
	}
	convertible, err := convert(v)
	if err != nil {
		return nil, true, err
	}
	return Collection{Boolean(convertible)}, true, nil
}
