package fhirpath

import "context"

// registerFHIRFunctions wires the FHIR-specific navigation and
// terminology functions: extension() and resolve() are pure navigation
// helpers; memberOf() is declared async/non-pure because a real
// ModelProvider backing it may hit a terminology service over the
// network; the terminology category has no sync fast path.
func registerFHIRFunctions(r *Registry) {
	r.registerFunc("extension", CategoryFHIR, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		url, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, nil
		}
		var out Collection
		for _, item := range focus {
			for _, ext := range item.Children("extension") {
				res, ok := ext.(*Resource)
				if !ok {
					continue
				}
				u, hasURL := res.Fields["url"].(string)
				if hasURL && u == string(url) {
					out = append(out, ext)
				}
			}
		}
		return out, nil
	})
	r.registerFunc("resolve", CategoryFHIR, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if state.Model == nil {
			return nil, nil
		}
		var out Collection
		for _, item := range focus {
			ref, err := referenceString(item)
			if err != nil {
				return nil, err
			}
			if ref == "" {
				continue
			}
			resolved, ok, err := state.Model.ResolveReference(ctx, state.Root, ref)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, resolved)
			}
		}
		return out, nil
	})
	r.registerFunc("memberOf", CategoryTerminology, false, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		valueSet, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, nil
		}
		v, ok, err := Singleton[Value](focus)
		if err != nil || !ok {
			return nil, err
		}
		if state.Model == nil {
			return Collection{Boolean(false)}, nil
		}
		matches, err := state.Model.IsMemberOfValueSet(ctx, v, string(valueSet))
		if err != nil {
			return nil, err
		}
		return Collection{Boolean(matches)}, nil
	})
}

// referenceString extracts the `.reference` string a Reference-shaped
// Resource carries, or "" if item isn't one.
func referenceString(item Value) (string, error) {
	res, ok := item.(*Resource)
	if !ok {
		return "", nil
	}
	if ref, ok := res.Fields["reference"].(string); ok {
		return ref, nil
	}
	return "", nil
}
