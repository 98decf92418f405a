package fhirpath

import (
	"context"
	"fmt"
	"sort"
)

// registerCollectionFunctions wires the collection-manipulation and
// lambda functions. The lambda functions (where, select, all, any,
// exists, repeat, sort, aggregate) receive their expression argument as a
// Thunk and iterate focus themselves, rather than the registry
// pre-evaluating it once; that's what makes them lambda functions at
// all. aggregate's optional second argument, the initial $total, is
// evaluated once up front.
func registerCollectionFunctions(r *Registry) {
	r.registerSyncFunc("empty", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		return Collection{Boolean(len(focus) == 0)}, true, nil
	})
	// exists() with no predicate is a cheap sync check; exists(crit) needs
	// the lambda-aware async path. The async registration that follows
	// replaces this sync entry under the same name, so both forms run
	// through ExecuteAsync.
	r.registerSyncFunc("exists", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return Collection{Boolean(len(focus) > 0)}, true, nil
		}
		return nil, false, nil
	})
	r.registerFunc("exists", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return Collection{Boolean(len(focus) > 0)}, nil
		}
		filtered, err := filterByThunk(ctx, focus, args[0].Thunk)
		if err != nil {
			return nil, err
		}
		return Collection{Boolean(len(filtered) > 0)}, nil
	})
	r.registerSyncFunc("count", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		return Collection{Integer(len(focus))}, true, nil
	})
	r.registerSyncFunc("first", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(focus) == 0 {
			return nil, true, nil
		}
		return Collection{focus[0]}, true, nil
	})
	r.registerSyncFunc("last", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(focus) == 0 {
			return nil, true, nil
		}
		return Collection{focus[len(focus)-1]}, true, nil
	})
	r.registerSyncFunc("tail", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(focus) <= 1 {
			return nil, true, nil
		}
		return append(Collection{}, focus[1:]...), true, nil
	})
	r.registerSyncFunc("single", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(focus) == 0 {
			return nil, true, nil
		}
		if len(focus) > 1 {
			return nil, true, fmt.Errorf("single(): expected 0 or 1 items, got %d", len(focus))
		}
		return focus, true, nil
	})
	r.registerSyncFunc("skip", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		n, ok, err := argSingleton[Integer](args, 0)
		if err != nil || !ok {
			return focus, true, err
		}
		if int(n) >= len(focus) {
			return nil, true, nil
		}
		if n < 0 {
			n = 0
		}
		return append(Collection{}, focus[n:]...), true, nil
	})
	r.registerSyncFunc("take", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		n, ok, err := argSingleton[Integer](args, 0)
		if err != nil || !ok || n <= 0 {
			return nil, true, err
		}
		if int(n) > len(focus) {
			n = Integer(len(focus))
		}
		return append(Collection{}, focus[:n]...), true, nil
	})
	r.registerSyncFunc("distinct", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		return focus.Distinct(), true, nil
	})
	r.registerSyncFunc("isDistinct", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		return Collection{Boolean(len(focus.Distinct()) == len(focus))}, true, nil
	})
	r.registerSyncFunc("union", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return focus, true, nil
		}
		return focus.Union(args[0].Value), true, nil
	})
	r.registerSyncFunc("combine", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return focus, true, nil
		}
		return focus.Combine(args[0].Value), true, nil
	})
	r.registerSyncFunc("exclude", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return focus, true, nil
		}
		other := args[0].Value
		var out Collection
		for _, v := range focus {
			if !other.Contains(v) {
				out = append(out, v)
			}
		}
		return out, true, nil
	})
	r.registerSyncFunc("intersect", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return nil, true, nil
		}
		other := args[0].Value
		var out Collection
		for _, v := range focus.Distinct() {
			if other.Contains(v) {
				out = append(out, v)
			}
		}
		return out, true, nil
	})
	r.registerSyncFunc("subsetOf", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return Collection{Boolean(len(focus) == 0)}, true, nil
		}
		other := args[0].Value
		for _, v := range focus {
			if !other.Contains(v) {
				return Collection{Boolean(false)}, true, nil
			}
		}
		return Collection{Boolean(true)}, true, nil
	})
	r.registerSyncFunc("supersetOf", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		if len(args) == 0 {
			return Collection{Boolean(true)}, true, nil
		}
		other := args[0].Value
		for _, v := range other {
			if !focus.Contains(v) {
				return Collection{Boolean(false)}, true, nil
			}
		}
		return Collection{Boolean(true)}, true, nil
	})
	r.registerSyncFunc("allTrue", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		for _, v := range focus {
			b, ok, err := valueTo[Boolean](v, false)
			if err != nil || !ok || !bool(b) {
				return Collection{Boolean(false)}, true, err
			}
		}
		return Collection{Boolean(true)}, true, nil
	})
	r.registerSyncFunc("anyTrue", CategoryCollection, func(focus Collection, args []Arg) (Collection, bool, error) {
		for _, v := range focus {
			b, ok, err := valueTo[Boolean](v, false)
			if err == nil && ok && bool(b) {
				return Collection{Boolean(true)}, true, nil
			}
		}
		return Collection{Boolean(false)}, true, nil
	})

	r.registerFunc("where", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return focus, nil
		}
		return filterByThunk(ctx, focus, args[0].Thunk)
	})
	r.registerFunc("select", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return focus, nil
		}
		var out Collection
		for i, item := range focus {
			v, err := args[0].Thunk(ctx, item, i, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	})
	r.registerFunc("all", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return Collection{Boolean(true)}, nil
		}
		for i, item := range focus {
			v, err := args[0].Thunk(ctx, item, i, nil)
			if err != nil {
				return nil, err
			}
			b, ok, err := Singleton[Boolean](v)
			if err != nil {
				return nil, err
			}
			if !ok || !bool(b) {
				return Collection{Boolean(false)}, nil
			}
		}
		return Collection{Boolean(true)}, nil
	})
	r.registerFunc("any", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return Collection{Boolean(len(focus) > 0)}, nil
		}
		for i, item := range focus {
			v, err := args[0].Thunk(ctx, item, i, nil)
			if err != nil {
				return nil, err
			}
			b, ok, err := Singleton[Boolean](v)
			if err != nil {
				return nil, err
			}
			if ok && bool(b) {
				return Collection{Boolean(true)}, nil
			}
		}
		return Collection{Boolean(false)}, nil
	})
	r.registerFunc("repeat", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return focus, nil
		}
		var result Collection
		frontier := focus
		for len(frontier) > 0 {
			var next Collection
			for i, item := range frontier {
				v, err := args[0].Thunk(ctx, item, i, nil)
				if err != nil {
					return nil, err
				}
				for _, nv := range v {
					if !result.Contains(nv) {
						result = append(result, nv)
						next = append(next, nv)
					}
				}
			}
			frontier = next
		}
		return result, nil
	})
	// aggregate(aggregator [, init]): without init, $total starts as the
	// empty collection, and arithmetic on it propagates Empty.
	r.registerFunc("aggregate", CategoryAggregate, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("aggregate() requires an aggregator expression")
		}
		total := Collection{}
		if len(args) > 1 {
			total = args[1].Value
		}
		for i, item := range focus {
			v, err := args[0].Thunk(ctx, item, i, total)
			if err != nil {
				return nil, err
			}
			total = v
			if total == nil {
				total = Collection{}
			}
		}
		return total, nil
	})
	r.registerFunc("sort", CategoryCollection, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		out := append(Collection{}, focus...)
		if len(args) == 0 {
			sortByCmp(out)
			return out, nil
		}
		keys := make([]Value, len(out))
		for i, item := range out {
			k, err := args[0].Thunk(ctx, item, i, nil)
			if err != nil {
				return nil, err
			}
			kv, ok, err := Singleton[Value](k)
			if err != nil {
				return nil, err
			}
			if ok {
				keys[i] = kv
			}
		}
		sortByKeys(out, keys)
		return out, nil
	})
	r.registerFunc("children", CategoryNavigation, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		var out Collection
		for _, item := range focus {
			out = append(out, item.Children()...)
		}
		return out, nil
	})
	r.registerFunc("descendants", CategoryNavigation, true, func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
		var out Collection
		frontier := focus
		for len(frontier) > 0 {
			var next Collection
			for _, item := range frontier {
				children := item.Children()
				out = append(out, children...)
				next = append(next, children...)
			}
			frontier = next
		}
		return out, nil
	})
}

// sortByCmp stable-sorts items by their natural ordering, for sort()'s
// no-criteria form; items that can't be compared keep their relative
// position.
func sortByCmp(items Collection) {
	sort.SliceStable(items, func(i, j int) bool {
		cmp, ok, err := Collection{items[i]}.Cmp(Collection{items[j]})
		if err != nil || !ok {
			return false
		}
		return cmp < 0
	})
}

// sortByKeys stable-sorts items by a parallel slice of per-item sort keys
// computed from sort()'s criteria expression. A nil key (criteria
// evaluated to Empty for that item) sorts last.
func sortByKeys(items Collection, keys []Value) {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka == nil {
			return false
		}
		if kb == nil {
			return true
		}
		cmp, ok, err := Collection{ka}.Cmp(Collection{kb})
		if err != nil || !ok {
			return false
		}
		return cmp < 0
	})
	sorted := make(Collection, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}

// filterByThunk evaluates the where()/exists() predicate per item and
// keeps the items for which it evaluated truthy.
func filterByThunk(ctx context.Context, focus Collection, predicate Thunk) (Collection, error) {
	if predicate == nil {
		return focus, nil
	}
	var out Collection
	for i, item := range focus {
		v, err := predicate(ctx, item, i, nil)
		if err != nil {
			return nil, err
		}
		b, ok, err := Singleton[Boolean](v)
		if err != nil {
			return nil, err
		}
		if ok && bool(b) {
			out = append(out, item)
		}
	}
	return out, nil
}
