package fhirpath

import (
	"context"
	"fmt"
)

// OperationCategory groups registry entries by functional area; each
// Operation reports its own through Category().
type OperationCategory string

const (
	CategoryArithmetic OperationCategory = "arithmetic"
	CategoryComparison OperationCategory = "comparison"
	CategoryEquality   OperationCategory = "equality"
	CategoryLogical    OperationCategory = "logical"
	CategoryCollection OperationCategory = "collection"
	CategoryString     OperationCategory = "string"
	CategoryMath       OperationCategory = "math"
	CategoryDateTime   OperationCategory = "datetime"
	CategoryConversion OperationCategory = "conversion"
	CategoryType       OperationCategory = "type"
	CategoryFHIR       OperationCategory = "fhir"
	CategoryUtility    OperationCategory = "utility"
	CategoryAggregate  OperationCategory = "aggregate"
	CategoryNavigation OperationCategory = "navigation"
	CategoryTerminology OperationCategory = "terminology"
)

// Thunk is an unevaluated lambda-body argument: calling it evaluates the
// sub-expression against the iteration state the registry operation sets
// up per item. total is only meaningful to
// aggregate()'s thunk, which re-binds $total before each call; every
// other lambda function passes the zero value (nil), leaving $total
// unbound as if it were never supplied.
type Thunk func(ctx context.Context, this Value, index int, total Collection) (Collection, error)

// Arg is one call-site argument as the registry sees it: for ordinary
// functions Value holds the pre-evaluated Collection; for lambda
// parameters Thunk is set instead and Value is nil.
type Arg struct {
	Value Collection
	Thunk Thunk
}

// Operation is one registered function or operator. ExecuteAsync is the
// universal entry point; ExecuteSync is an optional fast path a pure,
// non-blocking operation can implement to skip the overhead of the
// evaluator's sync-fast/async-fallback dispatch machinery, mirroring the
// capability-interface split used throughout types.go for arithmetic.
type Operation interface {
	Name() string
	Category() OperationCategory
	IsPure() bool
	ExecuteAsync(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error)
}

// SyncOperation is implemented by operations cheap enough to run without
// going through the context-aware async path.
type SyncOperation interface {
	Operation
	ExecuteSync(focus Collection, args []Arg) (Collection, bool, error)
}

// funcOperation is the common shape nearly every built-in function takes:
// a plain Go closure, wrapped to satisfy Operation.
type funcOperation struct {
	name     string
	category OperationCategory
	pure     bool
	fn       func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error)
}

func (f *funcOperation) Name() string               { return f.name }
func (f *funcOperation) Category() OperationCategory { return f.category }
func (f *funcOperation) IsPure() bool                { return f.pure }
func (f *funcOperation) ExecuteAsync(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
	return f.fn(ctx, focus, args, state)
}

// syncFuncOperation additionally exposes a context-free fast path for
// functions with no lambda arguments and no dependency on cancellation;
// counting, existence, and simple predicate checks mostly qualify.
type syncFuncOperation struct {
	funcOperation
	syncFn func(focus Collection, args []Arg) (Collection, bool, error)
}

func (f *syncFuncOperation) ExecuteSync(focus Collection, args []Arg) (Collection, bool, error) {
	return f.syncFn(focus, args)
}

func (r *Registry) registerSyncFunc(name string, category OperationCategory, syncFn func(Collection, []Arg) (Collection, bool, error)) {
	r.functions[name] = &syncFuncOperation{
		funcOperation: funcOperation{name: name, category: category, pure: true, fn: func(ctx context.Context, focus Collection, args []Arg, state *EvalState) (Collection, error) {
			result, _, err := syncFn(focus, args)
			return result, err
		}},
		syncFn: syncFn,
	}
}

// Registry holds every function the evaluator can dispatch by name.
// Operators (+, =, and, ...) are few, fixed, and precedence-sensitive
// enough that the evaluator's parser-driven switch dispatches them
// directly rather than through a name lookup; the registry covers the
// open-ended function namespace.
type Registry struct {
	functions map[string]Operation
}

func newRegistry() *Registry {
	return &Registry{functions: map[string]Operation{}}
}

func (r *Registry) registerFunc(name string, category OperationCategory, pure bool, fn func(context.Context, Collection, []Arg, *EvalState) (Collection, error)) {
	r.functions[name] = &funcOperation{name: name, category: category, pure: pure, fn: fn}
}

// Lookup finds a registered function by name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.functions[name]
	return op, ok
}

// Names returns every registered function name, for the analyzer's
// "unknown function" suggestion list.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	return names
}

func argSingleton[T Value](args []Arg, i int) (v T, ok bool, err error) {
	if i >= len(args) {
		return v, false, nil
	}
	return Singleton[T](args[i].Value)
}

func requireArity(name string, args []Arg, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("%s: expected between %d and %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}
