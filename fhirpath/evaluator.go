package fhirpath

import (
	"context"
	"fmt"
)

// Tracer receives trace() calls during evaluation. trace() is non-pure:
// it must run exactly once per invocation, in program order, even
// across concurrent sub-evaluations. When ctx carries no Tracer, trace()
// calls are discarded; WithTracer installs one (StdoutTracer, for
// example) per-evaluation the same way WithAPDContext overrides decimal
// precision.
type Tracer interface {
	Trace(name string, values Collection)
}

type noopTracer struct{}

func (noopTracer) Trace(name string, values Collection) {}

// StdoutTracer writes each trace() call to stdout. It is opt-in: it is
// used only when installed with WithTracer.
type StdoutTracer struct{}

func (StdoutTracer) Trace(name string, values Collection) {
	fmt.Printf("[trace] %s: %s\n", name, values)
}

type tracerKey struct{}

// WithTracer overrides the Tracer used for trace() calls in ctx.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

func tracerFrom(ctx context.Context) Tracer {
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok && t != nil {
		return t
	}
	return noopTracer{}
}

// EvalState is the evaluator's thread of context: the root input, the
// current $this/$index/$total lambda bindings, and user variables.
// Evaluating a sub-expression never mutates a state in place: every
// descent produces a derived copy, so concurrent branches (e.g. function
// arguments evaluated ahead of a cancellation check) never race on
// shared mutable state.
type EvalState struct {
	Model    ModelProvider
	Registry *Registry
	Root     Value
	Vars     map[string]Collection
	This     Value
	HasThis  bool
	Index    int
	HasIndex bool
	Total    Collection
	HasTotal bool
}

func (s *EvalState) withThis(v Value, index int) *EvalState {
	cp := *s
	cp.This = v
	cp.HasThis = true
	cp.Index = index
	cp.HasIndex = true
	return &cp
}

func (s *EvalState) withTotal(total Collection) *EvalState {
	cp := *s
	cp.Total = total
	cp.HasTotal = true
	return &cp
}

func (s *EvalState) withVar(name string, val Collection) *EvalState {
	cp := *s
	vars := make(map[string]Collection, len(s.Vars)+1)
	for k, v := range s.Vars {
		vars[k] = v
	}
	vars[name] = val
	cp.Vars = vars
	return &cp
}

// Evaluator walks a parsed Expr tree against a concrete data root,
// dispatching navigation through a ModelProvider and functions/operators
// through a Registry.
type Evaluator struct {
	model    ModelProvider
	registry *Registry
}

// NewEvaluator builds an Evaluator over model and the default built-in
// function/operator registry.
func NewEvaluator(model ModelProvider) *Evaluator {
	return &Evaluator{model: model, registry: defaultRegistry()}
}

// Evaluate runs expr against root with the given initial variables
// (typically at least "context"/"resource"/"rootResource"), honoring
// ctx cancellation at node boundaries.
func (e *Evaluator) Evaluate(ctx context.Context, expr Expr, root Value, vars map[string]Collection) (Collection, error) {
	state := &EvalState{Model: e.model, Registry: e.registry, Root: root, Vars: vars}
	ctx = withDefinedVars(ctx)
	var focus Collection
	if root != nil {
		focus = Collection{root}
	}
	return e.eval(ctx, expr, focus, state)
}

// definedVarsKey holds the shared, mutable store defineVariable() writes
// into: defineVariable(name, value) introduces a variable visible to the
// rest of the expression. EvalState
// itself is copy-on-write and never flows back out of a function call, so
// a binding made mid-chain needs a side channel that the rest of the same
// top-level Evaluate() call shares, the same reason Tracer lives in ctx
// rather than EvalState.
type definedVarsKey struct{}

func withDefinedVars(ctx context.Context) context.Context {
	if _, ok := ctx.Value(definedVarsKey{}).(*map[string]Collection); ok {
		return ctx
	}
	vars := map[string]Collection{}
	return context.WithValue(ctx, definedVarsKey{}, &vars)
}

func definedVar(ctx context.Context, name string) (Collection, bool) {
	store, ok := ctx.Value(definedVarsKey{}).(*map[string]Collection)
	if !ok {
		return nil, false
	}
	v, ok := (*store)[name]
	return v, ok
}

func setDefinedVar(ctx context.Context, name string, value Collection) {
	store, ok := ctx.Value(definedVarsKey{}).(*map[string]Collection)
	if !ok {
		return
	}
	(*store)[name] = value
}

func (e *Evaluator) eval(ctx context.Context, expr Expr, focus Collection, state *EvalState) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := expr.(type) {
	case *LiteralExpr:
		if n.Value == nil {
			return nil, nil
		}
		return Collection{n.Value}, nil
	case *IdentifierExpr:
		return e.navigate(ctx, focus, n.Name, state.Model)
	case *VariableExpr:
		return e.evalVariable(ctx, n, state)
	case *PathExpr:
		recv := focus
		if n.Receiver != nil {
			var err error
			recv, err = e.eval(ctx, n.Receiver, focus, state)
			if err != nil {
				return nil, err
			}
		}
		if n.Member == "$this" {
			return recv, nil
		}
		return e.navigate(ctx, recv, n.Member, state.Model)
	case *IndexExpr:
		target, err := e.eval(ctx, n.Target, focus, state)
		if err != nil {
			return nil, err
		}
		idxColl, err := e.eval(ctx, n.Index, focus, state)
		if err != nil {
			return nil, err
		}
		idx, ok, err := Singleton[Integer](idxColl)
		if err != nil || !ok {
			return nil, nil
		}
		if idx < 0 || int(idx) >= len(target) {
			return nil, nil
		}
		return Collection{target[idx]}, nil
	case *UnaryExpr:
		return e.evalUnary(ctx, n, focus, state)
	case *BinaryExpr:
		return e.evalBinary(ctx, n, focus, state)
	case *FunctionCallExpr:
		return e.evalCall(ctx, n, focus, state)
	case *ErrorExpr:
		return nil, fmt.Errorf("parse error: %s", n.Message)
	default:
		return nil, fmt.Errorf("unhandled expression node %T", expr)
	}
}

// navigate implements property access: a Resource item whose own type
// name equals name is kept as-is (an identity filter, applied at any
// position in a chain); every other item descends into its children. When model is non-nil,
// choice-type properties (`value[x]`) are resolved against the schema it
// describes rather than guessed from the raw JSON keys present, the same
// resolution analyzer.go performs statically; model == nil degrades to the
// heuristic Resource.Children walk, matching Engine's documented
// nil-model behavior.
func (e *Evaluator) navigate(ctx context.Context, focus Collection, name string, model ModelProvider) (Collection, error) {
	var out Collection
	for _, item := range focus {
		res, isRes := item.(*Resource)
		if isRes && res.TypeName == name {
			out = append(out, item)
			continue
		}
		if isRes && model != nil {
			parentType := SimpleTypeInfo{Namespace: "FHIR", Name: res.TypeName}
			isChoice, err := model.IsChoiceProperty(ctx, parentType, name)
			if err != nil {
				return nil, err
			}
			if isChoice {
				variants, err := model.GetChoiceVariants(ctx, parentType, name)
				if err != nil {
					return nil, err
				}
				for _, v := range variants {
					if raw, ok := res.Fields[name+v.Suffix]; ok {
						out = append(out, res.toValues(raw, typeInfoName(v.Type))...)
						break
					}
				}
				continue
			}
		}
		out = append(out, item.Children(name)...)
	}
	return out, nil
}

// typeInfoName extracts the bare local name from a TypeInfo, stripping
// any namespace qualifier ("FHIR.Quantity" -> "Quantity"), for stamping
// onto a choice-resolved child's TypeName.
func typeInfoName(t TypeInfo) string {
	if s, ok := t.(SimpleTypeInfo); ok {
		return s.Name
	}
	return t.String()
}

func (e *Evaluator) evalVariable(ctx context.Context, n *VariableExpr, state *EvalState) (Collection, error) {
	if n.IsSystem {
		switch n.Name {
		case "this":
			if !state.HasThis {
				return nil, fmt.Errorf("$this is not bound here")
			}
			if state.This == nil {
				return nil, nil
			}
			return Collection{state.This}, nil
		case "index":
			if !state.HasIndex {
				return nil, fmt.Errorf("$index is not bound here")
			}
			return Collection{Integer(state.Index)}, nil
		case "total":
			if !state.HasTotal {
				return nil, fmt.Errorf("$total is not bound here")
			}
			return state.Total, nil
		}
	}
	switch n.Name {
	case "context", "resource", "rootResource":
		if v, ok := state.Vars[n.Name]; ok {
			return v, nil
		}
		if state.Root == nil {
			return nil, nil
		}
		return Collection{state.Root}, nil
	}
	if v, ok := state.Vars[n.Name]; ok {
		return v, nil
	}
	if v, ok := definedVar(ctx, n.Name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown variable %%%s", n.Name)
}

func (e *Evaluator) evalUnary(ctx context.Context, n *UnaryExpr, focus Collection, state *EvalState) (Collection, error) {
	operand, err := e.eval(ctx, n.Operand, focus, state)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		b, ok, err := Singleton[Boolean](operand)
		if err != nil || !ok {
			return nil, err
		}
		return Collection{!b}, nil
	case "+":
		return operand, nil
	case "-":
		v, ok, err := Singleton[Value](operand)
		if err != nil || !ok {
			return nil, err
		}
		switch x := v.(type) {
		case Integer:
			return Collection{-x}, nil
		case Decimal:
			neg := x.Value.Neg(x.Value)
			return Collection{Decimal{Value: neg}}, nil
		case Quantity:
			neg := x.Value.Value.Neg(x.Value.Value)
			return Collection{Quantity{Value: Decimal{Value: neg}, Unit: x.Unit}}, nil
		default:
			return nil, fmt.Errorf("unary - not supported on %T", v)
		}
	default:
		return nil, fmt.Errorf("unknown unary operator %q", n.Op)
	}
}

func (e *Evaluator) evalBinary(ctx context.Context, n *BinaryExpr, focus Collection, state *EvalState) (Collection, error) {
	switch n.Op {
	case "and":
		return e.evalLogical3(ctx, n, focus, state, false)
	case "or":
		return e.evalLogical3(ctx, n, focus, state, true)
	case "xor":
		left, err := e.evalBoolOperand(ctx, n.Left, focus, state)
		if err != nil {
			return nil, err
		}
		right, err := e.evalBoolOperand(ctx, n.Right, focus, state)
		if err != nil {
			return nil, err
		}
		if left == nil || right == nil {
			return nil, nil
		}
		return Collection{Boolean(*left != *right)}, nil
	case "implies":
		left, err := e.evalBoolOperand(ctx, n.Left, focus, state)
		if err != nil {
			return nil, err
		}
		if left != nil && !*left {
			return Collection{Boolean(true)}, nil
		}
		right, err := e.evalBoolOperand(ctx, n.Right, focus, state)
		if err != nil {
			return nil, err
		}
		if right != nil && *right {
			return Collection{Boolean(true)}, nil
		}
		if left == nil || right == nil {
			return nil, nil
		}
		return Collection{Boolean(false)}, nil
	case "is", "as":
		return e.evalTypeOp(ctx, n, focus, state)
	}

	left, err := e.eval(ctx, n.Left, focus, state)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(ctx, n.Right, focus, state)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "=", "!=":
		eq, ok := left.Equal(right)
		if !ok {
			return nil, nil
		}
		if n.Op == "!=" {
			eq = !eq
		}
		return Collection{Boolean(eq)}, nil
	case "~", "!~":
		eq := left.Equivalent(right)
		if n.Op == "!~" {
			eq = !eq
		}
		return Collection{Boolean(eq)}, nil
	case "<", "<=", ">", ">=":
		cmp, ok, err := left.Cmp(right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		var result bool
		switch n.Op {
		case "<":
			result = cmp < 0
		case "<=":
			result = cmp <= 0
		case ">":
			result = cmp > 0
		case ">=":
			result = cmp >= 0
		}
		return Collection{Boolean(result)}, nil
	case "in":
		if len(left) == 0 {
			return nil, nil
		}
		item, ok, err := Singleton[Value](left)
		if err != nil || !ok {
			return nil, err
		}
		return Collection{Boolean(right.Contains(item))}, nil
	case "contains":
		if len(right) == 0 {
			return nil, nil
		}
		item, ok, err := Singleton[Value](right)
		if err != nil || !ok {
			return nil, err
		}
		return Collection{Boolean(left.Contains(item))}, nil
	case "|":
		return left.Union(right), nil
	case "&":
		return left.Concat(ctx, right)
	case "+":
		return left.Add(ctx, right)
	case "-":
		return left.Subtract(ctx, right)
	case "*":
		return left.Multiply(ctx, right)
	case "/":
		return left.Divide(ctx, right)
	case "div":
		return left.Div(ctx, right)
	case "mod":
		return left.Mod(ctx, right)
	default:
		return nil, fmt.Errorf("unknown binary operator %q", n.Op)
	}
}

// evalBoolOperand evaluates a boolean operand for and/or/xor/implies,
// returning nil for Empty so callers can apply FHIRPath's three-valued
// logic table instead of collapsing straight to an error.
func (e *Evaluator) evalBoolOperand(ctx context.Context, expr Expr, focus Collection, state *EvalState) (*bool, error) {
	c, err := e.eval(ctx, expr, focus, state)
	if err != nil {
		return nil, err
	}
	b, ok, err := Singleton[Boolean](c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	v := bool(b)
	return &v, nil
}

// evalLogical3 implements and/or's three-valued logic table: a dominant
// value on either side (false for and, true for or) decides the result
// even when the other side is Empty; otherwise any Empty operand makes
// the result Empty.
func (e *Evaluator) evalLogical3(ctx context.Context, n *BinaryExpr, focus Collection, state *EvalState, isOr bool) (Collection, error) {
	left, err := e.evalBoolOperand(ctx, n.Left, focus, state)
	if err != nil {
		return nil, err
	}
	if left != nil && *left == isOr {
		return Collection{Boolean(isOr)}, nil
	}
	right, err := e.evalBoolOperand(ctx, n.Right, focus, state)
	if err != nil {
		return nil, err
	}
	if right != nil && *right == isOr {
		return Collection{Boolean(isOr)}, nil
	}
	if left == nil || right == nil {
		return nil, nil
	}
	if isOr {
		return Collection{Boolean(*left || *right)}, nil
	}
	return Collection{Boolean(*left && *right)}, nil
}

func (e *Evaluator) evalTypeOp(ctx context.Context, n *BinaryExpr, focus Collection, state *EvalState) (Collection, error) {
	left, err := e.eval(ctx, n.Left, focus, state)
	if err != nil {
		return nil, err
	}
	spec, ok := n.Right.(*TypeSpecifierExpr)
	if !ok {
		return nil, fmt.Errorf("%s requires a type specifier operand", n.Op)
	}
	item, ok, err := Singleton[Value](left)
	if err != nil {
		return nil, err
	}
	if !ok {
		if n.Op == "is" {
			return Collection{Boolean(false)}, nil
		}
		return nil, nil
	}
	matches, err := e.matchesType(ctx, item, spec)
	if err != nil {
		return nil, err
	}
	if n.Op == "is" {
		return Collection{Boolean(matches)}, nil
	}
	if matches {
		return Collection{item}, nil
	}
	return nil, nil
}

// typeSpecifierFromExpr recovers a type specifier from the raw argument
// AST of an ofType() call. The parser treats is/as operands specially
// via parseTypeSpecifier, but a function argument is parsed as a plain
// expression, so a bare type name like Observation or FHIR.Quantity
// arrives here as an IdentifierExpr or PathExpr rather than a
// TypeSpecifierExpr.
func typeSpecifierFromExpr(e Expr) (*TypeSpecifierExpr, bool) {
	switch n := e.(type) {
	case *TypeSpecifierExpr:
		return n, true
	case *IdentifierExpr:
		return &TypeSpecifierExpr{Name: n.Name}, true
	case *PathExpr:
		if recv, ok := n.Receiver.(*IdentifierExpr); ok {
			return &TypeSpecifierExpr{Namespace: recv.Name, Name: n.Member}, true
		}
	}
	return nil, false
}

// evalIif implements the iif(condition, trueResult[, falseResult])
// built-in directly: only the branch actually taken is evaluated, which
// a registry Operation (receiving already-evaluated Args) can't express.
// iif is the only function guaranteed to short-circuit its unused
// branch.
func (e *Evaluator) evalIif(ctx context.Context, n *FunctionCallExpr, focus Collection, state *EvalState) (Collection, error) {
	if len(n.Args) < 2 || len(n.Args) > 3 {
		return nil, fmt.Errorf("iif() expects 2 or 3 arguments, got %d", len(n.Args))
	}
	cond, err := e.eval(ctx, n.Args[0], focus, state)
	if err != nil {
		return nil, err
	}
	b, ok, err := Singleton[Boolean](cond)
	if err != nil {
		return nil, err
	}
	if ok && bool(b) {
		return e.eval(ctx, n.Args[1], focus, state)
	}
	if len(n.Args) == 3 {
		return e.eval(ctx, n.Args[2], focus, state)
	}
	return nil, nil
}

func (e *Evaluator) matchesType(ctx context.Context, item Value, spec *TypeSpecifierExpr) (bool, error) {
	itemType := item.TypeInfo()
	itemSimple, ok := itemType.(SimpleTypeInfo)
	if !ok {
		return false, nil
	}
	if spec.Namespace != "" {
		if itemSimple.Namespace == spec.Namespace && itemSimple.Name == spec.Name {
			return true, nil
		}
	} else if itemSimple.Name == spec.Name {
		return true, nil
	}
	if e.model == nil {
		return false, nil
	}
	target, found, err := e.model.GetType(ctx, spec.String())
	if err != nil || !found {
		return false, err
	}
	return e.model.IsSubtypeOf(ctx, itemType, target)
}

func (e *Evaluator) evalCall(ctx context.Context, n *FunctionCallExpr, focus Collection, state *EvalState) (Collection, error) {
	callFocus := focus
	if n.Receiver != nil {
		var err error
		callFocus, err = e.eval(ctx, n.Receiver, focus, state)
		if err != nil {
			return nil, err
		}
	}
	if n.Name == "iif" {
		return e.evalIif(ctx, n, focus, state)
	}
	op, ok := state.Registry.Lookup(n.Name)
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.Name)
	}
	args := make([]Arg, len(n.Args))
	if n.Name == "ofType" {
		// ofType's argument is a type specifier, not a general
		// expression: Observation names the FHIR type, it isn't a
		// path to navigate on the receiver.
		for i, argExpr := range n.Args {
			spec, ok := typeSpecifierFromExpr(argExpr)
			if !ok {
				return nil, fmt.Errorf("ofType() requires a type specifier argument, got %s", argExpr)
			}
			name := spec.Name
			if spec.Namespace != "" {
				name = spec.Namespace + "." + spec.Name
			}
			args[i] = Arg{Value: Collection{String(name)}}
		}
		if syncOp, ok := op.(SyncOperation); ok {
			if result, handled, err := syncOp.ExecuteSync(callFocus, args); handled {
				return result, err
			}
		}
		return op.ExecuteAsync(ctx, callFocus, args, state)
	}
	if IsLambdaFunction(n.Name) {
		lambdaExceptions := map[int]bool{}
		if n.Name == "aggregate" {
			lambdaExceptions = aggregateNonLambdaArgs
		}
		for i, argExpr := range n.Args {
			if lambdaExceptions[i] {
				v, err := e.eval(ctx, argExpr, focus, state)
				if err != nil {
					return nil, err
				}
				args[i] = Arg{Value: v}
				continue
			}
			argExpr := argExpr
			args[i] = Arg{Thunk: func(ctx context.Context, this Value, index int, total Collection) (Collection, error) {
				innerState := state.withThis(this, index)
				if total != nil {
					innerState = innerState.withTotal(total)
				}
				var innerFocus Collection
				if this != nil {
					innerFocus = Collection{this}
				}
				return e.eval(ctx, argExpr, innerFocus, innerState)
			}}
		}
	} else {
		for i, argExpr := range n.Args {
			v, err := e.eval(ctx, argExpr, focus, state)
			if err != nil {
				return nil, err
			}
			args[i] = Arg{Value: v}
		}
	}
	if syncOp, ok := op.(SyncOperation); ok {
		if result, handled, err := syncOp.ExecuteSync(callFocus, args); handled {
			return result, err
		}
	}
	return op.ExecuteAsync(ctx, callFocus, args, state)
}
