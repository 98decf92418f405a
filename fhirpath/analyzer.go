package fhirpath

import (
	"context"

	"github.com/iancoleman/strcase"
)

// Analyzer walks a parsed tree and resolves every property/function
// reference against a ModelProvider, recording the resolved TypeInfo on
// each node and emitting diagnostics for anything it can't resolve. It
// never refuses to finish: an unresolved
// node degrades to an untyped result rather than aborting the pass, the
// same partial-tree-tolerant posture the parser's ModeAnalysis takes.
type Analyzer struct {
	model    ModelProvider
	registry *Registry
}

// NewAnalyzer builds an Analyzer over model and the same built-in
// function registry the evaluator uses, so "unknown function" checks stay
// in sync with what can actually be evaluated.
func NewAnalyzer(model ModelProvider) *Analyzer {
	return &Analyzer{model: model, registry: defaultRegistry()}
}

// analysisScope threads the current chain-head type and lambda bindings
// through the walk, mirroring EvalState's shape without any runtime data.
type analysisScope struct {
	this  TypeInfo
	index bool
	total bool
	vars  map[string]TypeInfo
}

func (s analysisScope) withThis(t TypeInfo) analysisScope {
	cp := s
	cp.this = t
	cp.index = true
	return cp
}

func (s analysisScope) withTotal() analysisScope {
	cp := s
	cp.total = true
	return cp
}

// Analyze resolves expr's types against rootType, returning every
// diagnostic encountered. The tree itself is annotated in place via each
// Expr's SetType.
func (a *Analyzer) Analyze(ctx context.Context, expr Expr, rootType TypeInfo) []Diagnostic {
	sink := &Sink{}
	scope := analysisScope{this: rootType, vars: map[string]TypeInfo{
		"context": rootType, "resource": rootType, "rootResource": rootType,
	}}
	a.walk(ctx, expr, rootType, scope, sink)
	return sink.Diagnostics()
}

func (a *Analyzer) walk(ctx context.Context, expr Expr, focusType TypeInfo, scope analysisScope, sink *Sink) TypeInfo {
	if expr == nil {
		return nil
	}
	switch n := expr.(type) {
	case *LiteralExpr:
		var t TypeInfo
		if n.Value != nil {
			t = n.Value.TypeInfo()
		}
		n.SetType(orUnknown(t))
		return t
	case *IdentifierExpr:
		return a.resolveProperty(ctx, n, focusType, sink)
	case *VariableExpr:
		return a.resolveVariable(n, scope, sink)
	case *PathExpr:
		recvType := focusType
		if n.Receiver != nil {
			recvType = a.walk(ctx, n.Receiver, focusType, scope, sink)
		}
		if n.Member == "$this" {
			n.SetType(orUnknown(recvType))
			return recvType
		}
		t := a.resolveElement(ctx, recvType, n.Member, sink, n.Span())
		n.SetType(orUnknown(t))
		return t
	case *IndexExpr:
		targetType := a.walk(ctx, n.Target, focusType, scope, sink)
		a.walk(ctx, n.Index, focusType, scope, sink)
		elemType := unwrapList(targetType)
		n.SetType(orUnknown(elemType))
		return elemType
	case *UnaryExpr:
		t := a.walk(ctx, n.Operand, focusType, scope, sink)
		n.SetType(orUnknown(t))
		return t
	case *BinaryExpr:
		return a.walkBinary(ctx, n, focusType, scope, sink)
	case *FunctionCallExpr:
		return a.walkCall(ctx, n, focusType, scope, sink)
	case *TypeSpecifierExpr:
		return nil
	case *ErrorExpr:
		return nil
	default:
		return nil
	}
}

func (a *Analyzer) walkBinary(ctx context.Context, n *BinaryExpr, focusType TypeInfo, scope analysisScope, sink *Sink) TypeInfo {
	if n.Op == "is" || n.Op == "as" {
		a.walk(ctx, n.Left, focusType, scope, sink)
		a.checkTypeSpecifier(ctx, n.Right, sink)
		if n.Op == "as" {
			return a.typeSpecifierType(n.Right)
		}
		t := SimpleTypeInfo{Namespace: "System", Name: "Boolean"}
		n.SetType(t)
		return t
	}
	a.walk(ctx, n.Left, focusType, scope, sink)
	a.walk(ctx, n.Right, focusType, scope, sink)
	var t TypeInfo
	switch n.Op {
	case "=", "!=", "~", "!~", "<", "<=", ">", ">=", "in", "contains", "and", "or", "xor", "implies":
		t = SimpleTypeInfo{Namespace: "System", Name: "Boolean"}
	case "&":
		t = SimpleTypeInfo{Namespace: "System", Name: "String"}
	}
	n.SetType(orUnknown(t))
	return t
}

func (a *Analyzer) checkTypeSpecifier(ctx context.Context, expr Expr, sink *Sink) {
	spec, ok := expr.(*TypeSpecifierExpr)
	if !ok || a.model == nil {
		return
	}
	if _, found, err := a.model.GetType(ctx, spec.String()); err == nil && !found {
		sink.Add(newWarning(CodeUnknownType, expr.Span(), "unknown type %q", spec.String()))
	}
}

func (a *Analyzer) typeSpecifierType(expr Expr) TypeInfo {
	spec, ok := expr.(*TypeSpecifierExpr)
	if !ok {
		return nil
	}
	ns := spec.Namespace
	if ns == "" {
		ns = "FHIR"
	}
	return SimpleTypeInfo{Namespace: ns, Name: spec.Name}
}

func (a *Analyzer) walkCall(ctx context.Context, n *FunctionCallExpr, focusType TypeInfo, scope analysisScope, sink *Sink) TypeInfo {
	callFocus := focusType
	if n.Receiver != nil {
		callFocus = a.walk(ctx, n.Receiver, focusType, scope, sink)
	}
	if n.Name == "iif" {
		if len(n.Args) >= 1 {
			a.walk(ctx, n.Args[0], focusType, scope, sink)
		}
		var t TypeInfo
		if len(n.Args) >= 2 {
			t = a.walk(ctx, n.Args[1], focusType, scope, sink)
		}
		if len(n.Args) >= 3 {
			a.walk(ctx, n.Args[2], focusType, scope, sink)
		}
		n.SetType(orUnknown(t))
		return t
	}
	if _, ok := a.registry.Lookup(n.Name); !ok {
		sink.Add(a.unknownFunctionDiagnostic(n))
	}
	if IsLambdaFunction(n.Name) {
		elemType := unwrapList(callFocus)
		itemScope := scope.withThis(elemType)
		for i, argExpr := range n.Args {
			inner := itemScope
			if n.Name == "aggregate" && i == 1 {
				a.walk(ctx, argExpr, focusType, scope, sink)
				continue
			}
			if n.Name == "aggregate" {
				inner = inner.withTotal()
			}
			a.walk(ctx, argExpr, elemType, inner, sink)
		}
	} else {
		for _, argExpr := range n.Args {
			a.walk(ctx, argExpr, focusType, scope, sink)
		}
	}
	n.SetType(orUnknown(nil))
	return nil
}

// unknownFunctionDiagnostic builds an "unknown function" diagnostic with a
// nearest-match suggestion computed via strcase-normalized Levenshtein
// distance over the registry's names, the same edit-distance-suggestion
// approach common CLI tools use for "did you mean" hints on typoed
// flags.
func (a *Analyzer) unknownFunctionDiagnostic(n *FunctionCallExpr) Diagnostic {
	d := newDiag(CodeUnknownFunction, n.Span(), "unknown function %q", n.Name)
	if best, dist := closestName(n.Name, a.registry.Names()); best != "" && dist <= 3 {
		d.Help = "did you mean " + best + "()?"
	}
	return d
}

func closestName(name string, candidates []string) (string, int) {
	normalized := strcase.ToLowerCamel(name)
	best := ""
	bestDist := -1
	for _, c := range candidates {
		dist := levenshtein(normalized, strcase.ToLowerCamel(c))
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best, bestDist
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur := make([]int, len(rb)+1)
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func (a *Analyzer) resolveVariable(n *VariableExpr, scope analysisScope, sink *Sink) TypeInfo {
	if n.IsSystem {
		switch n.Name {
		case "this":
			n.SetType(orUnknown(scope.this))
			return scope.this
		case "index":
			t := SimpleTypeInfo{Namespace: "System", Name: "Integer"}
			n.SetType(t)
			return t
		case "total":
			n.SetType(orUnknown(scope.this))
			return scope.this
		}
	}
	if t, ok := scope.vars[n.Name]; ok {
		n.SetType(orUnknown(t))
		return t
	}
	sink.Add(newWarning(CodeUnknownProperty, n.Span(), "unknown variable %%%s", n.Name))
	return nil
}

func (a *Analyzer) resolveProperty(ctx context.Context, n *IdentifierExpr, focusType TypeInfo, sink *Sink) TypeInfo {
	if a.model != nil {
		if t, found, err := a.model.GetType(ctx, n.Name); err == nil && found {
			n.SetType(t)
			return t
		}
	}
	t := a.resolveElement(ctx, focusType, n.Name, sink, n.Span())
	n.SetType(orUnknown(t))
	return t
}

func (a *Analyzer) resolveElement(ctx context.Context, parent TypeInfo, name string, sink *Sink, span Span) TypeInfo {
	if parent == nil || a.model == nil {
		return nil
	}
	t, found, err := a.model.GetElementType(ctx, unwrapList(parent), name)
	if err != nil || !found {
		sink.Add(newWarning(CodeUnknownProperty, span, "unknown property %q on %s", name, parent.String()))
		return nil
	}
	return t
}

func unwrapList(t TypeInfo) TypeInfo {
	if list, ok := t.(ListTypeInfo); ok {
		return list.ElementType
	}
	return t
}

func orUnknown(t TypeInfo) TypeInfo {
	if t != nil {
		return t
	}
	return SimpleTypeInfo{Namespace: "System", Name: "Any"}
}
