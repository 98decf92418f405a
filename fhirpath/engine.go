package fhirpath

import (
	"context"
	"fmt"
)

// Expression is a parsed FHIRPath expression, ready to be type-checked
// and/or evaluated repeatedly against different roots. Expressions are
// created with Parse or MustParse.
type Expression struct {
	src  string
	tree Expr
}

// String returns the original source text the Expression was parsed from.
func (e Expression) String() string { return e.src }

// Parse parses expr in ModeFast: the first syntax error aborts the parse
// and is returned alongside any diagnostics collected up to that point.
// Use ParseForAnalysis for editor-style partial-tree recovery.
//
// Example:
//
//	expr, diags, err := fhirpath.Parse("Patient.name.given")
func Parse(expr string) (Expression, []Diagnostic, error) {
	tree, diags := ParseExpression(expr, ModeFast)
	if tree == nil {
		return Expression{}, diags, firstError(diags, expr)
	}
	return Expression{src: expr, tree: tree}, diags, nil
}

// ParseForAnalysis parses expr in ModeAnalysis, always returning a
// structurally usable tree padded with ErrorExpr sentinels where recovery
// was needed. Intended for frontends that want best-effort diagnostics
// over a document being edited, not a one-shot evaluation.
func ParseForAnalysis(expr string) (Expression, []Diagnostic) {
	tree, diags := ParseExpression(expr, ModeAnalysis)
	return Expression{src: expr, tree: tree}, diags
}

// MustParse parses expr and panics if it doesn't parse cleanly. Intended
// for hardcoded expressions (tests, constants), not for untrusted input.
func MustParse(expr string) Expression {
	e, _, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func firstError(diags []Diagnostic, expr string) error {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return fmt.Errorf("parse %q: %w", expr, d)
		}
	}
	return fmt.Errorf("parse %q: failed with no diagnostic", expr)
}

// Engine wires the tokenizer/parser, static analyzer, and evaluator
// together over a single ModelProvider, mirroring the common pattern of
// a package-level Parse/Evaluate pair that wires a full pipeline,
// except here the pipeline stages are separate methods so a caller can
// run Analyze without also Evaluate-ing, or vice versa.
type Engine struct {
	model    ModelProvider
	analyzer *Analyzer
	eval     *Evaluator
}

// NewEngine builds an Engine over model. A nil model is valid: analysis
// degrades to untyped best-effort, and evaluation still works for any
// expression that doesn't require schema lookups (literals, arithmetic,
// lambdas over values already in hand).
func NewEngine(model ModelProvider) *Engine {
	return &Engine{
		model:    model,
		analyzer: NewAnalyzer(model),
		eval:     NewEvaluator(model),
	}
}

// Analyze type-annotates expr's tree against rootType and returns every
// diagnostic the static analyzer produced. It never mutates expr's
// source text, but it records TypeInfo annotations on the nodes of expr's
// tree, so concurrent Analyze calls on the same Expression race on those
// annotations whatever rootType each one passes.
func (e *Engine) Analyze(ctx context.Context, expr Expression, rootType TypeInfo) []Diagnostic {
	return e.analyzer.Analyze(ctx, expr.tree, rootType)
}

// Evaluate walks expr against root, honoring ctx cancellation at node
// boundaries and suspension points. vars seeds the evaluation's
// variable scope (e.g. "resource", "context": keys carry no % sigil)
// beyond the implicit root binding.
func (e *Engine) Evaluate(ctx context.Context, expr Expression, root Value, vars map[string]Collection) (Collection, error) {
	return e.eval.Evaluate(ctx, expr.tree, root, vars)
}

// EvaluateString parses and evaluates expr against root in one call, the
// convenience path for callers that don't need to reuse a parsed
// Expression across multiple evaluations.
func (e *Engine) EvaluateString(ctx context.Context, expr string, root Value, vars map[string]Collection) (Collection, error) {
	parsed, _, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, parsed, root, vars)
}

// Model returns the ModelProvider the Engine was constructed with.
func (e *Engine) Model() ModelProvider { return e.model }
