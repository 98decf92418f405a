package fhirpath

// Expr is the FHIRPath expression tree's closed variant set. Go has no
// native sum types, so the variant is modeled the way a typical
// ANTLR-generated tree models productions: one concrete type per
// grammar shape, joined by a marker interface, except these types are
// hand-written rather than generated, and carry a settable TypeInfo
// slot the analyzer fills in on its pass.
type Expr interface {
	Span() Span
	Type() *TypeInfo
	SetType(TypeInfo)
	exprNode()
}

type exprBase struct {
	span Span
	typ  *TypeInfo
}

func (e *exprBase) Span() Span          { return e.span }
func (e *exprBase) Type() *TypeInfo     { return e.typ }
func (e *exprBase) SetType(t TypeInfo)  { e.typ = &t }
func (e *exprBase) exprNode()           {}

// LiteralExpr is a literal value embedded directly in the tree: boolean,
// string, integer, decimal, date/time/datetime, quantity, or the empty
// collection literal `{}`/`{ }`.
type LiteralExpr struct {
	exprBase
	Value Value
}

// IdentifierExpr is an unresolved bare name; the analyzer decides whether
// it is a resource-type chain head or a property of the caller-provided
// root type.
type IdentifierExpr struct {
	exprBase
	Name string
}

// VariableExpr is $this, $index, $total, or a user %name. Name omits the
// leading sigil; IsSystem reports whether it was one of the three
// built-ins (as opposed to a %-prefixed environment variable).
type VariableExpr struct {
	exprBase
	Name     string
	IsSystem bool
}

// IndexExpr is `Target[Index]`.
type IndexExpr struct {
	exprBase
	Target Expr
	Index  Expr
}

// PathExpr is `.`-navigation: Receiver.Member. Receiver is nil at the
// head of a chain, where the implicit receiver is the current context
// item.
type PathExpr struct {
	exprBase
	Receiver Expr
	Member   string
}

// FunctionCallExpr is `name(args...)`, optionally with an explicit
// Receiver when preceded by `.`: a function call binds to the identifier
// immediately preceding `(`, and when `.` precedes, the left-hand side
// becomes the call's implicit receiver.
type FunctionCallExpr struct {
	exprBase
	Receiver Expr
	Name     string
	Args     []Expr
}

// UnaryExpr is prefix +, -, or not.
type UnaryExpr struct {
	exprBase
	Op      string
	Operand Expr
}

// BinaryExpr covers every infix operator: arithmetic, comparison,
// equality, containership, logical, union `|`, string-concat `&`, and
// implies. `is`/`as` also parse as BinaryExpr with Right holding a
// TypeSpecifierExpr: they take a type specifier on the right, never a
// general expression.
type BinaryExpr struct {
	exprBase
	Op    string
	Left  Expr
	Right Expr
}

// TypeSpecifierExpr is the right operand of is/as/ofType: an optional
// dotted namespace plus a type name.
type TypeSpecifierExpr struct {
	exprBase
	Namespace string
	Name      string
}

func (t TypeSpecifierExpr) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// ErrorExpr is a sentinel synthesized during analysis-mode parser
// recovery: it carries the expected token set and offending span so
// later stages can still walk a structurally valid tree.
type ErrorExpr struct {
	exprBase
	Message  string
	Expected []string
}

// lambdaFunctions are the FHIRPath function names whose non-receiver
// arguments are lambda bodies: unevaluated sub-trees with a fresh
// $this/$index/(optionally $total) scope, rather than values evaluated
// once up front. iif is deliberately
// excluded: its branches are evaluated lazily (only the taken one runs),
// but against the *same* $this as the caller, not a per-item scope; the
// evaluator special-cases it directly rather than through the registry.
var lambdaFunctions = map[string]bool{
	"where": true, "select": true, "all": true, "any": true,
	"aggregate": true, "repeat": true, "sort": true, "exists": true,
}

// IsLambdaFunction reports whether name accepts at least one unevaluated
// lambda-body argument.
func IsLambdaFunction(name string) bool {
	return lambdaFunctions[name]
}

// aggregateNonLambdaArgs is the set of aggregate()'s argument positions
// that are evaluated once, eagerly, against the outer context. Only its
// first argument (the accumulator expression) is a per-item lambda body.
var aggregateNonLambdaArgs = map[int]bool{1: true}
