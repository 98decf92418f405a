package fhirpath

import "fmt"

// Severity classifies a Diagnostic the way an editor or CI gate would
// triage it. The engine never decides policy on top of severity; callers
// do, since the library does not mandate one.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// DiagnosticCode is a stable identifier for a diagnostic, independent of
// its (potentially reworded) message text.
type DiagnosticCode string

const (
	CodeUnexpectedChar      DiagnosticCode = "lex/unexpected-char"
	CodeUnterminatedString  DiagnosticCode = "lex/unterminated-string"
	CodeBadEscape           DiagnosticCode = "lex/bad-escape"
	CodeUnexpectedToken     DiagnosticCode = "parse/unexpected-token"
	CodeUnclosedDelimiter   DiagnosticCode = "parse/unclosed-delimiter"
	CodeUnexpectedEOF       DiagnosticCode = "parse/unexpected-eof"
	CodeUnknownOperator     DiagnosticCode = "parse/unknown-operator"
	CodeUnknownProperty     DiagnosticCode = "analysis/unknown-property"
	CodeUnknownFunction     DiagnosticCode = "analysis/unknown-function"
	CodeUnknownType         DiagnosticCode = "analysis/unknown-type"
	CodeArityMismatch       DiagnosticCode = "analysis/arity-mismatch"
	CodeTypeMismatch        DiagnosticCode = "analysis/type-mismatch"
	CodeChoiceAmbiguity     DiagnosticCode = "analysis/choice-ambiguity"
	CodeDeprecatedUsage     DiagnosticCode = "analysis/deprecated"
	CodeEvaluation          DiagnosticCode = "eval/error"
	CodeProvider            DiagnosticCode = "eval/provider-error"
	CodeCancelled           DiagnosticCode = "eval/cancelled"
	CodeOversizeExpression  DiagnosticCode = "lex/oversize-expression"
)

// Related attaches a secondary span and message to a Diagnostic, e.g.
// pointing back at an unclosed delimiter's opener.
type Related struct {
	Span    Span
	Message string
}

// Diagnostic is the structured failure/hint unit produced by every stage
// of the pipeline. The engine never panics or throws across its public
// surface; every failure a caller can observe arrives as a Diagnostic or
// as a returned error wrapping one.
type Diagnostic struct {
	Severity    Severity
	Code        DiagnosticCode
	Message     string
	PrimarySpan Span
	Related     []Related
	Help        string
	Note        string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s[%s] %s (%s)", d.Severity, d.Code, d.Message, d.PrimarySpan)
}

// newDiag builds an Error-severity Diagnostic; the common case.
func newDiag(code DiagnosticCode, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity:    SeverityError,
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		PrimarySpan: span,
	}
}

func newWarning(code DiagnosticCode, span Span, format string, args ...any) Diagnostic {
	d := newDiag(code, span, format, args...)
	d.Severity = SeverityWarning
	return d
}

// Sink collects Diagnostics emitted by one stage invocation. It never
// aborts the stage; every append is best-effort bookkeeping, since each
// pipeline stage emits diagnostics without aborting.
type Sink struct {
	diagnostics []Diagnostic
}

func (s *Sink) Add(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

func (s *Sink) Diagnostics() []Diagnostic {
	return s.diagnostics
}

func (s *Sink) HasErrors() bool {
	for _, d := range s.diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
