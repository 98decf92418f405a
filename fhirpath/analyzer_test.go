package fhirpath

import (
	"context"
	"testing"
)

func patientType(t *testing.T, model ModelProvider) TypeInfo {
	t.Helper()
	ti, found, err := model.GetType(context.Background(), "Patient")
	if err != nil || !found {
		t.Fatalf("GetType(Patient): found=%v err=%v", found, err)
	}
	return ti
}

func analyzeExpr(t *testing.T, model ModelProvider, src string, root TypeInfo) []Diagnostic {
	t.Helper()
	tree, diags := ParseExpression(src, ModeAnalysis)
	if tree == nil {
		t.Fatalf("%q: failed to produce a tree: %v", src, diags)
	}
	a := NewAnalyzer(model)
	return a.Analyze(context.Background(), tree, root)
}

func TestAnalyzerResolvesKnownProperty(t *testing.T) {
	model := NewSimpleModelProvider()
	diags := analyzeExpr(t, model, "Patient.name.given", patientType(t, model))
	for _, d := range diags {
		if d.Severity == SeverityWarning || d.Severity == SeverityError {
			t.Errorf("unexpected diagnostic for a known property chain: %v", d)
		}
	}
}

func TestAnalyzerFlagsUnknownProperty(t *testing.T) {
	model := NewSimpleModelProvider()
	diags := analyzeExpr(t, model, "Patient.nonexistentField", patientType(t, model))
	found := false
	for _, d := range diags {
		if d.Code == CodeUnknownProperty {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CodeUnknownProperty diagnostic, got %v", diags)
	}
}

func TestAnalyzerFlagsUnknownFunctionWithSuggestion(t *testing.T) {
	model := NewSimpleModelProvider()
	diags := analyzeExpr(t, model, "Patient.name.firts()", patientType(t, model))
	var found *Diagnostic
	for i, d := range diags {
		if d.Code == CodeUnknownFunction {
			found = &diags[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a CodeUnknownFunction diagnostic, got %v", diags)
	}
	if found.Help == "" {
		t.Errorf("expected a 'did you mean' suggestion for a near-miss function name")
	}
}

func TestAnalyzerLambdaScopesThisToElementType(t *testing.T) {
	model := NewSimpleModelProvider()
	// where()'s lambda body resolves $this/family against HumanName, the
	// element type of the Patient.name list, not Patient itself.
	diags := analyzeExpr(t, model, "Patient.name.where(family = 'Smith')", patientType(t, model))
	for _, d := range diags {
		if d.Code == CodeUnknownProperty {
			t.Errorf("lambda body should resolve 'family' against HumanName: %v", d)
		}
	}
}

func TestAnalyzerUnknownVariableWarns(t *testing.T) {
	model := NewSimpleModelProvider()
	diags := analyzeExpr(t, model, "%bogus", patientType(t, model))
	found := false
	for _, d := range diags {
		if d.Code == CodeUnknownProperty && d.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning for an unresolved user variable, got %v", diags)
	}
}

func TestAnalyzerIsOperatorProducesBoolean(t *testing.T) {
	model := NewSimpleModelProvider()
	tree, diags := ParseExpression("Patient.active is Boolean", ModeAnalysis)
	if tree == nil {
		t.Fatalf("parse failed: %v", diags)
	}
	a := NewAnalyzer(model)
	a.Analyze(context.Background(), tree, patientType(t, model))
	bin := tree.(*BinaryExpr)
	typ := bin.Type()
	if typ == nil {
		t.Fatalf("is-expression was not type-annotated")
	}
	ti, ok := (*typ).(SimpleTypeInfo)
	if !ok || ti.Name != "Boolean" {
		t.Errorf("is-expression type = %#v, want System.Boolean", *typ)
	}
}

func TestAnalyzerNilModelDegradesGracefully(t *testing.T) {
	diags := analyzeExpr(t, nil, "Patient.name.given.first()", nil)
	for _, d := range diags {
		if d.Code == CodeUnknownProperty {
			t.Errorf("with no model, property resolution should silently degrade to Any, not warn: %v", d)
		}
	}
}
