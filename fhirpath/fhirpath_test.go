package fhirpath_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/octofhir/fhirpath-go/fhirpath"
)

func mustResource(t *testing.T, json string) *fhirpath.Resource {
	t.Helper()
	r, err := fhirpath.ParseResource([]byte(json))
	if err != nil {
		t.Fatalf("ParseResource: %v", err)
	}
	return r
}

const patientJSON = `{
	"resourceType": "Patient",
	"id": "p1",
	"active": true,
	"name": [
		{"use": "official", "family": "Chalmers", "given": ["Peter", "James"]},
		{"use": "usual", "family": "Chalmers", "given": ["Pete"]}
	]
}`

func TestEngineEvaluateStringGivenNames(t *testing.T) {
	root := mustResource(t, patientJSON)
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())
	got, err := engine.EvaluateString(context.Background(), "Patient.name.given", root, nil)
	if err != nil {
		t.Fatalf("EvaluateString: %v", err)
	}
	want := fhirpath.Collection{fhirpath.String("Peter"), fhirpath.String("James"), fhirpath.String("Pete")}
	if !cmp.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEngineParseThenEvaluateReusesTree(t *testing.T) {
	expr, diags, err := fhirpath.Parse("Patient.name.count()")
	if err != nil {
		t.Fatalf("Parse: %v diags=%v", err, diags)
	}
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())

	a := mustResource(t, patientJSON)
	b := mustResource(t, `{"resourceType": "Patient", "name": [{"family": "Solo"}]}`)

	gotA, err := engine.Evaluate(context.Background(), expr, a, nil)
	if err != nil {
		t.Fatalf("Evaluate(a): %v", err)
	}
	gotB, err := engine.Evaluate(context.Background(), expr, b, nil)
	if err != nil {
		t.Fatalf("Evaluate(b): %v", err)
	}
	if !cmp.Equal(gotA, fhirpath.Collection{fhirpath.Integer(2)}) {
		t.Errorf("count over a = %v, want [2]", gotA)
	}
	if !cmp.Equal(gotB, fhirpath.Collection{fhirpath.Integer(1)}) {
		t.Errorf("count over b = %v, want [1]", gotB)
	}
}

func TestMustParsePanicsOnBadSyntax(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected MustParse to panic on invalid syntax")
		}
	}()
	fhirpath.MustParse("Patient..name")
}

func TestParseForAnalysisRecoversAndReportsDiagnostics(t *testing.T) {
	expr, diags := fhirpath.ParseForAnalysis("Patient..name")
	if expr.String() != "Patient..name" {
		t.Errorf("Expression.String() = %q, want original source", expr.String())
	}
	if len(diags) == 0 {
		t.Errorf("expected at least one diagnostic from the malformed double-dot path")
	}
}

func TestEngineAnalyzeFlagsUnknownProperty(t *testing.T) {
	model := fhirpath.NewSimpleModelProvider()
	engine := fhirpath.NewEngine(model)
	expr, _ := fhirpath.ParseForAnalysis("Patient.bogusField")
	root, found, err := model.GetType(context.Background(), "Patient")
	if err != nil || !found {
		t.Fatalf("GetType(Patient): found=%v err=%v", found, err)
	}
	diags := engine.Analyze(context.Background(), expr, root)
	found2 := false
	for _, d := range diags {
		if d.Code == fhirpath.CodeUnknownProperty {
			found2 = true
		}
	}
	if !found2 {
		t.Errorf("expected CodeUnknownProperty for Patient.bogusField, got %v", diags)
	}
}

func TestEngineEvaluateWithSeededVariables(t *testing.T) {
	root := mustResource(t, patientJSON)
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())
	vars := map[string]fhirpath.Collection{
		"myVar": {fhirpath.String("hello")},
	}
	got, err := engine.EvaluateString(context.Background(), "%myVar", root, vars)
	if err != nil {
		t.Fatalf("EvaluateString: %v", err)
	}
	if !cmp.Equal(got, fhirpath.Collection{fhirpath.String("hello")}) {
		t.Errorf("got %v, want [\"hello\"]", got)
	}
}

func TestEngineOfTypeFiltersByType(t *testing.T) {
	bundle := mustResource(t, `{
		"resourceType": "Bundle",
		"type": "collection",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1"}},
			{"resource": {"resourceType": "Observation", "id": "o1", "status": "final"}}
		]
	}`)
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())
	got, err := engine.EvaluateString(context.Background(), "Bundle.entry.resource.ofType(Observation).id", bundle, nil)
	if err != nil {
		t.Fatalf("EvaluateString: %v", err)
	}
	if !cmp.Equal(got, fhirpath.Collection{fhirpath.String("o1")}) {
		t.Errorf("ofType(Observation).id = %v, want [\"o1\"]", got)
	}
}

func TestEngineQuantityArithmetic(t *testing.T) {
	root := mustResource(t, `{"resourceType": "Patient"}`)
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())
	got, err := engine.EvaluateString(context.Background(), "3 'mg' + 4 'mg' = 7 'mg'", root, nil)
	if err != nil {
		t.Fatalf("EvaluateString: %v", err)
	}
	b, ok, err := fhirpath.Singleton[fhirpath.Boolean](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v got=%v", ok, err, got)
	}
	if !bool(b) {
		t.Errorf("3mg + 4mg = 7mg should be true")
	}
}

func TestEngineUnknownFunctionIsAnEvaluationError(t *testing.T) {
	root := mustResource(t, `{"resourceType": "Patient"}`)
	engine := fhirpath.NewEngine(fhirpath.NewSimpleModelProvider())
	_, err := engine.EvaluateString(context.Background(), "Patient.bogusFunc()", root, nil)
	if err == nil {
		t.Errorf("expected an error calling an unregistered function")
	}
}

func TestEngineNilModelStillEvaluatesLiterals(t *testing.T) {
	engine := fhirpath.NewEngine(nil)
	got, err := engine.EvaluateString(context.Background(), "1 + 2", nil, nil)
	if err != nil {
		t.Fatalf("EvaluateString with nil model: %v", err)
	}
	if !cmp.Equal(got, fhirpath.Collection{fhirpath.Integer(3)}) {
		t.Errorf("got %v, want [3]", got)
	}
}
