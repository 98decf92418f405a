package fhirpath

import (
	"context"
	"testing"
)

func mustParseResource(t *testing.T, json string) *Resource {
	t.Helper()
	r, err := ParseResource([]byte(json))
	if err != nil {
		t.Fatalf("ParseResource: %v", err)
	}
	return r
}

func evalExpr(t *testing.T, root Value, src string) Collection {
	t.Helper()
	tree, diags := ParseExpression(src, ModeFast)
	if tree == nil {
		t.Fatalf("%q: parse failed: %v", src, diags)
	}
	ev := NewEvaluator(NewSimpleModelProvider())
	got, err := ev.Evaluate(context.Background(), tree, root, nil)
	if err != nil {
		t.Fatalf("%q: evaluate failed: %v", src, err)
	}
	return got
}

const testPatient = `{
	"resourceType": "Patient",
	"id": "p1",
	"active": true,
	"name": [
		{"use": "official", "family": "Chalmers", "given": ["Peter", "James"]},
		{"use": "usual", "family": "Chalmers", "given": ["Pete"]}
	],
	"deceasedBoolean": false
}`

func TestEvaluateWhereAndFirst(t *testing.T) {
	root := mustParseResource(t, testPatient)
	got := evalExpr(t, root, "Patient.name.where(use = 'official').given.first()")
	s, ok, err := Singleton[String](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v got=%v", ok, err, got)
	}
	if s != "Peter" {
		t.Errorf("got %q, want \"Peter\"", s)
	}
}

func TestEvaluateCount(t *testing.T) {
	root := mustParseResource(t, testPatient)
	got := evalExpr(t, root, "Patient.name.count()")
	n, ok, err := Singleton[Integer](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if n != 2 {
		t.Errorf("count = %v, want 2", n)
	}
}

func TestEvaluateDeceasedIsBoolean(t *testing.T) {
	root := mustParseResource(t, testPatient)
	got := evalExpr(t, root, "Patient.deceased is Boolean")
	b, ok, err := Singleton[Boolean](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !bool(b) {
		t.Errorf("deceased is Boolean = %v, want true", b)
	}
}

func TestEvaluateEmptyAndExists(t *testing.T) {
	root := mustParseResource(t, testPatient)
	empty := evalExpr(t, root, "Patient.nonexistent.empty()")
	b, ok, err := Singleton[Boolean](empty)
	if err != nil || !ok || !bool(b) {
		t.Fatalf("empty() on a missing path should be true: ok=%v err=%v b=%v", ok, err, b)
	}
	exists := evalExpr(t, root, "Patient.name.exists()")
	b2, ok, err := Singleton[Boolean](exists)
	if err != nil || !ok || !bool(b2) {
		t.Fatalf("exists() on name should be true: ok=%v err=%v b=%v", ok, err, b2)
	}
}

func TestEvaluateDistinct(t *testing.T) {
	root := mustParseResource(t, testPatient)
	got := evalExpr(t, root, "Patient.name.family.distinct()")
	if len(got) != 1 {
		t.Fatalf("distinct family names = %v, want 1 (both are 'Chalmers')", got)
	}
}

func TestEvaluateChoiceTypeResolvesToConcreteSuffix(t *testing.T) {
	obs := mustParseResource(t, `{
		"resourceType": "Observation",
		"status": "final",
		"valueQuantity": {"value": 72, "unit": "beats/min", "system": "http://unitsofmeasure.org", "code": "/min"}
	}`)
	got := evalExpr(t, obs, "Observation.value.unit")
	s, ok, err := Singleton[String](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v got=%v", ok, err, got)
	}
	if s != "beats/min" {
		t.Errorf("unit = %q, want \"beats/min\"", s)
	}
}

func TestEvaluateChoiceTypeReportsConcreteTypeName(t *testing.T) {
	obs := mustParseResource(t, `{
		"resourceType": "Observation",
		"status": "final",
		"valueQuantity": {"value": 72, "unit": "beats/min", "system": "http://unitsofmeasure.org", "code": "/min"}
	}`)

	typeGot := evalExpr(t, obs, "Observation.value.type()")
	typeVal, ok, err := Singleton[Value](typeGot)
	if err != nil || !ok {
		t.Fatalf("type(): ok=%v err=%v got=%v", ok, err, typeGot)
	}
	typeObj, ok := typeVal.(TypeInfoObject)
	if !ok {
		t.Fatalf("type() returned %T, want TypeInfoObject", typeVal)
	}
	if typeObj.Info.String() != "FHIR.Quantity" {
		t.Errorf("Observation.value.type() = %q, want \"FHIR.Quantity\" (not \"FHIR.ValueQuantity\")", typeObj.Info.String())
	}

	isGot := evalExpr(t, obs, "Observation.value is Quantity")
	isQuantity, ok, err := Singleton[Boolean](isGot)
	if err != nil || !ok {
		t.Fatalf("is Quantity: ok=%v err=%v got=%v", ok, err, isGot)
	}
	if !bool(isQuantity) {
		t.Errorf("Observation.value is Quantity = %v, want true", isQuantity)
	}

	ofTypeGot := evalExpr(t, obs, "Observation.value.ofType(Quantity).unit")
	unit, ok, err := Singleton[String](ofTypeGot)
	if err != nil || !ok {
		t.Fatalf("ofType(Quantity).unit: ok=%v err=%v got=%v", ok, err, ofTypeGot)
	}
	if unit != "beats/min" {
		t.Errorf("Observation.value.ofType(Quantity).unit = %q, want \"beats/min\"", unit)
	}
}

func TestEvaluateAggregate(t *testing.T) {
	root := mustParseResource(t, `{"resourceType": "Patient"}`)
	// aggregate($this + $total, 0) over a literal union is a closed,
	// data-independent sum, doesn't need the Patient at all, but
	// exercising the aggregate lambda still wants a root in scope.
	got := evalExpr(t, root, "(1 | 2 | 3).aggregate($this + $total, 0)")
	n, ok, err := Singleton[Integer](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v got=%v", ok, err, got)
	}
	if n != 6 {
		t.Errorf("aggregate sum = %v, want 6", n)
	}
}

func TestEvaluateMixedPrecisionDateEqualityIsEmpty(t *testing.T) {
	root := mustParseResource(t, `{"resourceType": "Patient"}`)
	got := evalExpr(t, root, "@2015-02 = @2015-02-01")
	if len(got) != 0 {
		t.Errorf("mixed-precision date equality should be Empty, got %v", got)
	}
}

func TestEvaluateSubstringOutOfRangeClampsToEmpty(t *testing.T) {
	root := mustParseResource(t, `{"resourceType": "Patient"}`)
	got := evalExpr(t, root, "'hello'.substring(10)")
	if len(got) != 0 {
		t.Errorf("substring() starting past the string end should be Empty, got %v", got)
	}
}

func TestEvaluateSubstringClampsLength(t *testing.T) {
	root := mustParseResource(t, `{"resourceType": "Patient"}`)
	got := evalExpr(t, root, "'hello'.substring(1, 100)")
	s, ok, err := Singleton[String](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if s != "ello" {
		t.Errorf("got %q, want \"ello\" (length clamped to remaining string)", s)
	}
}

func TestEvaluateResolveAcrossBundle(t *testing.T) {
	bundle := mustParseResource(t, `{
		"resourceType": "Bundle",
		"type": "collection",
		"entry": [
			{"fullUrl": "urn:uuid:obs1", "resource": {
				"resourceType": "Observation",
				"status": "final",
				"subject": {"reference": "Patient/p1"}
			}},
			{"fullUrl": "Patient/p1", "resource": {
				"resourceType": "Patient",
				"id": "p1",
				"active": true
			}}
		]
	}`)
	got := evalExpr(t, bundle, "Bundle.entry.resource.ofType(Observation).subject.resolve().active")
	b, ok, err := Singleton[Boolean](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v got=%v", ok, err, got)
	}
	if !bool(b) {
		t.Errorf("resolved Patient.active = %v, want true", b)
	}
}

func TestEvaluateDefineVariable(t *testing.T) {
	root := mustParseResource(t, testPatient)
	got := evalExpr(t, root, "Patient.name.first().defineVariable('n').select(%n.given)")
	if len(got) == 0 {
		t.Fatalf("expected at least one given name via the defined variable, got empty")
	}
}

func TestEvaluateThreeValuedLogicAndWithEmpty(t *testing.T) {
	root := mustParseResource(t, `{"resourceType": "Patient"}`)
	// false and <Empty> -> false, even though the right side never
	// resolves to a boolean at all: the dominant value on either side
	// decides.
	got := evalExpr(t, root, "false and Patient.nonexistentField")
	b, ok, err := Singleton[Boolean](got)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if bool(b) {
		t.Errorf("false and X should always be false")
	}
}

func TestEvaluateUnknownVariableErrors(t *testing.T) {
	tree, diags := ParseExpression("%undeclared", ModeFast)
	if tree == nil {
		t.Fatalf("parse failed: %v", diags)
	}
	ev := NewEvaluator(NewSimpleModelProvider())
	_, err := ev.Evaluate(context.Background(), tree, nil, nil)
	if err == nil {
		t.Errorf("expected an error evaluating an undeclared user variable")
	}
}
