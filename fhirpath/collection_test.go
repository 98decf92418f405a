package fhirpath

import (
	"context"
	"testing"
)

func TestCollectionEqualPropagatesEmpty(t *testing.T) {
	_, ok := Collection{}.Equal(Collection{Integer(1)})
	if ok {
		t.Errorf("comparing against an empty collection should be undefined (ok=false)")
	}
}

func TestCollectionEqualLengthMismatchIsFalse(t *testing.T) {
	eq, ok := Collection{Integer(1)}.Equal(Collection{Integer(1), Integer(2)})
	if !ok {
		t.Fatalf("length mismatch should decide (ok=true), not propagate Empty")
	}
	if eq {
		t.Errorf("length mismatch should be unequal")
	}
}

func TestCollectionEqualItemwiseOrderSensitive(t *testing.T) {
	eq, ok := Collection{Integer(1), Integer(2)}.Equal(Collection{Integer(2), Integer(1)})
	if !ok || eq {
		t.Errorf("order matters for '=': eq=%v ok=%v, want false/true", eq, ok)
	}
}

func TestCollectionEquivalentNeverUndefined(t *testing.T) {
	// Equivalent never propagates Empty, unlike Equal.
	if !(Collection{Integer(1)}).Equivalent(Collection{Integer(1)}) {
		t.Errorf("identical singleton collections should be equivalent")
	}
	if (Collection{}).Equivalent(Collection{Integer(1)}) {
		t.Errorf("different-length collections should not be equivalent")
	}
}

func TestCollectionUnionDedupsAcrossBothSides(t *testing.T) {
	a := Collection{Integer(1), Integer(2)}
	b := Collection{Integer(2), Integer(3)}
	got := a.Union(b)
	want := []Integer{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Union = %v, want length %d", got, len(want))
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("Union[%d] = %v, want %v", i, got[i], w)
		}
	}
}

func TestCollectionCombineKeepsDuplicates(t *testing.T) {
	a := Collection{Integer(1)}
	b := Collection{Integer(1)}
	got := a.Combine(b)
	if len(got) != 2 {
		t.Fatalf("Combine = %v, want 2 elements (no dedup)", got)
	}
}

func TestCollectionDistinctPreservesFirstOccurrenceOrder(t *testing.T) {
	got := Collection{Integer(3), Integer(1), Integer(3), Integer(2), Integer(1)}.Distinct()
	want := []Integer{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("Distinct = %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("Distinct[%d] = %v, want %v", i, got[i], w)
		}
	}
}

func TestCollectionArithmeticPropagatesEmptyOperand(t *testing.T) {
	got, err := Collection{Integer(1)}.Add(context.Background(), Collection{})
	if err != nil {
		t.Fatalf("Add with an empty operand should return Empty, not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Add result = %v, want empty collection", got)
	}
}

func TestCollectionAddIntegers(t *testing.T) {
	got, err := Collection{Integer(2)}.Add(context.Background(), Collection{Integer(3)})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	sum, ok, err := Singleton[Integer](got)
	if err != nil || !ok {
		t.Fatalf("Singleton: ok=%v err=%v", ok, err)
	}
	if sum != 5 {
		t.Errorf("sum = %v, want 5", sum)
	}
}

func TestCollectionConcatTreatsEmptyAsEmptyString(t *testing.T) {
	got, err := Collection{String("a")}.Concat(context.Background(), Collection{})
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	s, ok, err := Singleton[String](got)
	if err != nil || !ok {
		t.Fatalf("Singleton: ok=%v err=%v", ok, err)
	}
	if s != "a" {
		t.Errorf("concat result = %q, want \"a\"", s)
	}
}

func TestCollectionCmpUndefinedOnEmpty(t *testing.T) {
	_, ok, err := (Collection{}).Cmp(Collection{Integer(1)})
	if err != nil {
		t.Fatalf("Cmp against Empty should not error: %v", err)
	}
	if ok {
		t.Errorf("Cmp against Empty should be undefined")
	}
}

func TestSingletonMultiItemIsError(t *testing.T) {
	_, _, err := Singleton[Integer](Collection{Integer(1), Integer(2)})
	if err == nil {
		t.Errorf("expected an error extracting a singleton from a multi-item collection")
	}
}

func TestSingletonEmptyIsNoOpNoError(t *testing.T) {
	_, ok, err := Singleton[Integer](Collection{})
	if err != nil {
		t.Fatalf("empty collection should not error: %v", err)
	}
	if ok {
		t.Errorf("empty collection should yield ok=false")
	}
}

func TestSingletonImplicitConversion(t *testing.T) {
	s, ok, err := Singleton[String](Collection{Integer(42)})
	if err != nil || !ok {
		t.Fatalf("implicit Integer->String conversion failed: ok=%v err=%v", ok, err)
	}
	if s != "42" {
		t.Errorf("got %q, want \"42\"", s)
	}
}
