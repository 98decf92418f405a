package fhirpath

import (
	"context"
	"fmt"
)

// TypeInfo is the lattice of type descriptors the analyzer and the
// type()/is/as/ofType operators reason over. Modeled as a closed
// interface over three concrete shapes: SimpleTypeInfo for primitives
// and resources, ListTypeInfo for `T[]` arities, TupleTypeInfo for
// anonymous shapes with named elements, mirroring
// how StructureDefinition-derived type info is conventionally
// represented, but trimmed to what the engine's ModelProvider
// abstraction actually needs.
type TypeInfo interface {
	String() string
	isTypeInfo()
}

// SimpleTypeInfo names a single type by namespace ("System" or "FHIR")
// and local name ("Boolean", "Patient", "HumanName", ...).
type SimpleTypeInfo struct {
	Namespace string
	Name      string
}

func (t SimpleTypeInfo) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}
func (t SimpleTypeInfo) isTypeInfo() {}

// ListTypeInfo wraps an element TypeInfo known to always occur as a
// collection (as opposed to a cardinality-1 property merely holding more
// than one value at runtime).
type ListTypeInfo struct {
	ElementType TypeInfo
}

func (t ListTypeInfo) String() string { return "List<" + t.ElementType.String() + ">" }
func (t ListTypeInfo) isTypeInfo()    {}

// TupleTypeInfo describes an anonymous shape with named, typed elements.
// Nothing in this package constructs one; no built-in function or
// analyzer rule produces a tuple type.
type TupleTypeInfo struct {
	Elements map[string]TypeInfo
}

func (t TupleTypeInfo) String() string { return "Tuple" }
func (t TupleTypeInfo) isTypeInfo()    {}

// ChoiceVariant is one arm of a FHIR choice-type property (`value[x]`):
// the concrete suffix ("String", "Quantity", ...) and the type it
// resolves to.
type ChoiceVariant struct {
	Suffix string
	Type   TypeInfo
}

// ModelProvider is the engine's sole dependency on FHIR schema knowledge.
// Every method is asynchronous so an
// implementation backed by network-fetched StructureDefinitions can
// satisfy it without blocking the evaluator thread; the sync/async
// operation-dispatch split in registry.go mirrors this same contract.
type ModelProvider interface {
	// GetType resolves a bare type name (qualified or not) to its
	// TypeInfo, or ok=false if unknown.
	GetType(ctx context.Context, typeName string) (TypeInfo, bool, error)
	// GetElementType resolves propertyName on parent to its declared
	// element TypeInfo; a list-valued property comes back wrapped in
	// ListTypeInfo.
	GetElementType(ctx context.Context, parent TypeInfo, propertyName string) (TypeInfo, bool, error)
	// IsSubtypeOf reports whether sub conforms to super, directly or
	// transitively (e.g. Patient is a subtype of DomainResource).
	IsSubtypeOf(ctx context.Context, sub, super TypeInfo) (bool, error)
	// IsChoiceProperty reports whether propertyName on parent is a
	// `[x]`-style choice property.
	IsChoiceProperty(ctx context.Context, parent TypeInfo, propertyName string) (bool, error)
	// GetChoiceVariants lists the concrete variants of a choice property.
	GetChoiceVariants(ctx context.Context, parent TypeInfo, propertyName string) ([]ChoiceVariant, error)
	// ResolveReference follows a Reference.reference string to the
	// referenced resource, when resolvable within the current root/Bundle.
	ResolveReference(ctx context.Context, root Value, reference string) (Value, bool, error)
	// ValidatesAgainstProfile reports whether v structurally conforms to
	// the named profile (used by conformsTo()).
	ValidatesAgainstProfile(ctx context.Context, v Value, profileURL string) (bool, error)
	// ResourceTypeExists reports whether name is a known resource type.
	ResourceTypeExists(ctx context.Context, name string) (bool, error)
	// IsMemberOfValueSet reports whether code (a code/Coding/CodeableConcept
	// Value) belongs to the value set identified by valueSetURL, backing
	// memberOf(). Terminology lookups are the one ModelProvider concern
	// expected to call out to a network service.
	IsMemberOfValueSet(ctx context.Context, code Value, valueSetURL string) (bool, error)
}

// ErrUnknownType is returned by strict ModelProvider lookups when asked
// about a name with no schema entry.
var ErrUnknownType = fmt.Errorf("unknown type")
