package fhirpath

import (
	"context"
	"strings"
)

// elementDef is one property of a SimpleModelProvider's built-in schema:
// its declared type name and whether it repeats.
type elementDef struct {
	typeName string
	isList   bool
}

// classDef is a minimal StructureDefinition stand-in: a parent to derive
// from, plus this type's own elements and choice properties.
type classDef struct {
	base     string
	elements map[string]elementDef
	choices  map[string][]string // base name -> suffixes, e.g. "value" -> ["String","Quantity",...]
}

// SimpleModelProvider is a small, hand-seeded ModelProvider covering a
// representative slice of the FHIR R4 model, enough to exercise
// property/choice navigation, subtype checks, and reference resolution in
// tests, without depending on a generated schema package or a bundled
// copy of the FHIR StructureDefinitions. It is the engine's default in
// tests and examples; production embedders are expected to supply a real
// ModelProvider backed by their own schema source, taking a capabilities
// interface rather than hardcoding one.
type SimpleModelProvider struct {
	classes map[string]classDef
}

// NewSimpleModelProvider builds a provider seeded with a representative
// subset of FHIR R4 types: Patient, Observation, Bundle plus the common
// complex datatypes (HumanName, Reference, Quantity, CodeableConcept,
// Coding, Extension, Period, Identifier).
func NewSimpleModelProvider() *SimpleModelProvider {
	p := &SimpleModelProvider{classes: map[string]classDef{
		"Element": {elements: map[string]elementDef{
			"id":        {typeName: "System.String"},
			"extension": {typeName: "Extension", isList: true},
		}},
		"Resource": {elements: map[string]elementDef{
			"id":           {typeName: "System.String"},
			"meta":         {typeName: "Meta"},
			"resourceType": {typeName: "System.String"},
		}},
		"DomainResource": {base: "Resource", elements: map[string]elementDef{
			"text":      {typeName: "Narrative"},
			"extension": {typeName: "Extension", isList: true},
		}},
		"Meta": {base: "Element", elements: map[string]elementDef{
			"versionId":   {typeName: "System.String"},
			"lastUpdated": {typeName: "System.DateTime"},
			"profile":     {typeName: "System.String", isList: true},
		}},
		"Identifier": {base: "Element", elements: map[string]elementDef{
			"use":    {typeName: "System.String"},
			"system": {typeName: "System.String"},
			"value":  {typeName: "System.String"},
			"period": {typeName: "Period"},
		}},
		"HumanName": {base: "Element", elements: map[string]elementDef{
			"use":    {typeName: "System.String"},
			"text":   {typeName: "System.String"},
			"family": {typeName: "System.String"},
			"given":  {typeName: "System.String", isList: true},
		}},
		"Period": {base: "Element", elements: map[string]elementDef{
			"start": {typeName: "System.DateTime"},
			"end":   {typeName: "System.DateTime"},
		}},
		"Coding": {base: "Element", elements: map[string]elementDef{
			"system":  {typeName: "System.String"},
			"code":    {typeName: "System.String"},
			"display": {typeName: "System.String"},
		}},
		"CodeableConcept": {base: "Element", elements: map[string]elementDef{
			"coding": {typeName: "Coding", isList: true},
			"text":   {typeName: "System.String"},
		}},
		"Quantity": {base: "Element", elements: map[string]elementDef{
			"value":  {typeName: "System.Decimal"},
			"unit":   {typeName: "System.String"},
			"system": {typeName: "System.String"},
			"code":   {typeName: "System.String"},
		}},
		"Reference": {base: "Element", elements: map[string]elementDef{
			"reference": {typeName: "System.String"},
			"type":      {typeName: "System.String"},
			"display":   {typeName: "System.String"},
		}},
		"Extension": {base: "Element", elements: map[string]elementDef{
			"url": {typeName: "System.String"},
		}, choices: map[string][]string{
			"value": choiceSuffixes,
		}},
		"Narrative": {base: "Element", elements: map[string]elementDef{
			"status": {typeName: "System.String"},
			"div":    {typeName: "System.String"},
		}},
		"Patient": {base: "DomainResource", elements: map[string]elementDef{
			"active":        {typeName: "System.Boolean"},
			"name":          {typeName: "HumanName", isList: true},
			"identifier":    {typeName: "Identifier", isList: true},
			"gender":        {typeName: "System.String"},
			"birthDate":     {typeName: "System.Date"},
			"deceasedBoolean": {typeName: "System.Boolean"},
		}},
		"Observation": {base: "DomainResource", elements: map[string]elementDef{
			"status":      {typeName: "System.String"},
			"code":        {typeName: "CodeableConcept"},
			"subject":     {typeName: "Reference"},
			"effectiveDateTime": {typeName: "System.DateTime"},
			"component":   {typeName: "BackboneElement", isList: true},
		}, choices: map[string][]string{
			"value":     choiceSuffixes,
			"effective": {"DateTime", "Period"},
		}},
		"BackboneElement": {base: "Element", elements: map[string]elementDef{
			"code": {typeName: "CodeableConcept"},
		}, choices: map[string][]string{
			"value": choiceSuffixes,
		}},
		"Bundle": {base: "Resource", elements: map[string]elementDef{
			"type":  {typeName: "System.String"},
			"entry": {typeName: "BundleEntry", isList: true},
		}},
		"BundleEntry": {base: "Element", elements: map[string]elementDef{
			"fullUrl":  {typeName: "System.String"},
			"resource": {typeName: "Resource"},
		}},
	}}
	return p
}

var choiceSuffixes = []string{
	"String", "Boolean", "Integer", "Decimal", "DateTime", "Date", "Time",
	"Quantity", "CodeableConcept", "Coding", "Reference", "Period",
}

func (p *SimpleModelProvider) GetType(ctx context.Context, typeName string) (TypeInfo, bool, error) {
	name := strings.TrimPrefix(typeName, "FHIR.")
	if strings.HasPrefix(typeName, "System.") {
		return SimpleTypeInfo{Namespace: "System", Name: strings.TrimPrefix(typeName, "System.")}, true, nil
	}
	if _, ok := p.classes[name]; ok {
		return SimpleTypeInfo{Namespace: "FHIR", Name: name}, true, nil
	}
	return nil, false, nil
}

func (p *SimpleModelProvider) resolveClass(t TypeInfo) (classDef, string, bool) {
	s, ok := t.(SimpleTypeInfo)
	if !ok || s.Namespace != "FHIR" {
		return classDef{}, "", false
	}
	c, ok := p.classes[s.Name]
	return c, s.Name, ok
}

func (p *SimpleModelProvider) GetElementType(ctx context.Context, parent TypeInfo, propertyName string) (TypeInfo, bool, error) {
	name := parent
	for {
		c, className, ok := p.resolveClass(name)
		if !ok {
			return nil, false, nil
		}
		if def, ok := c.elements[propertyName]; ok {
			t, found, err := p.GetType(ctx, def.typeName)
			if err != nil || !found {
				return nil, false, err
			}
			if def.isList {
				return ListTypeInfo{ElementType: t}, true, nil
			}
			return t, true, nil
		}
		for base, suffixes := range c.choices {
			if propertyName == base {
				continue
			}
			if strings.HasPrefix(propertyName, base) {
				suffix := propertyName[len(base):]
				for _, s := range suffixes {
					if s == suffix {
						return p.variantType(s), true, nil
					}
				}
			}
		}
		if c.base == "" {
			_ = className
			return nil, false, nil
		}
		name = SimpleTypeInfo{Namespace: "FHIR", Name: c.base}
	}
}

func (p *SimpleModelProvider) variantType(suffix string) TypeInfo {
	switch suffix {
	case "String", "Boolean", "Integer", "Decimal", "DateTime", "Date", "Time":
		return SimpleTypeInfo{Namespace: "System", Name: suffix}
	default:
		return SimpleTypeInfo{Namespace: "FHIR", Name: suffix}
	}
}

func (p *SimpleModelProvider) IsSubtypeOf(ctx context.Context, sub, super TypeInfo) (bool, error) {
	subS, ok1 := sub.(SimpleTypeInfo)
	superS, ok2 := super.(SimpleTypeInfo)
	if !ok1 || !ok2 {
		return false, nil
	}
	if subS.String() == superS.String() {
		return true, nil
	}
	if subS.Namespace != "FHIR" {
		return false, nil
	}
	name := subS.Name
	for {
		c, ok := p.classes[name]
		if !ok || c.base == "" {
			return false, nil
		}
		if c.base == superS.Name && superS.Namespace == "FHIR" {
			return true, nil
		}
		name = c.base
	}
}

func (p *SimpleModelProvider) IsChoiceProperty(ctx context.Context, parent TypeInfo, propertyName string) (bool, error) {
	c, _, ok := p.resolveClass(parent)
	if !ok {
		return false, nil
	}
	_, isChoice := c.choices[propertyName]
	return isChoice, nil
}

func (p *SimpleModelProvider) GetChoiceVariants(ctx context.Context, parent TypeInfo, propertyName string) ([]ChoiceVariant, error) {
	c, _, ok := p.resolveClass(parent)
	if !ok {
		return nil, nil
	}
	suffixes, ok := c.choices[propertyName]
	if !ok {
		return nil, nil
	}
	variants := make([]ChoiceVariant, 0, len(suffixes))
	for _, s := range suffixes {
		variants = append(variants, ChoiceVariant{Suffix: s, Type: p.variantType(s)})
	}
	return variants, nil
}

func (p *SimpleModelProvider) ResolveReference(ctx context.Context, root Value, reference string) (Value, bool, error) {
	res, ok := root.(*Resource)
	if !ok {
		return nil, false, nil
	}
	bundle := res.bundleRoot()
	if bundle == nil {
		return nil, false, nil
	}
	entries := bundle.Fields["entry"]
	list, ok := entries.([]any)
	if !ok {
		return nil, false, nil
	}
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fullURL, _ := entry["fullUrl"].(string)
		resourceRaw, hasResource := entry["resource"]
		if !hasResource {
			continue
		}
		resourceMap, ok := resourceRaw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := resourceMap["id"].(string)
		rt, _ := resourceMap["resourceType"].(string)
		if fullURL == reference || rt+"/"+id == reference {
			child := newResourceFromMap(resourceMap)
			child.Bundle = bundle
			return child, true, nil
		}
	}
	return nil, false, nil
}

func (p *SimpleModelProvider) ValidatesAgainstProfile(ctx context.Context, v Value, profileURL string) (bool, error) {
	res, ok := v.(*Resource)
	if !ok {
		return false, nil
	}
	return strings.HasSuffix(profileURL, res.TypeName), nil
}

func (p *SimpleModelProvider) ResourceTypeExists(ctx context.Context, name string) (bool, error) {
	c, ok := p.classes[name]
	if !ok {
		return false, nil
	}
	return p.isResourceBase(c), nil
}

func (p *SimpleModelProvider) isResourceBase(c classDef) bool {
	base := c.base
	for base != "" {
		if base == "Resource" {
			return true
		}
		next, ok := p.classes[base]
		if !ok {
			return false
		}
		base = next.base
	}
	return false
}

// IsMemberOfValueSet has no real terminology service behind this
// hand-seeded provider; it reports false rather than silently claiming
// membership, leaving real value set checking to a production
// ModelProvider backed by an actual terminology server.
func (p *SimpleModelProvider) IsMemberOfValueSet(ctx context.Context, code Value, valueSetURL string) (bool, error) {
	return false, nil
}

var _ ModelProvider = (*SimpleModelProvider)(nil)
