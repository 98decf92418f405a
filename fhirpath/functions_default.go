package fhirpath

// defaultRegistry builds the Registry every NewEvaluator starts from: the
// full built-in function library, grouped by category the way a
// FHIRPath function table is conventionally organized by section.
func defaultRegistry() *Registry {
	r := newRegistry()
	registerCollectionFunctions(r)
	registerStringFunctions(r)
	registerMathFunctions(r)
	registerDateTimeFunctions(r)
	registerTypeFunctions(r)
	registerUtilityFunctions(r)
	registerFHIRFunctions(r)
	return r
}
