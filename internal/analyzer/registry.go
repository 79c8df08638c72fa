package analyzer

// Registry is an ordered collection of layers. Every layer runs on every
// turn; order does not change the outcome but keeps output deterministic.
type Registry struct {
	analyzers []Analyzer
}

// NewRegistry creates a registry with the given layers, run in order.
func NewRegistry(analyzers []Analyzer) *Registry {
	return &Registry{analyzers: analyzers}
}

// NewDefaultRegistry wires the five built-in layers in detection order:
// lexical, semantic, context integrity, blacklist, entropy.
func NewDefaultRegistry() *Registry {
	return NewRegistry([]Analyzer{
		NewLexicalAnalyzer(),
		NewSemanticAnalyzer(),
		NewContextAnalyzer(),
		NewBlacklistAnalyzer(DefaultFuzzyCacheSize),
		NewEntropyAnalyzer(),
	})
}

// RunAll executes every layer and returns one result per layer, in order.
func (r *Registry) RunAll(in *Input) []DetectionResult {
	results := make([]DetectionResult, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		results = append(results, runLayer(a, in))
	}
	return results
}

// runLayer isolates one layer: a panic yields the layer's clean result so
// the other layers still run.
func runLayer(a Analyzer, in *Input) (res DetectionResult) {
	defer func() {
		if recover() != nil {
			res = clean(a.Name())
		}
	}()
	res = a.Analyze(in)
	res.Layer = a.Name()
	return res
}
