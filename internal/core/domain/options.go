package domain

// QueryOptions carries per-call overrides. Configuration is immutable
// per invocation; overrides are explicit parameters, never mutations of
// shared state.
type QueryOptions struct {
	VectorWeight  *float64
	LexicalWeight *float64
}

type QueryOption func(*QueryOptions)

// WithWeights overrides the fusion weights for one query, e.g. for A/B
// evaluation of alternate fusion policies.
func WithWeights(vectorWeight, lexicalWeight float64) QueryOption {
	return func(o *QueryOptions) {
		o.VectorWeight = &vectorWeight
		o.LexicalWeight = &lexicalWeight
	}
}

// ApplyQueryOptions folds options into a resolved set.
func ApplyQueryOptions(opts []QueryOption) QueryOptions {
	var out QueryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}
