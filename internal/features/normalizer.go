package features

// Normalizer turns vitals into the scaled feature vector the tabular classifier expects.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	columns []string
	scaler  *Scaler
}

// NewNormalizer resolves the column order: a persisted feature list wins, then the
// scaler's fitted columns, then the canonical 11 columns. scaler may be nil.
func NewNormalizer(featureList []string, scaler *Scaler) *Normalizer {
	var columns []string
	switch {
	case len(featureList) > 0:
		columns = append([]string(nil), featureList...)
	case scaler != nil && len(scaler.Columns) > 0:
		columns = append([]string(nil), scaler.Columns...)
	default:
		columns = CanonicalColumns()
	}
	return &Normalizer{columns: columns, scaler: scaler}
}

// Columns returns the column order of the unscaled vector.
func (n *Normalizer) Columns() []string { return append([]string(nil), n.columns...) }

// Scaled reports whether a fitted scaler is applied.
func (n *Normalizer) Scaled() bool { return n.scaler != nil }

// Vector builds the default-filled, unscaled vector.
func (n *Normalizer) Vector(v Vitals) Vector {
	return Build(v, n.columns)
}

// Normalize builds the full vector and scales it when a scaler is present.
func (n *Normalizer) Normalize(v Vitals) (Vector, error) {
	return n.Scale(n.Vector(v))
}

// Scale applies the fitted scaler to an already built vector.
func (n *Normalizer) Scale(vec Vector) (Vector, error) {
	if n.scaler == nil {
		return vec, nil
	}
	return n.scaler.Transform(vec)
}
