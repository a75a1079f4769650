package features

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Scaler is a fitted per-column linear transform: (x - center) / scale.
type Scaler struct {
	Columns []string  `json:"feature_names"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// LoadScaler reads a scaler artifact from a JSON file.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scaler %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scaler) validate() error {
	if len(s.Center) == 0 {
		return fmt.Errorf("no fitted columns")
	}
	if len(s.Center) != len(s.Scale) {
		return fmt.Errorf("center has %d entries, scale has %d", len(s.Center), len(s.Scale))
	}
	if len(s.Columns) > 0 && len(s.Columns) != len(s.Center) {
		return fmt.Errorf("%d column names for %d fitted columns", len(s.Columns), len(s.Center))
	}
	return nil
}

// Transform scales the full vector. The vector must carry exactly the columns, in the
// order, the scaler was fitted on. A zero scale leaves the centered value unscaled.
func (s *Scaler) Transform(v Vector) (Vector, error) {
	if v.Len() != len(s.Center) {
		return Vector{}, fmt.Errorf("scaler fitted on %d columns, vector has %d", len(s.Center), v.Len())
	}
	if len(s.Columns) > 0 {
		for i, name := range v.names {
			if s.Columns[i] != name {
				return Vector{}, fmt.Errorf("column %d is %q, scaler was fitted with %q", i, name, s.Columns[i])
			}
		}
	}

	out := Vector{names: v.Names(), values: make([]float64, v.Len())}
	for i, x := range v.values {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		y := (x - s.Center[i]) / scale
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return Vector{}, fmt.Errorf("column %q scaled to non-finite value", v.names[i])
		}
		out.values[i] = y
	}
	return out, nil
}
