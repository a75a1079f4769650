package features

import (
	"fmt"
	"strings"
)

// Canonical tabular columns. The order is the order the tabular classifier was trained with;
// reordering silently corrupts predictions.
const (
	ColAge      = "Age"
	ColGender   = "Gender"
	ColHR       = "HR_first"
	ColSysABP   = "SysABP_first"
	ColDiasABP  = "DiasABP_first"
	ColSaO2     = "SaO2_first"
	ColTemp     = "Temp_first"
	ColRespRate = "RespRate_first"
	ColGCS      = "GCS_first"
	ColLactate  = "Lactate_first"
	ColSAPSI    = "SAPS-I"
)

// CanonicalColumns returns a fresh copy of the 11 canonical tabular columns.
func CanonicalColumns() []string {
	return []string{
		ColAge, ColGender, ColHR, ColSysABP, ColDiasABP,
		ColSaO2, ColTemp, ColRespRate, ColGCS, ColLactate, ColSAPSI,
	}
}

// ColumnDefaults are used for clinical columns a vitals snapshot rarely carries.
var ColumnDefaults = map[string]float64{
	ColGCS:     DefaultGCS,
	ColLactate: DefaultLactate,
	ColSAPSI:   DefaultSAPSI,
}

// EncodeGender maps gender to 1.0 for a case-insensitive "male" and 0.0 otherwise.
// female, other, empty and unrecognised values all share 0.0; the classifier was
// trained on that binary code.
func EncodeGender(gender string) float64 {
	if strings.EqualFold(gender, "male") {
		return 1.0
	}
	return 0.0
}

// Vector is an ordered set of named feature values.
type Vector struct {
	names  []string
	values []float64
}

// NewVector pairs names with values. Both slices are copied.
func NewVector(names []string, values []float64) (Vector, error) {
	if len(names) != len(values) {
		return Vector{}, fmt.Errorf("vector has %d names but %d values", len(names), len(values))
	}
	return Vector{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

func (v Vector) Len() int { return len(v.names) }

// Names returns a copy of the column order.
func (v Vector) Names() []string { return append([]string(nil), v.names...) }

// Values returns a copy of the values in column order.
func (v Vector) Values() []float64 { return append([]float64(nil), v.values...) }

// Get returns the value of a named column.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Select projects the vector onto names, in that order.
func (v Vector) Select(names []string) (Vector, error) {
	out := Vector{names: make([]string, 0, len(names)), values: make([]float64, 0, len(names))}
	for _, name := range names {
		val, ok := v.Get(name)
		if !ok {
			return Vector{}, fmt.Errorf("column %q not present in feature vector", name)
		}
		out.names = append(out.names, name)
		out.values = append(out.values, val)
	}
	return out, nil
}

// Reconcile projects the vector onto names like Select, but a column the vector lacks
// takes its ColumnDefaults value, or 0.0, instead of failing.
func (v Vector) Reconcile(names []string) Vector {
	out := Vector{names: make([]string, len(names)), values: make([]float64, len(names))}
	for i, name := range names {
		out.names[i] = name
		if val, ok := v.Get(name); ok {
			out.values[i] = val
		} else {
			out.values[i] = ColumnDefaults[name]
		}
	}
	return out
}

// Build maps vitals onto the requested columns. Columns that cannot be derived from the
// snapshot take their ColumnDefaults value, or 0.0.
func Build(v Vitals, columns []string) Vector {
	known := map[string]float64{
		ColAge:      v.Age,
		ColGender:   EncodeGender(v.Gender),
		ColHR:       v.HeartRate,
		ColSysABP:   v.SystolicBP,
		ColDiasABP:  v.DiastolicBP,
		ColSaO2:     v.OxygenSaturation,
		ColTemp:     v.Temperature,
		ColRespRate: v.RespiratoryRate,
		ColGCS:      v.GCSOrDefault(),
		ColLactate:  v.LactateOrDefault(),
		ColSAPSI:    DefaultSAPSI,
	}

	out := Vector{names: make([]string, len(columns)), values: make([]float64, len(columns))}
	for i, col := range columns {
		out.names[i] = col
		if val, ok := known[col]; ok {
			out.values[i] = val
		} else {
			out.values[i] = ColumnDefaults[col]
		}
	}
	return out
}
