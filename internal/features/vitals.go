package features

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInputIncomplete is returned when a required vitals field is absent and has no default.
var ErrInputIncomplete = errors.New("input incomplete")

const (
	DefaultGCS     = 14.0
	DefaultLactate = 2.0
	DefaultSAPSI   = 38.0
)

// Vitals is a single emergency vitals snapshot. GCS and Lactate are optional.
type Vitals struct {
	Age              float64  `json:"age" yaml:"age"`
	Gender           string   `json:"gender" yaml:"gender"`
	HeartRate        float64  `json:"heart_rate" yaml:"heart_rate"`
	SystolicBP       float64  `json:"systolic_blood_pressure" yaml:"systolic_blood_pressure"`
	DiastolicBP      float64  `json:"diastolic_blood_pressure" yaml:"diastolic_blood_pressure"`
	OxygenSaturation float64  `json:"oxygen_saturation" yaml:"oxygen_saturation"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	RespiratoryRate  float64  `json:"respiratory_rate" yaml:"respiratory_rate"`
	GCS              *float64 `json:"gcs_score,omitempty" yaml:"gcs_score,omitempty"`
	Lactate          *float64 `json:"lactate_level,omitempty" yaml:"lactate_level,omitempty"`
}

// GCSOrDefault returns the Glasgow Coma Score, defaulting to 14.
func (v Vitals) GCSOrDefault() float64 {
	if v.GCS == nil {
		return DefaultGCS
	}
	return *v.GCS
}

// LactateOrDefault returns the lactate level in mmol/L, defaulting to 2.0.
func (v Vitals) LactateOrDefault() float64 {
	if v.Lactate == nil {
		return DefaultLactate
	}
	return *v.Lactate
}

// FieldSpec declares one input field and its default-or-required policy.
type FieldSpec struct {
	Name     string
	Aliases  []string
	Required bool
	Default  float64
	Text     bool
}

// Schema is the ordered input contract for Vitals. It is checked once, in ParseVitals.
var Schema = []FieldSpec{
	{Name: "age", Required: true},
	{Name: "gender", Required: true, Text: true},
	{Name: "heart_rate", Required: true},
	{Name: "systolic_blood_pressure", Required: true},
	{Name: "diastolic_blood_pressure", Required: true},
	{Name: "oxygen_saturation", Aliases: []string{"spo2"}, Required: true},
	{Name: "temperature", Required: true},
	{Name: "respiratory_rate", Required: true},
	{Name: "gcs_score", Aliases: []string{"glasgow_coma_score"}, Default: DefaultGCS},
	{Name: "lactate_level", Default: DefaultLactate},
}

// ParseVitals maps a loosely typed field map onto Vitals using Schema.
// Missing required fields are reported together, wrapped in ErrInputIncomplete.
// Value ranges are not checked here.
func ParseVitals(fields map[string]any) (Vitals, error) {
	var (
		v       Vitals
		missing []string
		nums    = make(map[string]float64, len(Schema))
	)

	for _, spec := range Schema {
		raw, ok := lookup(fields, spec)
		if !ok {
			if spec.Required {
				missing = append(missing, spec.Name)
			}
			continue
		}

		if spec.Text {
			v.Gender = fmt.Sprint(raw)
			continue
		}

		f, err := toFloat(raw)
		if err != nil {
			return Vitals{}, fmt.Errorf("field %s: %w", spec.Name, err)
		}
		nums[spec.Name] = f
	}

	if len(missing) > 0 {
		return Vitals{}, fmt.Errorf("%w: missing %s", ErrInputIncomplete, strings.Join(missing, ", "))
	}

	v.Age = nums["age"]
	v.HeartRate = nums["heart_rate"]
	v.SystolicBP = nums["systolic_blood_pressure"]
	v.DiastolicBP = nums["diastolic_blood_pressure"]
	v.OxygenSaturation = nums["oxygen_saturation"]
	v.Temperature = nums["temperature"]
	v.RespiratoryRate = nums["respiratory_rate"]
	if g, ok := nums["gcs_score"]; ok {
		v.GCS = &g
	}
	if l, ok := nums["lactate_level"]; ok {
		v.Lactate = &l
	}
	return v, nil
}

func lookup(fields map[string]any, spec FieldSpec) (any, bool) {
	for _, name := range append([]string{spec.Name}, spec.Aliases...) {
		if raw, ok := fields[name]; ok && raw != nil {
			if s, isStr := raw.(string); isStr && s == "" && !spec.Text {
				continue
			}
			return raw, true
		}
	}
	return nil, false
}

func toFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case interface{ Float64() (float64, error) }: // json.Number
		return x.Float64()
	default:
		return 0, fmt.Errorf("unsupported value type %T", raw)
	}
}
