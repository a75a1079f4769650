package features

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sampleFields() map[string]any {
	return map[string]any{
		"age":                      65,
		"gender":                   "Male",
		"heart_rate":               95,
		"systolic_blood_pressure":  140,
		"diastolic_blood_pressure": 90,
		"oxygen_saturation":        94.5,
		"temperature":              37.8,
		"respiratory_rate":         22,
	}
}

func TestParseVitals_AppliesDefaults(t *testing.T) {
	v, err := ParseVitals(sampleFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.Age != 65 || v.HeartRate != 95 || v.OxygenSaturation != 94.5 {
		t.Errorf("unexpected parsed vitals: %+v", v)
	}
	if v.GCS != nil || v.Lactate != nil {
		t.Error("optional fields should stay unset when absent")
	}
	if v.GCSOrDefault() != 14 {
		t.Errorf("expected default GCS 14, got %v", v.GCSOrDefault())
	}
	if v.LactateOrDefault() != 2.0 {
		t.Errorf("expected default lactate 2.0, got %v", v.LactateOrDefault())
	}
}

func TestParseVitals_OptionalAndAliases(t *testing.T) {
	fields := sampleFields()
	delete(fields, "oxygen_saturation")
	fields["spo2"] = "91.5"
	fields["glasgow_coma_score"] = 9
	fields["lactate_level"] = json.Number("4.2")

	v, err := ParseVitals(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.OxygenSaturation != 91.5 {
		t.Errorf("expected spo2 alias to populate oxygen saturation, got %v", v.OxygenSaturation)
	}
	if v.GCSOrDefault() != 9 {
		t.Errorf("expected GCS 9, got %v", v.GCSOrDefault())
	}
	if v.LactateOrDefault() != 4.2 {
		t.Errorf("expected lactate 4.2, got %v", v.LactateOrDefault())
	}
}

func TestParseVitals_MissingRequired(t *testing.T) {
	fields := sampleFields()
	delete(fields, "heart_rate")
	delete(fields, "temperature")

	_, err := ParseVitals(fields)
	if !errors.Is(err, ErrInputIncomplete) {
		t.Fatalf("expected ErrInputIncomplete, got %v", err)
	}
	for _, name := range []string{"heart_rate", "temperature"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name missing field %s", err, name)
		}
	}
}

func TestParseVitals_BadNumber(t *testing.T) {
	fields := sampleFields()
	fields["age"] = "sixty"

	_, err := ParseVitals(fields)
	if err == nil {
		t.Fatal("expected parse error for non-numeric age")
	}
	if errors.Is(err, ErrInputIncomplete) {
		t.Error("a malformed value is not an incomplete input")
	}
}

func TestVitals_JSONDecoding(t *testing.T) {
	raw := `{"age":40,"gender":"female","heart_rate":70,"systolic_blood_pressure":120,
		"diastolic_blood_pressure":80,"oxygen_saturation":98,"temperature":36.9,
		"respiratory_rate":14,"gcs_score":15}`

	var v Vitals
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.GCSOrDefault() != 15 {
		t.Errorf("expected GCS 15, got %v", v.GCSOrDefault())
	}
	if v.Lactate != nil {
		t.Error("lactate should be nil when omitted")
	}
}
