package ensemble

import (
	"fmt"
	"strings"

	"icu-risk/internal/features"
)

// Summarize renders the one-paragraph clinical summary for a decision.
func Summarize(v features.Vitals, score float64, level RiskLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%g-year-old %s patient presents with ", v.Age, strings.ToLower(v.Gender))

	if concerns := Concerns(v); len(concerns) > 0 {
		b.WriteString(strings.Join(concerns, ", "))
		b.WriteString(". ")
	} else {
		b.WriteString("stable vitals. ")
	}

	fmt.Fprintf(&b, "ML assessment indicates %s risk (score: %.1f%%) for ICU admission.",
		strings.ToUpper(string(level)), score*100)
	return b.String()
}

// Concerns lists abnormal vitals in summary wording.
func Concerns(v features.Vitals) []string {
	var concerns []string

	switch hr := v.HeartRate; {
	case hr > 100:
		concerns = append(concerns, fmt.Sprintf("tachycardia (HR: %g bpm)", hr))
	case hr < 60:
		concerns = append(concerns, fmt.Sprintf("bradycardia (HR: %g bpm)", hr))
	}

	bp := fmt.Sprintf("%g/%g", v.SystolicBP, v.DiastolicBP)
	switch sbp := v.SystolicBP; {
	case sbp > 140:
		concerns = append(concerns, fmt.Sprintf("hypertension (BP: %s)", bp))
	case sbp < 90:
		concerns = append(concerns, fmt.Sprintf("hypotension (BP: %s)", bp))
	}

	if spo2 := v.OxygenSaturation; spo2 < 95 {
		concerns = append(concerns, fmt.Sprintf("hypoxia (SpO2: %g%%)", spo2))
	}
	return concerns
}
