package ml

import (
	"fmt"
	"math"

	"icu-risk/internal/features"
)

// TabularFallback scores vitals with additive clinical rules. It needs no artifacts and
// never fails. Critical findings are listed in RiskFactors.
func TabularFallback(v features.Vitals, reason string) Estimate {
	var (
		score   float64
		factors []string
	)

	switch age := v.Age; {
	case age > 75:
		score += 0.15
		factors = append(factors, "Advanced age (>75)")
	case age > 65:
		score += 0.08
	}

	switch hr := v.HeartRate; {
	case hr > 130 || hr < 45:
		score += 0.2
		factors = append(factors, fmt.Sprintf("Critical heart rate (%g bpm)", hr))
	case hr > 110 || hr < 55:
		score += 0.1
	}

	switch sbp := v.SystolicBP; {
	case sbp > 180 || sbp < 85:
		score += 0.2
		factors = append(factors, fmt.Sprintf("Critical BP (%g/%g)", sbp, v.DiastolicBP))
	case sbp > 150 || sbp < 95:
		score += 0.1
	}

	switch spo2 := v.OxygenSaturation; {
	case spo2 < 88:
		score += 0.3
		factors = append(factors, fmt.Sprintf("Severe hypoxia (SpO2: %g%%)", spo2))
	case spo2 < 92:
		score += 0.2
		factors = append(factors, fmt.Sprintf("Low oxygen (%g%%)", spo2))
	case spo2 < 95:
		score += 0.1
	}

	switch temp := v.Temperature; {
	case temp > 40 || temp < 34:
		score += 0.15
		factors = append(factors, fmt.Sprintf("Critical temperature (%g°C)", temp))
	case temp > 38.5 || temp < 35.5:
		score += 0.08
	}

	switch rr := v.RespiratoryRate; {
	case rr > 35 || rr < 8:
		score += 0.2
		factors = append(factors, fmt.Sprintf("Critical respiratory rate (%g/min)", rr))
	case rr > 25 || rr < 10:
		score += 0.1
	}

	switch gcs := v.GCSOrDefault(); {
	case gcs < 9:
		score += 0.25
		factors = append(factors, fmt.Sprintf("Severely altered consciousness (GCS: %g)", gcs))
	case gcs < 13:
		score += 0.12
	}

	return Estimate{
		RiskScore:   math.Min(score, 1.0),
		ModelType:   TagTabularFallback,
		Success:     true,
		Fallback:    true,
		Reason:      reason,
		Prediction:  label(score >= 0.5),
		RiskFactors: factors,
	}
}

// SequenceFallback is the rule set standing in for the sequence model. It looks at the
// current vitals only.
func SequenceFallback(v features.Vitals, reason string) Estimate {
	var score float64

	switch hr := v.HeartRate; {
	case hr > 120 || hr < 50:
		score += 0.2
	case hr > 100 || hr < 60:
		score += 0.1
	}

	switch sbp := v.SystolicBP; {
	case sbp > 180 || sbp < 90:
		score += 0.2
	case sbp > 140 || sbp < 100:
		score += 0.1
	}

	switch spo2 := v.OxygenSaturation; {
	case spo2 < 90:
		score += 0.3
	case spo2 < 94:
		score += 0.15
	}

	if temp := v.Temperature; temp > 39 || temp < 35 {
		score += 0.15
	}

	switch rr := v.RespiratoryRate; {
	case rr > 30 || rr < 10:
		score += 0.15
	case rr > 24 || rr < 12:
		score += 0.08
	}

	return Estimate{
		RiskScore: math.Min(score, 1.0),
		ModelType: TagSequenceFallback,
		Success:   true,
		Fallback:  true,
		Reason:    reason,
	}
}
