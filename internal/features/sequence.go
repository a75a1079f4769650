package features

import "math/rand/v2"

const (
	SequenceSteps    = 3
	SequenceChannels = 6

	// perturbation bound for the synthetic first reading
	jitterFraction = 0.05
)

// SequenceChannelNames lists the channels in tensor order.
var SequenceChannelNames = [SequenceChannels]string{"HR", "SysABP", "DiasABP", "SaO2", "Temp", "RespRate"}

// channel index of oxygen saturation
const chanSaO2 = 3

// ChannelNorm holds the fixed (mean, std) pair per channel.
var ChannelNorm = [SequenceChannels][2]float64{
	{120, 50}, // HR
	{120, 20}, // SysABP
	{80, 15},  // DiasABP
	{97, 3},   // SaO2
	{37, 0.5}, // Temp
	{16, 4},   // RespRate
}

// Sequence is a (steps x channels) series: first, median, last.
type Sequence [SequenceSteps][SequenceChannels]float64

// Jitter draws uniform values in [lo, hi). Implementations must be safe for concurrent use.
type Jitter interface {
	Uniform(lo, hi float64) float64
}

// RandomJitter uses the goroutine-safe top-level generator of math/rand/v2.
type RandomJitter struct{}

func (RandomJitter) Uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

// FixedJitter always returns the fraction F of the way from lo to hi.
// F=0.5 on a symmetric range leaves readings unperturbed.
type FixedJitter struct{ F float64 }

func (j FixedJitter) Uniform(lo, hi float64) float64 {
	return lo + j.F*(hi-lo)
}

// BuildSequence synthesises a 3-step series from one snapshot. The first step perturbs
// each channel by up to ±5%; oxygen saturation is only ever perturbed downward. The
// median and last steps are the unperturbed reading. A nil jitter uses RandomJitter.
func BuildSequence(v Vitals, j Jitter) Sequence {
	if j == nil {
		j = RandomJitter{}
	}

	current := [SequenceChannels]float64{
		v.HeartRate, v.SystolicBP, v.DiastolicBP, v.OxygenSaturation, v.Temperature, v.RespiratoryRate,
	}

	var seq Sequence
	for c, x := range current {
		hi := jitterFraction
		if c == chanSaO2 {
			hi = 0
		}
		seq[0][c] = x * (1 + j.Uniform(-jitterFraction, hi))
		seq[1][c] = x
		seq[2][c] = x
	}
	return seq
}

// Normalized applies ChannelNorm and returns a freshly allocated [steps][channels] slice.
func (s Sequence) Normalized() [][]float64 {
	out := make([][]float64, SequenceSteps)
	for t := range s {
		out[t] = make([]float64, SequenceChannels)
		for c, x := range s[t] {
			out[t][c] = (x - ChannelNorm[c][0]) / ChannelNorm[c][1]
		}
	}
	return out
}
