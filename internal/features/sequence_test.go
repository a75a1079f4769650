package features

import (
	"math"
	"sync"
	"testing"
)

type boundJitter struct{ hi bool }

func (b boundJitter) Uniform(lo, hi float64) float64 {
	if b.hi {
		return hi
	}
	return lo
}

func TestBuildSequence_Shape(t *testing.T) {
	v := testVitals()
	seq := BuildSequence(v, FixedJitter{F: 0.5})

	current := [SequenceChannels]float64{95, 140, 90, 94.5, 37.8, 22}
	for c := 0; c < SequenceChannels; c++ {
		if seq[1][c] != current[c] || seq[2][c] != current[c] {
			t.Errorf("channel %s: median/last must equal the current reading", SequenceChannelNames[c])
		}
	}
	if seq[0][0] != 95 {
		t.Errorf("midpoint jitter should leave HR unperturbed, got %v", seq[0][0])
	}
}

func TestBuildSequence_OxygenNeverImproves(t *testing.T) {
	v := testVitals()

	up := BuildSequence(v, boundJitter{hi: true})
	if up[0][chanSaO2] != v.OxygenSaturation {
		t.Errorf("upper jitter bound must leave SpO2 unchanged, got %v", up[0][chanSaO2])
	}
	if want := v.HeartRate * 1.05; math.Abs(up[0][0]-want) > 1e-9 {
		t.Errorf("HR upper bound: got %v, want %v", up[0][0], want)
	}

	down := BuildSequence(v, boundJitter{hi: false})
	if want := v.OxygenSaturation * 0.95; math.Abs(down[0][chanSaO2]-want) > 1e-9 {
		t.Errorf("SpO2 lower bound: got %v, want %v", down[0][chanSaO2], want)
	}
}

func TestBuildSequence_RandomWithinBounds(t *testing.T) {
	v := testVitals()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				seq := BuildSequence(v, nil)
				for c, x := range seq[0] {
					cur := seq[2][c]
					lo, hi := cur*0.95, cur*1.05
					if c == chanSaO2 {
						hi = cur
					}
					if x < lo-1e-9 || x > hi+1e-9 {
						t.Errorf("channel %d first reading %v outside [%v, %v]", c, x, lo, hi)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestSequence_Normalized(t *testing.T) {
	var seq Sequence
	for i := range seq {
		seq[i] = [SequenceChannels]float64{120, 140, 80, 94, 37.5, 20}
	}

	out := seq.Normalized()
	want := []float64{0, 1, 0, -1, 1, 1}
	if len(out) != SequenceSteps {
		t.Fatalf("expected %d steps, got %d", SequenceSteps, len(out))
	}
	for c, w := range want {
		if math.Abs(out[2][c]-w) > 1e-12 {
			t.Errorf("channel %s: got %v, want %v", SequenceChannelNames[c], out[2][c], w)
		}
	}
}
