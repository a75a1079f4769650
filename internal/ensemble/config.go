package ensemble

import (
	"fmt"
	"math"

	"icu-risk/internal/thresholds"
)

const (
	DefaultTabularWeight     = 0.7
	DefaultSequenceWeight    = 0.3
	DefaultMediumTier        = 0.4
	DefaultHighTier          = 0.6
	DefaultCriticalTier      = 0.8
	DefaultDecisionThreshold = 0.5

	weightTolerance = 1e-6
)

// Tiers are the lower bounds (inclusive) of the Medium, High and Critical levels.
type Tiers struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// Config controls score fusion and the decision cut-point.
type Config struct {
	TabularWeight     float64 `yaml:"tabular_weight" json:"xgboost"`
	SequenceWeight    float64 `yaml:"sequence_weight" json:"lstm"`
	Tiers             Tiers   `yaml:"tiers" json:"tiers"`
	DecisionThreshold float64 `yaml:"decision_threshold" json:"decision_threshold"`
}

func DefaultConfig() Config {
	return Config{
		TabularWeight:  DefaultTabularWeight,
		SequenceWeight: DefaultSequenceWeight,
		Tiers: Tiers{
			Medium:   DefaultMediumTier,
			High:     DefaultHighTier,
			Critical: DefaultCriticalTier,
		},
		DecisionThreshold: DefaultDecisionThreshold,
	}
}

// Validate checks the weights sum to one and the tiers are strictly increasing in (0,1).
func (c Config) Validate() error {
	if c.TabularWeight < 0 || c.SequenceWeight < 0 {
		return fmt.Errorf("weights must be non-negative, got %v and %v", c.TabularWeight, c.SequenceWeight)
	}
	if sum := c.TabularWeight + c.SequenceWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}

	t := c.Tiers
	if !(0 < t.Medium && t.Medium < t.High && t.High < t.Critical && t.Critical < 1) {
		return fmt.Errorf("tier boundaries must satisfy 0 < medium < high < critical < 1, got %v/%v/%v",
			t.Medium, t.High, t.Critical)
	}

	if c.DecisionThreshold <= 0 || c.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold must be in (0,1), got %v", c.DecisionThreshold)
	}
	return nil
}

// WithPolicy returns a copy of c whose decision threshold is the cut-point of the named
// policy in set.
func (c Config) WithPolicy(set *thresholds.Set, name string) (Config, error) {
	p, ok := set.Policy(name)
	if !ok {
		return c, fmt.Errorf("policy %q not found in threshold set", name)
	}
	c.DecisionThreshold = p.Threshold
	return c, nil
}
