package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// TreeNode is one node of a boosted tree. A node with Leaf set is terminal; otherwise
// rows with x[Feature] < Threshold go to Yes, the rest to No, and NaN goes to Missing.
type TreeNode struct {
	Feature   int      `json:"feature"`
	Threshold float64  `json:"threshold"`
	Yes       int      `json:"yes"`
	No        int      `json:"no"`
	Missing   int      `json:"missing"`
	Leaf      *float64 `json:"leaf,omitempty"`
}

type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is a binary-logistic gradient-boosted tree model exported as JSON.
// Node 0 is the root of every tree. BaseScore is a probability, as in the exporter.
type TreeEnsemble struct {
	Features  []string `json:"feature_names"`
	BaseScore float64  `json:"base_score"`
	Trees     []Tree   `json:"trees"`

	baseMargin float64
}

// LoadTreeEnsemble reads and validates a tree ensemble artifact.
func LoadTreeEnsemble(path string) (*TreeEnsemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var te TreeEnsemble
	if err := json.Unmarshal(data, &te); err != nil {
		return nil, fmt.Errorf("parse tree ensemble %s: %w", path, err)
	}
	if err := te.init(); err != nil {
		return nil, fmt.Errorf("tree ensemble %s: %w", path, err)
	}
	return &te, nil
}

// NewTreeEnsemble validates an in-memory ensemble.
func NewTreeEnsemble(featureNames []string, baseScore float64, trees []Tree) (*TreeEnsemble, error) {
	te := &TreeEnsemble{Features: featureNames, BaseScore: baseScore, Trees: trees}
	if err := te.init(); err != nil {
		return nil, err
	}
	return te, nil
}

func (te *TreeEnsemble) init() error {
	if len(te.Features) == 0 {
		return fmt.Errorf("no feature names")
	}
	if len(te.Trees) == 0 {
		return fmt.Errorf("no trees")
	}
	if te.BaseScore == 0 {
		te.BaseScore = 0.5
	}
	if te.BaseScore <= 0 || te.BaseScore >= 1 {
		return fmt.Errorf("base_score %v outside (0,1)", te.BaseScore)
	}
	te.baseMargin = math.Log(te.BaseScore / (1 - te.BaseScore))

	for ti, tree := range te.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Leaf != nil {
				continue
			}
			if n.Feature < 0 || n.Feature >= len(te.Features) {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			for _, child := range []int{n.Yes, n.No, n.Missing} {
				if child <= ni || child >= len(tree.Nodes) {
					return fmt.Errorf("tree %d node %d: child %d out of range", ti, ni, child)
				}
			}
		}
	}
	return nil
}

func (te *TreeEnsemble) FeatureNames() []string {
	return append([]string(nil), te.Features...)
}

// Margin returns the raw additive score before the logistic link.
func (te *TreeEnsemble) Margin(row []float64) (float64, error) {
	if len(row) != len(te.Features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(te.Features), len(row))
	}

	margin := te.baseMargin
	for _, tree := range te.Trees {
		margin += tree.leaf(row)
	}
	return margin, nil
}

// PredictProba returns sigmoid(margin).
func (te *TreeEnsemble) PredictProba(row []float64) (float64, error) {
	margin, err := te.Margin(row)
	if err != nil {
		return 0, err
	}
	p := sigmoid(margin)
	if err := checkProbability(p); err != nil {
		return 0, err
	}
	return p, nil
}

// leaf walks from the root. Children always have larger indices than their parent,
// which init enforces, so the walk terminates.
func (t Tree) leaf(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		x := row[n.Feature]
		switch {
		case math.IsNaN(x):
			i = n.Missing
		case x < n.Threshold:
			i = n.Yes
		default:
			i = n.No
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
