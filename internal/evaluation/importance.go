package evaluation

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"icu-risk/internal/features"
	"icu-risk/internal/thresholds"
)

// FeatureImportance is the ROC AUC lost when one column is shuffled across rows.
type FeatureImportance struct {
	Name         string  `json:"name"`
	BaselineAUC  float64 `json:"baseline_auc"`
	PermutedAUC  float64 `json:"permuted_auc"`
	Importance   float64 `json:"importance"`
	MeanAbsShift float64 `json:"mean_abs_score_shift"`
}

// PermutationImportance scores ds once as is and once per column with that column
// shuffled, and ranks columns by the AUC drop, largest first. Columns the model
// ignores come out at zero.
func PermutationImportance(model thresholds.Scorer, ds *Dataset, seed uint64) ([]FeatureImportance, error) {
	if ds.Len() == 0 {
		return nil, thresholds.ErrEmptyInput
	}

	baseScores, err := scoreAll(model, ds.Rows)
	if err != nil {
		return nil, err
	}
	base, err := thresholds.Compute(baseScores, ds.Labels)
	if err != nil {
		return nil, err
	}

	names := ds.Rows[0].Names()
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	out := make([]FeatureImportance, 0, len(names))

	for col, name := range names {
		permuted, err := permuteColumn(ds.Rows, col, rng)
		if err != nil {
			return nil, err
		}
		scores, err := scoreAll(model, permuted)
		if err != nil {
			return nil, fmt.Errorf("permute %s: %w", name, err)
		}
		set, err := thresholds.Compute(scores, ds.Labels)
		if err != nil {
			return nil, err
		}

		var shift float64
		for i := range scores {
			d := scores[i] - baseScores[i]
			if d < 0 {
				d = -d
			}
			shift += d
		}

		out = append(out, FeatureImportance{
			Name:         name,
			BaselineAUC:  base.AUC,
			PermutedAUC:  set.AUC,
			Importance:   base.AUC - set.AUC,
			MeanAbsShift: shift / float64(len(scores)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

func scoreAll(model thresholds.Scorer, rows []features.Vector) ([]float64, error) {
	scores := make([]float64, len(rows))
	for i, row := range rows {
		s, err := model.ScoreVector(row)
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// permuteColumn copies rows with column col replaced by a random permutation of itself.
func permuteColumn(rows []features.Vector, col int, rng *rand.Rand) ([]features.Vector, error) {
	column := make([]float64, len(rows))
	for i, row := range rows {
		column[i] = row.Values()[col]
	}
	rng.Shuffle(len(column), func(i, j int) { column[i], column[j] = column[j], column[i] })

	out := make([]features.Vector, len(rows))
	for i, row := range rows {
		values := row.Values()
		values[col] = column[i]
		v, err := features.NewVector(row.Names(), values)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
