package stats

import (
	"sort"

	"github.com/verte-zerg/overtype/internal/model"
)

// SelectWeakChars returns the top lowest-accuracy characters, weakest first.
func SelectWeakChars(aggs []model.CharAggregate, top int) []string {
	if len(aggs) == 0 {
		return nil
	}
	candidates := make([]model.CharAggregate, len(aggs))
	copy(candidates, aggs)
	sort.Slice(candidates, func(i, j int) bool {
		ai := accuracy(candidates[i])
		aj := accuracy(candidates[j])
		if ai == aj {
			return candidates[i].Char < candidates[j].Char
		}
		return ai < aj
	})
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	out := make([]string, 0, top)
	for i := 0; i < top; i++ {
		if accuracy(candidates[i]) >= 1 {
			break
		}
		out = append(out, candidates[i].Char)
	}
	return out
}

func accuracy(agg model.CharAggregate) float64 {
	total := agg.Correct + agg.Incorrect
	if total == 0 {
		return 1.0
	}
	return float64(agg.Correct) / float64(total)
}
