package stats

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/verte-zerg/overtype/internal/capture"
	"github.com/verte-zerg/overtype/internal/model"
)

// TopTypedChars returns the n most practised characters by keystrokes.
// Whitespace and characters the overlay skips over never rank. Ties go to
// the slower character, then to the lower code point.
func TopTypedChars(aggs []model.CharAggregate, n int) []string {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	ranked := make([]model.CharAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if !rankable(agg.Char) || agg.Correct+agg.Incorrect == 0 {
			continue
		}
		ranked = append(ranked, agg)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ti := ranked[i].Correct + ranked[i].Incorrect
		tj := ranked[j].Correct + ranked[j].Incorrect
		if ti != tj {
			return ti > tj
		}
		li, lj := meanLatency(ranked[i]), meanLatency(ranked[j])
		if li != lj {
			return li > lj
		}
		return ranked[i].Char < ranked[j].Char
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = ranked[i].Char
	}
	return out
}

func rankable(ch string) bool {
	r, size := utf8.DecodeRuneInString(ch)
	if r == utf8.RuneError || size != len(ch) {
		return false
	}
	return !unicode.IsSpace(r) && !capture.IsSkipRune(r)
}

func meanLatency(agg model.CharAggregate) float64 {
	if agg.LatencyCount == 0 {
		return 0
	}
	return float64(agg.LatencySumMs) / float64(agg.LatencyCount)
}
