package search

import (
	"cmp"
	"sort"
	"strconv"
	"strings"

	"github.com/sattyani/ai-procurement-agent/internal/indexer"
	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// FusedResult holds a record with its fused score and the raw score of each active space.
type FusedResult struct {
	Record      *models.ProposalRecord
	Score       float64
	SpaceScores map[string]float64
}

// Fuse combines per-space scores into weight × raw sums and returns them ranked.
// Terms are added in the order of active, so equal inputs always give equal sums.
// Scores are not renormalised; the weight scale is the caller's choice.
func Fuse(scored []indexer.ScoredRecord, active []string, weights map[string]float64) []*FusedResult {
	results := make([]*FusedResult, 0, len(scored))
	for _, s := range scored {
		var fused float64
		for _, name := range active {
			fused += weights[name] * s.Scores[name]
		}
		results = append(results, &FusedResult{Record: s.Record, Score: fused, SpaceScores: s.Scores})
	}
	Rank(results)
	return results
}

// Rank sorts by score descending, then by id ascending.
func Rank(results []*FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return compareIDs(results[i].Record.ID, results[j].Record.ID) < 0
	})
}

// compareIDs orders integer ids numerically and before all other ids, which compare byte-wise.
// Integer ids of equal value ("01", "1") also fall back to byte order.
func compareIDs(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
