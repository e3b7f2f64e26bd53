package stats

import (
	"sort"

	"github.com/verte-zerg/keyprint/internal/model"
)

// ReasonCount is how often a reason appeared across attempts.
type ReasonCount struct {
	Reason model.Reason
	Count  int
}

// TopReasons returns the n most frequent reasons across attempts.
func TopReasons(attempts []model.Attempt, n int) []ReasonCount {
	if n <= 0 || len(attempts) == 0 {
		return nil
	}
	counts := map[model.Reason]int{}
	for _, a := range attempts {
		for _, r := range a.Reasons {
			counts[r]++
		}
	}
	items := make([]ReasonCount, 0, len(counts))
	for r, c := range counts {
		items = append(items, ReasonCount{Reason: r, Count: c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Reason < items[j].Reason
		}
		return items[i].Count > items[j].Count
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
