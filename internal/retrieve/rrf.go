package retrieve

import "sort"

// DefaultRRFK is the standard reciprocal rank fusion damping constant
const DefaultRRFK = 60

// Fused is an item with its fused score
type Fused struct {
	ID    string
	Score float64
}

// ReciprocalRankFusion scores each item by the sum of 1/(k + rank) over the
// lists that contain it, with ranks starting at 1. Ties keep first-seen
// order. k <= 0 uses DefaultRRFK.
func ReciprocalRankFusion(lists [][]string, k int) []Fused {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	var order []string
	for _, list := range lists {
		seen := make(map[string]bool, len(list))
		for i, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := scores[id]; !ok {
				order = append(order, id)
			}
			scores[id] += 1 / float64(k+i+1)
		}
	}

	fused := make([]Fused, len(order))
	for i, id := range order {
		fused[i] = Fused{ID: id, Score: scores[id]}
	}
	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	return fused
}
