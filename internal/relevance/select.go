package relevance

import "sort"

// Select picks at most p.MaxResources entries from scored, which must be
// sorted by score as Score returns it.
func Select(scored []Scored, p Params) []Scored {
	if p.MaxResources <= 0 || len(scored) == 0 {
		return nil
	}
	switch p.Strategy {
	case StrategyPriority:
		return topBy(scored, p.MaxResources, func(s Scored) float64 { return s.Components.Priority })
	case StrategySemantic:
		return topBy(scored, p.MaxResources, func(s Scored) float64 { return s.Components.semantic() })
	default:
		return diverse(scored, p)
	}
}

func topBy(scored []Scored, n int, key func(Scored) float64) []Scored {
	sorted := append([]Scored(nil), scored...)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// diverse repeatedly takes the candidate with the best penalty-adjusted
// score. Each earlier pick from the same server or category costs one step,
// up to the cap. Selection stops when nothing clears the floor.
func diverse(scored []Scored, p Params) []Scored {
	remaining := append([]Scored(nil), scored...)
	servers := map[string]int{}
	categories := map[Category]int{}
	out := make([]Scored, 0, p.MaxResources)

	penalty := func(s Scored) float64 {
		pen := p.PenaltyStep * float64(servers[s.Resource.Server]+categories[s.Category])
		if pen > p.PenaltyCap {
			pen = p.PenaltyCap
		}
		return pen
	}

	for len(out) < p.MaxResources && len(remaining) > 0 {
		best, bestScore := -1, 0.0
		for i, s := range remaining {
			adjusted := s.Score - penalty(s)
			if best < 0 || adjusted > bestScore {
				best, bestScore = i, adjusted
			}
		}
		if bestScore <= p.Floor {
			break
		}
		pick := remaining[best]
		out = append(out, pick)
		servers[pick.Resource.Server]++
		categories[pick.Category]++
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}
