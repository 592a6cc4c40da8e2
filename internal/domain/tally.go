package domain

// Vote is a single cast vote. Tally input is ordered by arrival.
type Vote struct {
	Voter  string
	Target string
}

// TallyResult is the outcome of counting a round's votes.
type TallyResult struct {
	Counts     map[string]int
	MostVoted  string
	LiarCaught bool
	Winners    []string
}

// Tally counts votes and determines the round outcome. The most-voted target
// is the one with the strictly greatest count; ties are broken in favor of
// whichever candidate reached the maximum count first in vote arrival order.
// That tie-break is deterministic for a fixed input order but otherwise
// arbitrary; it is not "fair".
//
// LiarCaught is true iff the most-voted target is the liar. Winners are all
// non-liar players when the liar is caught, otherwise the liar alone.
func Tally(votes []Vote, players []Player, liarID string) TallyResult {
	result := TallyResult{Counts: make(map[string]int, len(players))}

	best := 0
	for _, v := range votes {
		result.Counts[v.Target]++
		if result.Counts[v.Target] > best {
			best = result.Counts[v.Target]
			result.MostVoted = v.Target
		}
	}

	result.LiarCaught = result.MostVoted != "" && result.MostVoted == liarID

	if result.LiarCaught {
		for _, p := range players {
			if p.ID != liarID {
				result.Winners = append(result.Winners, p.ID)
			}
		}
	} else if liarID != "" {
		result.Winners = []string{liarID}
	}

	return result
}
