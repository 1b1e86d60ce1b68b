package bracket

import (
	"cmp"
	"slices"
)

type Round struct {
	Number  int     `json:"number"`
	Matches []Match `json:"matches"`
}

// GroupRounds buckets matches by round number, rounds ascending and matches by match order.
func GroupRounds(matches []Match) []Round {
	byRound := make(map[int][]Match)
	var numbers []int
	for _, m := range matches {
		if _, exists := byRound[m.RoundNumber]; !exists {
			numbers = append(numbers, m.RoundNumber)
		}
		byRound[m.RoundNumber] = append(byRound[m.RoundNumber], m)
	}
	slices.Sort(numbers)

	rounds := make([]Round, 0, len(numbers))
	for _, n := range numbers {
		ms := byRound[n]
		slices.SortFunc(ms, func(a, b Match) int {
			return cmp.Compare(a.MatchOrder, b.MatchOrder)
		})
		rounds = append(rounds, Round{Number: n, Matches: ms})
	}
	return rounds
}
