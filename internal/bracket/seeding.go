package bracket

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Shuffle is an in-place Fisher-Yates shuffle, walking from the last index down to 1.
// intn must return a uniform value in [0, n).
func Shuffle(ids []uuid.UUID, intn func(n int) int) {
	if intn == nil {
		intn = rand.IntN
	}
	for i := len(ids) - 1; i > 0; i-- {
		j := intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// PairConsecutive pairs (p[0],p[1]), (p[2],p[3]), ... The unpaired last entry of an
// odd-length list is returned as the bye.
func PairConsecutive(ids []uuid.UUID) ([][2]uuid.UUID, *uuid.UUID) {
	pairs := make([][2]uuid.UUID, 0, len(ids)/2)
	for i := 0; i+1 < len(ids); i += 2 {
		pairs = append(pairs, [2]uuid.UUID{ids[i], ids[i+1]})
	}

	if len(ids)%2 == 1 {
		bye := ids[len(ids)-1]
		return pairs, &bye
	}
	return pairs, nil
}

// RoundSizes returns the number of matches in each round for n entrants.
// Every round with an odd number of entrants hands one of them a bye into the next round,
// so round k+1 sees ceil(entrants_k / 2) entrants.
func RoundSizes(n int) []int {
	var sizes []int
	for entrants := n; entrants > 1; entrants = (entrants + 1) / 2 {
		sizes = append(sizes, entrants/2)
	}
	return sizes
}
