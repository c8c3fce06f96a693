package utils

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// Draw helpers for winner selection. Entrant pools are adversarial-adjacent
// (public contest), so everything here reads from crypto/rand and corrects for
// modulo bias with rejection sampling: a raw randUint64 % n over-selects the
// first (2^64 mod n) residues, a measurable skew once n is not a power of two.

// CryptoIntn returns a uniformly distributed int in [0, n).
//
// Rejection sampling: draw a 64-bit value and discard it when it falls in the
// incomplete final bucket [2^64 - (2^64 mod n), 2^64). The discard probability
// is below n/2^64 per draw, so the expected number of reads is under 1 + 2^-32
// for any n that fits an int.
func CryptoIntn(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("CryptoIntn: n must be > 0")
	}
	un := uint64(n)
	// Largest multiple of n that fits in 64 bits; values at or above it are biased.
	limit := (^uint64(0)/un)*un - 1
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("CryptoIntn: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v <= limit {
			return int(v % un), nil
		}
	}
}

// WeightedPool is a sampling pool of candidate IDs with integer ticket weights.
type WeightedPool struct {
	IDs     []string
	Weights []int
	total   int
}

// NewWeightedPool validates candidates and computes the total ticket count.
func NewWeightedPool(ids []string, weights []int) (*WeightedPool, error) {
	if len(ids) == 0 {
		return nil, errors.New("weighted pool: no candidates")
	}
	if len(ids) != len(weights) {
		return nil, errors.New("weighted pool: ids and weights length mismatch")
	}
	total := 0
	for i, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("weighted pool: candidate %s has non-positive weight %d", ids[i], w)
		}
		total += w
	}
	return &WeightedPool{IDs: ids, Weights: weights, total: total}, nil
}

// DrawWithoutReplacement picks up to k distinct IDs, each draw proportional to
// the candidate's remaining weight. A chosen candidate is removed entirely so
// no ID repeats. Order of the returned slice is draw order.
func (p *WeightedPool) DrawWithoutReplacement(k int) ([]string, error) {
	if k <= 0 {
		return nil, errors.New("weighted pool: must draw at least 1")
	}
	ids := append([]string(nil), p.IDs...)
	weights := append([]int(nil), p.Weights...)
	total := p.total

	if k > len(ids) {
		k = len(ids)
	}
	selected := make([]string, 0, k)
	for i := 0; i < k; i++ {
		ticket, err := CryptoIntn(total)
		if err != nil {
			return nil, err
		}
		// Walk cumulative weights to find the ticket's owner.
		pick := 0
		for acc := 0; pick < len(ids); pick++ {
			acc += weights[pick]
			if ticket < acc {
				break
			}
		}
		selected = append(selected, ids[pick])
		total -= weights[pick]
		ids = append(ids[:pick], ids[pick+1:]...)
		weights = append(weights[:pick], weights[pick+1:]...)
	}
	return selected, nil
}
