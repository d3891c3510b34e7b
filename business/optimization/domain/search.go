package domain

import "math/big"

// ProfitFn evaluates profit at a candidate front-run size. A nil result marks
// an infeasible size (treated as worse than any feasible one).
type ProfitFn func(f *big.Int) *big.Int

// SearchResult is the outcome of MaximizeConcave.
type SearchResult struct {
	Best       *big.Int // argmax
	BestProfit *big.Int // f(argmax), may be negative or zero
	Iterations int
}

// MaximizeConcave locates the maximizer of a concave profit function over
// [0, hi] by bounded ternary search. Terminates when the iteration cap is
// reached or successive improvement drops below epsilonBps of the candidate
// profit. Integer arithmetic throughout; on plateaus the smaller size wins,
// keeping position exposure conservative.
func MaximizeConcave(hi *big.Int, iterations int, epsilonBps int64, fn ProfitFn) SearchResult {
	lo := big.NewInt(0)
	if hi == nil || hi.Sign() <= 0 {
		return SearchResult{Best: big.NewInt(0), BestProfit: evalOrMin(fn, big.NewInt(0))}
	}
	hi = new(big.Int).Set(hi)

	best := big.NewInt(0)
	bestProfit := evalOrMin(fn, best)

	var done int
	for done = 0; done < iterations; done++ {
		span := new(big.Int).Sub(hi, lo)
		if span.Cmp(big.NewInt(3)) < 0 {
			break
		}

		third := new(big.Int).Quo(span, big.NewInt(3))
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)

		p1 := evalOrMin(fn, m1)
		p2 := evalOrMin(fn, m2)

		improved := false
		if p1.Cmp(bestProfit) > 0 {
			best, bestProfit = m1, p1
			improved = true
		}
		if p2.Cmp(bestProfit) > 0 {
			best, bestProfit = m2, p2
			improved = true
		}

		// <= keeps the left interval on ties, biasing toward smaller sizes.
		if p1.Cmp(p2) >= 0 {
			hi = m2
		} else {
			lo = m1
		}

		if improved && withinEpsilon(p1, p2, bestProfit, epsilonBps) {
			done++
			break
		}
	}

	// Sweep the final interval exactly when it is narrow enough; if the
	// iteration cap fired early the interval may still be wide, in which
	// case the best probe stands.
	if new(big.Int).Sub(hi, lo).Cmp(big.NewInt(64)) <= 0 {
		for f := new(big.Int).Set(lo); f.Cmp(hi) <= 0; f.Add(f, big.NewInt(1)) {
			p := evalOrMin(fn, f)
			if p.Cmp(bestProfit) > 0 {
				best = new(big.Int).Set(f)
				bestProfit = p
			}
		}
	}

	return SearchResult{Best: best, BestProfit: bestProfit, Iterations: done}
}

var negInf = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))

func evalOrMin(fn ProfitFn, f *big.Int) *big.Int {
	if p := fn(f); p != nil {
		return p
	}
	return negInf
}

// withinEpsilon reports whether the probe values are within epsilonBps of the
// best profit found, i.e. further refinement is not worth the iterations.
func withinEpsilon(p1, p2, best *big.Int, epsilonBps int64) bool {
	if best.Sign() <= 0 {
		return false
	}
	diff := new(big.Int).Sub(p1, p2)
	diff.Abs(diff)

	threshold := new(big.Int).Mul(best, big.NewInt(epsilonBps))
	threshold.Quo(threshold, big.NewInt(10_000))

	return diff.Cmp(threshold) <= 0
}
