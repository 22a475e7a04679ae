// Package classify bins continuous surfaces into ordinal risk categories.
package classify

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Jenks assigns each value an ordinal class 1..k using Fisher-Jenks natural
// breaks (variance-minimizing). Classification is monotone: a larger value
// never receives a lower class. When the data has fewer distinct values than
// classes the classes collapse to one per distinct value instead of failing.
// Returns the class per value and the upper break of each class.
func Jenks(values []float64, k int) ([]int, []float64, error) {
	if len(values) == 0 {
		return nil, nil, eris.New("classify: no values")
	}
	if k < 2 {
		return nil, nil, eris.Errorf("classify: need at least 2 classes, got %d", k)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	distinct := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			distinct++
		}
	}
	if distinct < k {
		zap.L().Warn("classify: fewer distinct values than classes, collapsing",
			zap.Int("distinct", distinct),
			zap.Int("classes", k),
		)
		k = distinct
	}

	var breaks []float64
	if k == 1 {
		breaks = []float64{sorted[len(sorted)-1]}
	} else {
		breaks = fisherJenksBreaks(sorted, k)
	}

	classes := make([]int, len(values))
	for i, v := range values {
		c := sort.SearchFloat64s(breaks, v) + 1
		if c > k {
			c = k
		}
		classes[i] = c
	}
	return classes, breaks, nil
}

// fisherJenksBreaks runs the classic dynamic program over the sorted data and
// returns the upper bound of each class.
func fisherJenksBreaks(sorted []float64, k int) []float64 {
	n := len(sorted)

	// lower[i][j]: start index (1-based) of class j's optimal partition of the
	// first i values; variance[i][j]: its accumulated within-class sum of
	// squared deviations.
	lower := make([][]int, n+1)
	variance := make([][]float64, n+1)
	for i := range lower {
		lower[i] = make([]int, k+1)
		variance[i] = make([]float64, k+1)
	}

	for j := 1; j <= k; j++ {
		lower[1][j] = 1
		for i := 2; i <= n; i++ {
			variance[i][j] = -1 // unset
		}
	}

	for i := 2; i <= n; i++ {
		sum, sumSq := 0.0, 0.0
		w := 0.0
		for m := 1; m <= i; m++ {
			idx := i - m // 0-based index of the value entering the candidate class
			v := sorted[idx]
			w++
			sum += v
			sumSq += v * v
			ssd := sumSq - sum*sum/w

			if idx == 0 {
				variance[i][1] = ssd
				lower[i][1] = 1
				continue
			}
			for j := 2; j <= k; j++ {
				cand := variance[idx][j-1] + ssd
				if variance[idx][j-1] < 0 {
					continue
				}
				if variance[i][j] < 0 || cand < variance[i][j] {
					variance[i][j] = cand
					lower[i][j] = idx + 1
				}
			}
		}
	}

	breaks := make([]float64, k)
	breaks[k-1] = sorted[n-1]
	right := n
	for j := k; j >= 2; j-- {
		left := lower[right][j] // 1-based start of class j
		breaks[j-2] = sorted[left-2]
		right = left - 1
	}
	return breaks
}
