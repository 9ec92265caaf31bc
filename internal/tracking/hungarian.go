package tracking

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// HungarianAssign solves the rectangular assignment problem for an n×m cost
// matrix using the Kuhn–Munkres algorithm with potentials (Jonker–Volgenant
// variant) in O(max(n,m)³) time.
//
// The matrix is squared up by padding the missing rows or columns with pad,
// which should exceed every real cost. It returns assignments[i] = column
// assigned to row i, or NoMatch when row i was paired with a padding column.
// Callers reject costly assignments themselves; the solver always returns a
// complete assignment of the square problem.
func HungarianAssign(cost mat.Matrix, pad float64) []int {
	n, m := cost.Dims()
	if n == 0 {
		return nil
	}
	if m == 0 {
		result := make([]int, n)
		for i := range result {
			result[i] = NoMatch
		}
		return result
	}

	dim := max(n, m)

	c := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c.Set(i, j, cost.At(i, j))
			} else {
				c.Set(i, j, pad)
			}
		}
	}

	// 1-indexed internally; index 0 is the virtual column.
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path.
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	result := make([]int, n)
	for i := range result {
		result[i] = NoMatch
	}
	for j := 1; j <= m; j++ {
		if row := p[j] - 1; row >= 0 && row < n {
			result[row] = j - 1
		}
	}
	return result
}

// hungarianPad returns a padding cost strictly above every entry of cost and
// above a finite ceiling.
func hungarianPad(cost mat.Matrix, ceiling float64) float64 {
	pad := mat.Max(cost)
	if !math.IsInf(ceiling, 1) && ceiling > pad {
		pad = ceiling
	}
	return pad + 1
}
