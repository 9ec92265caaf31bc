package tracking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Dissimilarity scores how different two mean waveform templates are.
//
// Both templates are shaped (channels, samples). They are scaled by the larger
// of their two peak absolute amplitudes so units of different size remain
// comparable. For every sample the Euclidean norm of the scaled difference is
// taken across channels, and the result is the mean of those norms over
// samples. Identical templates score 0; there is no upper bound.
//
// The result does not depend on argument order.
func Dissimilarity(a, b mat.Matrix) (float64, error) {
	channels, samples := a.Dims()
	bc, bs := b.Dims()
	if channels != bc || samples != bs {
		return 0, fmt.Errorf("%w: (%d, %d) vs (%d, %d)", ErrShapeMismatch, channels, samples, bc, bs)
	}
	if channels == 0 || samples == 0 {
		return 0, nil
	}

	scale := math.Max(peakAbs(a), peakAbs(b))
	if scale == 0 {
		return 0, nil
	}

	var diff mat.Dense
	diff.Sub(a, b)
	diff.Scale(1/scale, &diff)

	norms := make([]float64, samples)
	col := make([]float64, channels)
	for s := 0; s < samples; s++ {
		mat.Col(col, s, &diff)
		norms[s] = floats.Norm(col, 2)
	}
	return stat.Mean(norms, nil), nil
}

// peakAbs returns the largest absolute element of m.
func peakAbs(m mat.Matrix) float64 {
	return math.Max(math.Abs(mat.Max(m)), math.Abs(mat.Min(m)))
}
