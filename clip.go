package charrnn

import (
	"math"

	"github.com/unixpickle/anydiff"
)

// ClipGlobalNorm rescales every vector in the gradient so
// that the L2 norm of their concatenation is at most
// maxNorm.
//
// It returns the norm before clipping.
func ClipGlobalNorm(g anydiff.Grad, maxNorm float64) float64 {
	var sumSquares float64
	for _, v := range g {
		sumSquares += float64(v.Dot(v).(float32))
	}
	norm := math.Sqrt(sumSquares)
	if norm <= maxNorm {
		return norm
	}
	scale := float32(maxNorm / norm)
	for _, v := range g {
		v.Scale(scale)
	}
	return norm
}
