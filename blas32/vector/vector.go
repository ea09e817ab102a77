package vector

import (
	"slices"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(n int) blas32.Vector {
	return blas32.Vector{
		N:    n,
		Inc:  1,
		Data: make([]float32, n),
	}
}

func NewZerosLike(vec blas32.Vector) blas32.Vector {
	return NewZeros(vec.N)
}

func Clone(vec blas32.Vector) blas32.Vector {
	return blas32.Vector{
		N:    vec.N,
		Inc:  vec.Inc,
		Data: slices.Clone(vec.Data),
	}
}

func L2Norm(vec blas32.Vector) float32 {
	sum := float32(0.0)
	for _, e := range vec.Data {
		sum += e * e
	}
	return math32.Sqrt(sum)
}

func ReLU(vec blas32.Vector) blas32.Vector {
	y := NewZerosLike(vec)
	for i, e := range vec.Data {
		if e > 0 {
			y.Data[i] = e
		}
	}
	return y
}

func IsFinite(vec blas32.Vector) bool {
	for _, e := range vec.Data {
		if math32.IsNaN(e) || math32.IsInf(e, 0) {
			return false
		}
	}
	return true
}
