package canary

import (
	"golang.org/x/exp/constraints"
)

// NumericalGradient は中心差分による数値微分。
// 解析的に導出した勾配の検算に使う。hは微小変化量で、
// float32のパラメーターに対しては1e-3程度を推奨する。
func NumericalGradient[X constraints.Float](xs []X, f func([]X) X, h X) []X {
	grad := make([]X, len(xs))
	for i := range xs {
		tmp := xs[i]

		xs[i] = tmp + h
		y1 := f(xs)

		xs[i] = tmp - h
		y2 := f(xs)

		grad[i] = (y1 - y2) / (2 * h)
		xs[i] = tmp
	}
	return grad
}
