package canary_test

import (
	"math"
	"testing"

	"github.com/sw965/canary"
)

func TestNumericalGradient(t *testing.T) {
	f := func(xs []float64) float64 {
		sum := 0.0
		for _, x := range xs {
			sum += x * x
		}
		return sum
	}

	xs := []float64{3.0, -2.0, 0.5}
	grad := canary.NumericalGradient(xs, f, 1e-6)

	// f = Σx²の勾配は2x。
	for i, x := range xs {
		if diff := math.Abs(grad[i] - 2*x); diff > 1e-4 {
			t.Errorf("勾配が%vになるべき所、%vになっています。", 2*x, grad[i])
		}
	}

	// 微分後に入力は元の値に戻っている。
	if xs[0] != 3.0 || xs[1] != -2.0 || xs[2] != 0.5 {
		t.Errorf("テスト失敗")
	}
}
