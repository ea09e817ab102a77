package sae

import (
	"fmt"

	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"gonum.org/v1/gonum/blas/blas32"
)

// 分母が0(バッチの全行が同一)の場合に0除算を避けるための下限。
const baselineMSEFloor = 1e-12

func mse(a, t blas32.General) (float32, error) {
	if a.Rows != t.Rows || a.Cols != t.Cols {
		return 0.0, fmt.Errorf("形状(%d×%d)と(%d×%d)が一致しないため、MSEを計算できません。", a.Rows, a.Cols, t.Rows, t.Cols)
	}

	sum := float32(0.0)
	for r := 0; r < a.Rows; r++ {
		aOffset := r * a.Stride
		tOffset := r * t.Stride
		for c := 0; c < a.Cols; c++ {
			d := a.Data[aOffset+c] - t.Data[tOffset+c]
			sum += d * d
		}
	}
	return sum / float32(a.Rows*a.Cols), nil
}

/*
	baselineMSE はバッチ平均(列毎の平均を全行にブロードキャストしたもの)と
	tとの間のMSE。NormalizedMSEの分母で、tのみに依存する定数。
*/
func baselineMSE(t blas32.General) float32 {
	means := tensor2d.Sum0(t)
	blas32.Scal(1.0/float32(t.Rows), means)

	sum := float32(0.0)
	for r := 0; r < t.Rows; r++ {
		offset := r * t.Stride
		for c := 0; c < t.Cols; c++ {
			d := means.Data[c] - t.Data[offset+c]
			sum += d * d
		}
	}
	return sum / float32(t.Rows*t.Cols)
}

/*
	NormalizedMSE はスケール不変な再構成誤差。

		MSE(a, t) / MSE(tのバッチ平均をブロードキャストしたもの, t)

	この正規化により、分散の異なるデータ間で損失を比較でき、
	再構成がバッチ平均に退化した場合の基準値はちょうど1.0になる。
*/
func NormalizedMSE(a, t blas32.General) (float32, error) {
	num, err := mse(a, t)
	if err != nil {
		return 0.0, err
	}
	den := baselineMSE(t)
	if den < baselineMSEFloor {
		den = baselineMSEFloor
	}
	return num / den, nil
}

// Losses は1ステップ分の損失の内訳。TotalがRecons + multikCoef*MultiK + auxkCoef*AuxK。
type Losses struct {
	Total  float32
	Recons float32
	MultiK float32
	AuxK   float32
}
