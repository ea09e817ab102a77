package viz

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

/*
	ProjectPCA2D は埋め込み行列をPCAで2次元に射影する。
	可視化の散布図用の座標であり、モデルの学習には一切関与しない。
*/
func ProjectPCA2D(xs blas32.General) ([][2]float64, error) {
	n := xs.Rows
	dim := xs.Cols
	if n < 2 || dim < 2 {
		return nil, fmt.Errorf("PCAには2行2列以上の行列が必要です。(形状=%d×%d)", n, dim)
	}

	data := make([]float64, n*dim)
	for r := 0; r < n; r++ {
		offset := r * xs.Stride
		for c := 0; c < dim; c++ {
			data[r*dim+c] = float64(xs.Data[offset+c])
		}
	}
	x := mat.NewDense(n, dim, data)

	// 列毎に中心化
	for j := 0; j < dim; j++ {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			x.Set(i, j, x.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVDの分解に失敗しました。")
	}

	var v mat.Dense
	svd.VTo(&v)

	// 第1・第2主成分へ射影
	pc := v.Slice(0, dim, 0, 2)
	var projected mat.Dense
	projected.Mul(x, pc)

	points := make([][2]float64, n)
	for i := 0; i < n; i++ {
		points[i] = [2]float64{projected.At(i, 0), projected.At(i, 1)}
	}
	return points, nil
}
