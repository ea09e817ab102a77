package sae

import (
	"fmt"
	"sort"

	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"github.com/sw965/canary/blas32/vector"
	"github.com/sw965/omw/parallel"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// DecodeClamp用の再スパース化幅。
const clampWidth = 64

/*
	このファイルのメソッドは学習後の読み取り専用の計算。
	deadステップカウンターには触れないので、学習が止まっていれば
	複数のゴルーチンから同時に呼んでも安全。
*/

/*
	ComputeActivations は全入力に対する密な活性を返す(サンプル数×NDirs)。

	エンコーダー出力+バイアスにReLUを適用した値で、top-kによる制限はしない。
	スパース化された学習パスではなく、ニューロンの応答全体を調べる為のもの。
	pは並列数。
*/
func (m *Model) ComputeActivations(xs blas32.General, p int) (blas32.General, error) {
	if xs.Cols != m.DModel {
		return blas32.General{}, fmt.Errorf("入力の次元数(%d)がDModel(%d)と一致しません。", xs.Cols, m.DModel)
	}
	if p <= 0 {
		p = 1
	}

	acts := tensor2d.NewZeros(xs.Rows, m.NDirs)
	err := parallel.For(xs.Rows, p, func(workerId, idx int) error {
		xc := vector.Clone(tensor2d.RowView(xs, idx))
		blas32.Axpy(-1.0, m.Parameter.PreBias, xc)

		u := vector.Clone(m.Parameter.LatentBias)
		blas32.Gemv(blas.NoTrans, 1.0, m.Parameter.EncoderWeight, xc, 1.0, u)

		dst := acts.Data[idx*acts.Stride : idx*acts.Stride+m.NDirs]
		for i, e := range u.Data {
			if e > 0 {
				dst[i] = e
			}
		}
		return nil
	})
	if err != nil {
		return blas32.General{}, err
	}
	return acts, nil
}

/*
	TopKActivations はニューロン毎に、活性が大きい順に上位k個の
	サンプル番号とその活性値を返す。「ニューロンjを最も興奮させる例」を探す為のもの。
	戻り値はそれぞれ(NDirs×k)。
*/
func (m *Model) TopKActivations(xs blas32.General, k, p int) ([][]int, [][]float32, error) {
	acts, err := m.ComputeActivations(xs, p)
	if err != nil {
		return nil, nil, err
	}

	if k > acts.Rows {
		k = acts.Rows
	}

	indices := make([][]int, m.NDirs)
	values := make([][]float32, m.NDirs)
	col := make([]float32, acts.Rows)
	for j := 0; j < m.NDirs; j++ {
		for r := 0; r < acts.Rows; r++ {
			col[r] = acts.Data[r*acts.Stride+j]
		}

		idxs := make([]int, acts.Rows)
		for i := range idxs {
			idxs[i] = i
		}
		sort.Slice(idxs, func(a, b int) bool {
			ia, ib := idxs[a], idxs[b]
			if col[ia] != col[ib] {
				return col[ia] > col[ib]
			}
			return ia < ib
		})

		indices[j] = idxs[:k:k]
		vs := make([]float32, k)
		for i := 0; i < k; i++ {
			vs[i] = col[idxs[i]]
		}
		values[j] = vs
	}
	return indices, values, nil
}

func (m *Model) decodeVector(latents blas32.Vector) blas32.Vector {
	y := vector.Clone(m.Parameter.PreBias)
	blas32.Gemv(blas.NoTrans, 1.0, m.Parameter.DecoderWeight, latents, 1.0, y)
	return y
}

// DecodeSparse はスパース表現からフォワードパスを通さずに直接再構成する。
func (m *Model) DecodeSparse(s Sparse) (blas32.Vector, error) {
	latents, err := s.ToDense(m.NDirs)
	if err != nil {
		return blas32.Vector{}, err
	}
	return m.decodeVector(latents), nil
}

// DecodeAtK は任意の密な潜在ベクトルを指定のkで再スパース化してから再構成する。
func (m *Model) DecodeAtK(latents blas32.Vector, k int) (blas32.Vector, error) {
	if latents.N != m.NDirs {
		return blas32.Vector{}, fmt.Errorf("潜在ベクトルの長さ(%d)がNDirs(%d)と一致しません。", latents.N, m.NDirs)
	}
	rec := sparsifyTopK(latents.Data, k)
	dense, err := rec.ToDense(m.NDirs)
	if err != nil {
		return blas32.Vector{}, err
	}
	return m.decodeVector(dense), nil
}

/*
	DecodeClamp は固定幅(64)で再スパース化した後、ニューロン毎の係数clampを
	要素毎に掛けてから再構成する。「この特徴を強める/弱める」という
	対話的な探索に使う。
*/
func (m *Model) DecodeClamp(latents, clamp blas32.Vector) (blas32.Vector, error) {
	if latents.N != m.NDirs {
		return blas32.Vector{}, fmt.Errorf("潜在ベクトルの長さ(%d)がNDirs(%d)と一致しません。", latents.N, m.NDirs)
	}
	if clamp.N != m.NDirs {
		return blas32.Vector{}, fmt.Errorf("clampの長さ(%d)がNDirs(%d)と一致しません。", clamp.N, m.NDirs)
	}

	rec := sparsifyTopK(latents.Data, clampWidth)
	dense, err := rec.ToDense(m.NDirs)
	if err != nil {
		return blas32.Vector{}, err
	}
	for i := range dense.Data {
		dense.Data[i] *= clamp.Data[i]
	}
	return m.decodeVector(dense), nil
}
