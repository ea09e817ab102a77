package sae

import (
	"fmt"
	"sort"

	"github.com/sw965/canary/blas32/vector"
	"gonum.org/v1/gonum/blas/blas32"
)

/*
	Sparse は1サンプル分の潜在状態のコンパクトな表現。
	IndicesとValuesは平行なスライスで、Valuesは非負。
*/
type Sparse struct {
	Indices []int
	Values  []float32
}

func (s Sparse) ToDense(n int) (blas32.Vector, error) {
	dense := vector.NewZeros(n)
	if len(s.Indices) != len(s.Values) {
		return blas32.Vector{}, fmt.Errorf("IndicesとValuesの長さが一致しません。")
	}
	for i, idx := range s.Indices {
		if idx < 0 || idx >= n {
			return blas32.Vector{}, fmt.Errorf("ニューロン番号(%d)が範囲[0, %d)外です。", idx, n)
		}
		dense.Data[idx] = s.Values[i]
	}
	return dense, nil
}

/*
	topKIndices は上位k個の要素の添字を値の降順で返す。
	k > len(pre) の場合は len(pre) 個を返す。
	同値の場合は添字が小さい方が勝つ(決定的なタイブレーク)。
	どのニューロンが「発火した」と記録されるかに関わるので、この規則は変えない事。
*/
func topKIndices(pre []float32, k int) []int {
	n := len(pre)
	if k > n {
		k = n
	}

	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	sort.Slice(idxs, func(a, b int) bool {
		ia, ib := idxs[a], idxs[b]
		if pre[ia] != pre[ib] {
			return pre[ia] > pre[ib]
		}
		return ia < ib
	})
	return idxs[:k]
}

// sparsifyTopK は上位k個を選択し、負の値を0に切り上げたSparseを返す。
// 選択されなかった要素は存在しない(=0)ものとして扱う。
func sparsifyTopK(pre []float32, k int) Sparse {
	idxs := topKIndices(pre, k)
	values := make([]float32, len(idxs))
	for i, idx := range idxs {
		v := pre[idx]
		if v > 0 {
			values[i] = v
		}
	}
	return Sparse{Indices: idxs, Values: values}
}

// scatter はSparseを全長ベクトルdstに書き込む。dstの他の要素は触らない。
func scatter(dst []float32, s Sparse) {
	for i, idx := range s.Indices {
		dst[idx] = s.Values[i]
	}
}
