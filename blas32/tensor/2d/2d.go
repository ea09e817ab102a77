package tensor2d

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(rows, cols int) blas32.General {
	return blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   make([]float32, rows*cols),
	}
}

func NewZerosLike(gen blas32.General) blas32.General {
	return NewZeros(gen.Rows, gen.Cols)
}

// NewGlorot はXavier(Glorot)の一様分布で初期化した行列を生成する。
// fanIn/fanOutは行数・列数から取る。
func NewGlorot(rows, cols int, rng *rand.Rand) blas32.General {
	gen := NewZeros(rows, cols)
	limit := math.Sqrt(6.0 / float64(rows+cols))
	for i := range gen.Data {
		gen.Data[i] = float32((rng.Float64()*2.0 - 1.0) * limit)
	}
	return gen
}

func N(gen blas32.General) int {
	return gen.Rows * gen.Cols
}

func Clone(gen blas32.General) blas32.General {
	return blas32.General{
		Rows:   gen.Rows,
		Cols:   gen.Cols,
		Stride: gen.Stride,
		Data:   slices.Clone(gen.Data),
	}
}

func At(gen blas32.General, row, col int) int {
	return row*gen.Stride + col
}

func ToVector(gen blas32.General) blas32.Vector {
	return blas32.Vector{
		N:    N(gen),
		Inc:  1,
		Data: gen.Data,
	}
}

// RowView は第row行をコピーせずにVectorとして返す。
func RowView(gen blas32.General, row int) blas32.Vector {
	offset := row * gen.Stride
	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: gen.Data[offset : offset+gen.Cols],
	}
}

func Scal(alpha float32, gen blas32.General) {
	vec := ToVector(gen)
	blas32.Scal(alpha, vec)
}

func Axpy(alpha float32, x, y blas32.General) {
	xv := ToVector(x)
	yv := ToVector(y)
	blas32.Axpy(alpha, xv, yv)
}

func Sum0(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Cols)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			sums[c] += gen.Data[offset+c]
		}
	}

	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: sums,
	}
}

func Transpose(gen blas32.General) blas32.General {
	t := NewZeros(gen.Cols, gen.Rows)
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < t.Cols; j++ {
			t.Data[At(t, i, j)] = gen.Data[At(gen, j, i)]
		}
	}
	return t
}

func Dot(tA, tB blas.Transpose, a, b blas32.General) blas32.General {
	rows := a.Rows
	if tA == blas.Trans {
		rows = a.Cols
	}
	cols := b.Cols
	if tB == blas.Trans {
		cols = b.Rows
	}

	y := NewZeros(rows, cols)
	blas32.Gemm(tA, tB, 1.0, a, b, 0.0, y)
	return y
}

// AddVectorToRows は各行にvecを加算する。ブロードキャスト加算。
func AddVectorToRows(gen blas32.General, vec blas32.Vector) {
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			gen.Data[offset+c] += vec.Data[c]
		}
	}
}

func SubVectorFromRows(gen blas32.General, vec blas32.Vector) {
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			gen.Data[offset+c] -= vec.Data[c]
		}
	}
}

// GatherRows はidxsで指定した行を集めて新しい行列を作る。ミニバッチの生成に使う。
func GatherRows(gen blas32.General, idxs []int) blas32.General {
	y := NewZeros(len(idxs), gen.Cols)
	for i, idx := range idxs {
		src := gen.Data[idx*gen.Stride : idx*gen.Stride+gen.Cols]
		copy(y.Data[i*y.Stride:i*y.Stride+y.Cols], src)
	}
	return y
}

func ColL2Norms(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Cols)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			e := gen.Data[offset+c]
			sums[c] += e * e
		}
	}
	for c := range sums {
		sums[c] = math32.Sqrt(sums[c])
	}
	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: sums,
	}
}

// NormalizeCols は各列をL2ノルムで割って単位ベクトルにする。
func NormalizeCols(gen blas32.General) {
	norms := ColL2Norms(gen)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		for c := 0; c < gen.Cols; c++ {
			gen.Data[offset+c] /= norms.Data[c]
		}
	}
}

// ColMedians は列毎の中央値を返す。
func ColMedians(gen blas32.General) blas32.Vector {
	medians := make([]float32, gen.Cols)
	col := make([]float32, gen.Rows)
	for c := 0; c < gen.Cols; c++ {
		for r := 0; r < gen.Rows; r++ {
			col[r] = gen.Data[At(gen, r, c)]
		}
		sort.Slice(col, func(i, j int) bool { return col[i] < col[j] })
		n := len(col)
		if n%2 == 1 {
			medians[c] = col[n/2]
		} else {
			medians[c] = (col[n/2-1] + col[n/2]) / 2.0
		}
	}
	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: medians,
	}
}

func IsFinite(gen blas32.General) bool {
	for _, e := range gen.Data {
		if math32.IsNaN(e) || math32.IsInf(e, 0) {
			return false
		}
	}
	return true
}
