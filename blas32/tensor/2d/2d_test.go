package tensor2d_test

import (
	"testing"

	"github.com/chewxy/math32"
	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func TestTranspose(t *testing.T) {
	a := blas32.General{
		Rows:   2,
		Cols:   3,
		Stride: 3,
		Data: []float32{
			1, 2, 3,
			4, 5, 6,
		},
	}

	at := tensor2d.Transpose(a)
	expected := []float32{
		1, 4,
		2, 5,
		3, 6,
	}

	if at.Rows != 3 || at.Cols != 2 {
		t.Fatalf("転置後の形状が(3×2)ではありません。(%d×%d)", at.Rows, at.Cols)
	}
	for i := range expected {
		if at.Data[i] != expected[i] {
			t.Errorf("テスト失敗")
			break
		}
	}
}

func TestDot(t *testing.T) {
	a := blas32.General{
		Rows:   2,
		Cols:   3,
		Stride: 3,
		Data: []float32{
			1, 2, 3,
			4, 5, 6,
		},
	}
	b := blas32.General{
		Rows:   2,
		Cols:   3,
		Stride: 3,
		Data: []float32{
			7, 8, 9,
			10, 11, 12,
		},
	}

	// a・bᵀ (2×2)
	y := tensor2d.Dot(blas.NoTrans, blas.Trans, a, b)
	if y.Rows != 2 || y.Cols != 2 {
		t.Fatalf("a・bᵀの形状が(2×2)ではありません。(%d×%d)", y.Rows, y.Cols)
	}
	expected := []float32{
		50, 68,
		122, 167,
	}
	for i := range expected {
		if y.Data[i] != expected[i] {
			t.Errorf("a・bᵀが%vになるべき所、%vになっています。", expected, y.Data)
			break
		}
	}

	// aᵀ・b (3×3)
	y = tensor2d.Dot(blas.Trans, blas.NoTrans, a, b)
	if y.Rows != 3 || y.Cols != 3 {
		t.Fatalf("aᵀ・bの形状が(3×3)ではありません。(%d×%d)", y.Rows, y.Cols)
	}
	expected = []float32{
		47, 52, 57,
		64, 71, 78,
		81, 90, 99,
	}
	for i := range expected {
		if y.Data[i] != expected[i] {
			t.Errorf("aᵀ・bが%vになるべき所、%vになっています。", expected, y.Data)
			break
		}
	}
}

func TestSum0(t *testing.T) {
	a := blas32.General{
		Rows:   3,
		Cols:   2,
		Stride: 2,
		Data: []float32{
			1, -2,
			3, 4,
			5, -6,
		},
	}

	sums := tensor2d.Sum0(a)
	expected := []float32{9, -4}
	for i := range expected {
		if sums.Data[i] != expected[i] {
			t.Errorf("列和が%vになるべき所、%vになっています。", expected, sums.Data)
			break
		}
	}
}

func TestGatherRows(t *testing.T) {
	a := blas32.General{
		Rows:   3,
		Cols:   2,
		Stride: 2,
		Data: []float32{
			1, 2,
			3, 4,
			5, 6,
		},
	}

	y := tensor2d.GatherRows(a, []int{2, 0, 2})
	expected := []float32{
		5, 6,
		1, 2,
		5, 6,
	}
	if y.Rows != 3 || y.Cols != 2 {
		t.Fatalf("テスト失敗")
	}
	for i := range expected {
		if y.Data[i] != expected[i] {
			t.Errorf("テスト失敗")
			break
		}
	}
}

func TestColMedians(t *testing.T) {
	// 奇数行: 中央の値そのもの。
	odd := blas32.General{
		Rows:   3,
		Cols:   2,
		Stride: 2,
		Data: []float32{
			3, 10,
			1, 30,
			2, 20,
		},
	}
	medians := tensor2d.ColMedians(odd)
	if medians.Data[0] != 2 || medians.Data[1] != 20 {
		t.Errorf("奇数行の中央値が期待と異なります。(%v)", medians.Data)
	}

	// 偶数行: 中央2値の平均。
	even := blas32.General{
		Rows:   4,
		Cols:   1,
		Stride: 1,
		Data:   []float32{4, 1, 3, 2},
	}
	medians = tensor2d.ColMedians(even)
	if medians.Data[0] != 2.5 {
		t.Errorf("偶数行の中央値が2.5になるべき所、%vになっています。", medians.Data[0])
	}
}

func TestNormalizeCols(t *testing.T) {
	a := blas32.General{
		Rows:   2,
		Cols:   2,
		Stride: 2,
		Data: []float32{
			3, 1,
			4, 1,
		},
	}

	tensor2d.NormalizeCols(a)
	norms := tensor2d.ColL2Norms(a)
	for j, norm := range norms.Data {
		if math32.Abs(norm-1.0) > 1e-6 {
			t.Errorf("正規化後の第%d列のノルムが1ではありません。(norm=%v)", j, norm)
		}
	}
	if math32.Abs(a.Data[0]-0.6) > 1e-6 || math32.Abs(a.Data[2]-0.8) > 1e-6 {
		t.Errorf("テスト失敗")
	}
}

func TestAddSubVectorRows(t *testing.T) {
	a := tensor2d.NewZeros(2, 3)
	vec := blas32.Vector{N: 3, Inc: 1, Data: []float32{1, 2, 3}}

	tensor2d.AddVectorToRows(a, vec)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			if a.Data[tensor2d.At(a, r, c)] != vec.Data[c] {
				t.Errorf("テスト失敗")
			}
		}
	}

	tensor2d.SubVectorFromRows(a, vec)
	for _, e := range a.Data {
		if e != 0 {
			t.Errorf("テスト失敗")
			break
		}
	}
}

func TestIsFinite(t *testing.T) {
	a := tensor2d.NewZeros(2, 2)
	if !tensor2d.IsFinite(a) {
		t.Errorf("テスト失敗")
	}
	a.Data[3] = math32.Inf(1)
	if tensor2d.IsFinite(a) {
		t.Errorf("テスト失敗")
	}
}
