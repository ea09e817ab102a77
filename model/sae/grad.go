package sae

import (
	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"github.com/sw965/canary/blas32/vector"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/chewxy/math32"
)

type GradBuffer struct {
	PreBias       blas32.Vector
	LatentBias    blas32.Vector
	EncoderWeight blas32.General
	DecoderWeight blas32.General
}

func (g *GradBuffer) NewZerosLike() GradBuffer {
	return GradBuffer{
		PreBias:       vector.NewZerosLike(g.PreBias),
		LatentBias:    vector.NewZerosLike(g.LatentBias),
		EncoderWeight: tensor2d.NewZerosLike(g.EncoderWeight),
		DecoderWeight: tensor2d.NewZerosLike(g.DecoderWeight),
	}
}

func (g GradBuffer) Clone() GradBuffer {
	return GradBuffer{
		PreBias:       vector.Clone(g.PreBias),
		LatentBias:    vector.Clone(g.LatentBias),
		EncoderWeight: tensor2d.Clone(g.EncoderWeight),
		DecoderWeight: tensor2d.Clone(g.DecoderWeight),
	}
}

func (g *GradBuffer) flats() [][]float32 {
	return [][]float32{
		g.PreBias.Data,
		g.LatentBias.Data,
		g.EncoderWeight.Data,
		g.DecoderWeight.Data,
	}
}

func (g *GradBuffer) Axpy(alpha float32, x *GradBuffer) {
	blas32.Axpy(alpha, x.PreBias, g.PreBias)
	blas32.Axpy(alpha, x.LatentBias, g.LatentBias)
	tensor2d.Axpy(alpha, x.EncoderWeight, g.EncoderWeight)
	tensor2d.Axpy(alpha, x.DecoderWeight, g.DecoderWeight)
}

func (g *GradBuffer) Scal(alpha float32) {
	blas32.Scal(alpha, g.PreBias)
	blas32.Scal(alpha, g.LatentBias)
	tensor2d.Scal(alpha, g.EncoderWeight)
	tensor2d.Scal(alpha, g.DecoderWeight)
}

// L2Norm は全パラメーターの勾配をまとめた大域ノルム。
func (g *GradBuffer) L2Norm() float32 {
	sum := float32(0.0)
	for _, data := range g.flats() {
		for _, e := range data {
			sum += e * e
		}
	}
	return math32.Sqrt(sum)
}

// ClipL2Norm は大域ノルムがmaxNormを超えていたら全体を縮小する。
// 適用した係数を返す。maxNorm <= 0なら何もしない。
func (g *GradBuffer) ClipL2Norm(maxNorm float32) float32 {
	if maxNorm <= 0.0 {
		return 1.0
	}
	norm := g.L2Norm()
	if norm <= maxNorm {
		return 1.0
	}
	c := maxNorm / norm
	g.Scal(c)
	return c
}

func (g *GradBuffer) IsFinite() bool {
	for _, data := range g.flats() {
		for _, e := range data {
			if math32.IsNaN(e) || math32.IsInf(e, 0) {
				return false
			}
		}
	}
	return true
}

/*
	ProjectDecoderColumns はDecoderWeightの勾配から、各列の
	現在方向に平行な成分を取り除く。

		grad[:,j] -= (decoder[:,j]・grad[:,j]) * decoder[:,j]

	単位ノルム制約の下では列方向に沿った勾配成分は再正規化で打ち消されるだけで、
	残すと実効的なステップ幅を歪める。オプティマイザーに渡す前に呼ぶ。
*/
func (g *GradBuffer) ProjectDecoderColumns(decoder blas32.General) {
	rows := decoder.Rows
	cols := decoder.Cols
	for j := 0; j < cols; j++ {
		proj := float32(0.0)
		for i := 0; i < rows; i++ {
			idx := i*decoder.Stride + j
			proj += decoder.Data[idx] * g.DecoderWeight.Data[i*g.DecoderWeight.Stride+j]
		}
		for i := 0; i < rows; i++ {
			g.DecoderWeight.Data[i*g.DecoderWeight.Stride+j] -= proj * decoder.Data[i*decoder.Stride+j]
		}
	}
}
