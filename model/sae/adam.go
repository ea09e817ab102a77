package sae

import (
	"github.com/chewxy/math32"
)

type Adam struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32

	iter int
	m    GradBuffer
	v    GradBuffer
}

// NewAdam は1次・2次モーメントのバッファをparamと同じ形状で0初期化して返す。
func NewAdam(param *Parameter) *Adam {
	return &Adam{
		LearningRate: 0.0001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		iter:         0,
		m:            param.NewGradZerosLike(),
		v:            param.NewGradZerosLike(),
	}
}

// Optimize はAdamの更新則でparamをインプレースに更新する。
// モーメントはステップ間で引き継がれるので、同じモデルに対して逐次的に呼ぶ事。
func (a *Adam) Optimize(param *Parameter, grad *GradBuffer) {
	a.iter++
	beta1, beta2 := a.Beta1, a.Beta2
	lrt := a.LearningRate *
		math32.Sqrt(1.0-math32.Pow(beta2, float32(a.iter))) /
		(1.0 - math32.Pow(beta1, float32(a.iter)))

	paramFlats := [][]float32{
		param.PreBias.Data,
		param.LatentBias.Data,
		param.EncoderWeight.Data,
		param.DecoderWeight.Data,
	}
	gradFlats := grad.flats()
	mFlats := a.m.flats()
	vFlats := a.v.flats()

	for i := range paramFlats {
		w := paramFlats[i]
		gs := gradFlats[i]
		ms := mFlats[i]
		vs := vFlats[i]
		for j, g := range gs {
			ms[j] += (1.0 - beta1) * (g - ms[j])
			vs[j] += (1.0 - beta2) * (g*g - vs[j])
			w[j] -= lrt * ms[j] / (math32.Sqrt(vs[j]) + a.Epsilon)
		}
	}
}
