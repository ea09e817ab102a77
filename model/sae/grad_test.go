package sae_test

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/sw965/canary"
	"github.com/sw965/canary/model/sae"
	"gonum.org/v1/gonum/blas/blas32"
)

/*
	解析的な勾配を中心差分の数値勾配と突き合わせる。

	前活性の同値や符号の反転で選択が揺れると数値微分が壊れるので、
	手計算のモデルとバッチには十分なマージンを持たせてある
	(各行のtop-1のマージンは最小でも0.62、ReLU境界までは最小でも0.07)。
*/
func TestBackPropagateGradient(t *testing.T) {
	model := newManualModel(t, 1, 0, 128, 0)
	batch := newManualBatch()

	multikCoef := float32(0.5)

	_, grad, err := model.BackPropagate(batch, 0.0, multikCoef)
	if err != nil {
		panic(err)
	}

	lossOf := func(_ []float32) float32 {
		losses, _, err := model.BackPropagate(batch, 0.0, multikCoef)
		if err != nil {
			panic(err)
		}
		return losses.Total
	}

	p := &model.Parameter
	names := []string{"PreBias", "LatentBias", "EncoderWeight", "DecoderWeight"}
	params := [][]float32{
		p.PreBias.Data,
		p.LatentBias.Data,
		p.EncoderWeight.Data,
		p.DecoderWeight.Data,
	}
	analytics := [][]float32{
		grad.PreBias.Data,
		grad.LatentBias.Data,
		grad.EncoderWeight.Data,
		grad.DecoderWeight.Data,
	}

	h := float32(0.001)
	tolerance := float32(0.005)
	for i := range params {
		numerical := canary.NumericalGradient(params[i], lossOf, h)
		for j := range numerical {
			diff := math32.Abs(numerical[j] - analytics[i][j])
			if diff > tolerance {
				t.Errorf("%sの勾配が一致しません。(j=%d, 解析=%v, 数値=%v)", names[i], j, analytics[i][j], numerical[j])
			}
		}
	}
}

// 死んだニューロンには補助損失経由でのみ勾配が届く事を確かめる。
func TestAuxKGradientRevivesDead(t *testing.T) {
	model := newManualModel(t, 1, 2, 0, 1)

	// エンコーダーを0にして前活性をLatentBiasだけで決めると、
	// ニューロン0が常に勝ち、ニューロン3は一度も発火しない。
	for i := range model.Parameter.EncoderWeight.Data {
		model.Parameter.EncoderWeight.Data[i] = 0
	}
	copy(model.Parameter.LatentBias.Data, []float32{10, 0, 0, 1})

	batch := newManualBatch()
	for step := 0; step < 2; step++ {
		if _, _, err := model.Forward(batch); err != nil {
			panic(err)
		}
	}

	encoderRowNorm := func(grad *sae.GradBuffer, row int) float32 {
		w := grad.EncoderWeight
		v := blas32.Vector{N: w.Cols, Inc: 1, Data: w.Data[row*w.Stride : row*w.Stride+w.Cols]}
		return blas32.Nrm2(v)
	}

	// auxkCoef=0なら、選択されないニューロン3に勾配は流れない。
	_, grad, err := model.BackPropagate(batch, 0.0, 0.0)
	if err != nil {
		panic(err)
	}
	if norm := encoderRowNorm(&grad, 3); norm != 0 {
		t.Fatalf("補助損失無しで死んだニューロンに勾配が流れています。(norm=%v)", norm)
	}

	// auxkCoef>0なら、死んだニューロン3が補助再構成に選ばれて勾配を受け取る。
	_, grad, err = model.BackPropagate(batch, 1.0, 0.0)
	if err != nil {
		panic(err)
	}
	if norm := encoderRowNorm(&grad, 3); norm == 0 {
		t.Errorf("補助損失経由の勾配が死んだニューロンに届いていません。")
	}
}
