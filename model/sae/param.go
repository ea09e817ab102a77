package sae

import (
	"fmt"
	"os"
	"path/filepath"

	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"github.com/sw965/canary/blas32/vector"
	omwjson "github.com/sw965/omw/encoding/jsonx"
	"gonum.org/v1/gonum/blas/blas32"
)

/*
	Parameter はスパースオートエンコーダーの学習対象パラメーター。

	EncoderWeightは(nDirs×dModel)、DecoderWeightは(dModel×nDirs)。
	DecoderWeightの各列が1つの潜在方向であり、勾配ステップの途中を除いて
	常にL2ノルムが1になるように保たれる。
	deadステップカウンターは学習状態であり、ここには含めない。
*/
type Parameter struct {
	PreBias       blas32.Vector
	LatentBias    blas32.Vector
	EncoderWeight blas32.General
	DecoderWeight blas32.General
}

func NewParameter(nDirs, dModel int) Parameter {
	return Parameter{
		PreBias:       vector.NewZeros(dModel),
		LatentBias:    vector.NewZeros(nDirs),
		EncoderWeight: tensor2d.NewZeros(nDirs, dModel),
		DecoderWeight: tensor2d.NewZeros(dModel, nDirs),
	}
}

func (p *Parameter) Clone() Parameter {
	return Parameter{
		PreBias:       vector.Clone(p.PreBias),
		LatentBias:    vector.Clone(p.LatentBias),
		EncoderWeight: tensor2d.Clone(p.EncoderWeight),
		DecoderWeight: tensor2d.Clone(p.DecoderWeight),
	}
}

func (p *Parameter) NewGradZerosLike() GradBuffer {
	return GradBuffer{
		PreBias:       vector.NewZerosLike(p.PreBias),
		LatentBias:    vector.NewZerosLike(p.LatentBias),
		EncoderWeight: tensor2d.NewZerosLike(p.EncoderWeight),
		DecoderWeight: tensor2d.NewZerosLike(p.DecoderWeight),
	}
}

func (p *Parameter) AxpyGrad(alpha float32, grad *GradBuffer) {
	blas32.Axpy(alpha, grad.PreBias, p.PreBias)
	blas32.Axpy(alpha, grad.LatentBias, p.LatentBias)
	tensor2d.Axpy(alpha, grad.EncoderWeight, p.EncoderWeight)
	tensor2d.Axpy(alpha, grad.DecoderWeight, p.DecoderWeight)
}

// Validate は形状が(nDirs, dModel)と整合するかを確認する。
// チェックポイントの読み込み時に、黙って切り詰めるのではなく、ここで失敗させる。
func (p *Parameter) Validate(nDirs, dModel int) error {
	if p.PreBias.N != dModel {
		return fmt.Errorf("PreBiasの長さ(%d)がdModel(%d)と一致しません。", p.PreBias.N, dModel)
	}
	if p.LatentBias.N != nDirs {
		return fmt.Errorf("LatentBiasの長さ(%d)がnDirs(%d)と一致しません。", p.LatentBias.N, nDirs)
	}
	if p.EncoderWeight.Rows != nDirs || p.EncoderWeight.Cols != dModel {
		return fmt.Errorf("EncoderWeightの形状(%d×%d)が(nDirs=%d × dModel=%d)と一致しません。",
			p.EncoderWeight.Rows, p.EncoderWeight.Cols, nDirs, dModel)
	}
	if p.DecoderWeight.Rows != dModel || p.DecoderWeight.Cols != nDirs {
		return fmt.Errorf("DecoderWeightの形状(%d×%d)が(dModel=%d × nDirs=%d)と一致しません。",
			p.DecoderWeight.Rows, p.DecoderWeight.Cols, dModel, nDirs)
	}
	return nil
}

func LoadParameterJSON(path string, nDirs, dModel int) (Parameter, error) {
	param, err := omwjson.Load[Parameter](path)
	if err != nil {
		return Parameter{}, err
	}
	if err := param.Validate(nDirs, dModel); err != nil {
		return Parameter{}, fmt.Errorf("%s の読み込みに失敗しました: %w", path, err)
	}
	return param, nil
}

// WriteJSON は一時ファイルに書いてからrenameする。
// 書き込みが中断されても、既存のチェックポイントを壊さない。
func (p *Parameter) WriteJSON(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := omwjson.Save[Parameter](*p, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
