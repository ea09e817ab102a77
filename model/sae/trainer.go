package sae

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/chewxy/math32"
	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"gonum.org/v1/gonum/blas/blas32"
)

// NonFinitePolicy は損失・勾配に非有限値(NaN/Inf)が出た時の扱い。
// 参照実装は無防備だったが、単位ノルム不変条件を黙って壊すよりは
// 検出して止める方が良いので、既定はAbort。
type NonFinitePolicy int

const (
	// NonFiniteAbort は学習をエラーで打ち切る。
	NonFiniteAbort NonFinitePolicy = iota

	// NonFiniteSkipStep はそのステップの更新を捨てて続行する。
	NonFiniteSkipStep

	// NonFiniteIgnore は何も確認しない。参照実装と同じ挙動。
	NonFiniteIgnore
)

/*
	Trainer はエポック/バッチの反復、オプティマイザーのステップ、
	チェックポイント、deadニューロンの報告を担う。

	オプティマイザーのモーメントとdeadステップカウンターが
	ステップ間の状態を持つので、バッチは厳密に逐次処理する。
	同じモデルに対して複数のバッチを同時に流してはならない。
*/
type Trainer struct {
	Model     *Model
	Optimizer *Adam

	BatchSize  int
	Epochs     int
	AuxKCoef   float32
	MultiKCoef float32

	// ClipGradNorm は勾配の大域ノルムの上限。0以下なら適用しない。
	ClipGradNorm float32

	// CheckpointInterval エポック毎にパラメーターを保存する。0なら既定の10。
	CheckpointInterval int
	SaveDir            string

	NonFinitePolicy NonFinitePolicy
	Verbose         bool
}

func NewTrainer(model *Model, saveDir string) *Trainer {
	return &Trainer{
		Model:              model,
		Optimizer:          NewAdam(&model.Parameter),
		BatchSize:          128,
		Epochs:             50,
		AuxKCoef:           1.0 / 32.0,
		MultiKCoef:         0.0,
		ClipGradNorm:       1.0,
		CheckpointInterval: 10,
		SaveDir:            saveDir,
		Verbose:            true,
	}
}

func (t *Trainer) checkpointPath(name string) string {
	return filepath.Join(t.SaveDir, name)
}

/*
	Train はxs(サンプル数×DModel)でモデルを学習する。

	バッチ毎に フォワード → 損失 → 逆伝播 → デコーダー勾配の射影 →
	勾配クリッピング → Adam → デコーダー列の再正規化 の順で処理する。
	射影はオプティマイザーが勾配を消費する前、再正規化はステップ直後。

	ctxのキャンセルは次のバッチ境界で反映される。バッチ途中の中断はしない。
*/
func (t *Trainer) Train(ctx context.Context, xs blas32.General, rng *rand.Rand) error {
	if t.Model == nil {
		return fmt.Errorf("Trainer.Modelがnilです。")
	}
	if xs.Cols != t.Model.DModel {
		return fmt.Errorf("データの次元数(%d)がDModel(%d)と一致しません。", xs.Cols, t.Model.DModel)
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("BatchSizeは正の値でなければなりません。(BatchSize=%d)", t.BatchSize)
	}
	if t.Optimizer == nil {
		t.Optimizer = NewAdam(&t.Model.Parameter)
	}

	interval := t.CheckpointInterval
	if interval <= 0 {
		interval = 10
	}

	dataN := xs.Rows
	numBatches := (dataN + t.BatchSize - 1) / t.BatchSize

	if t.Verbose {
		fmt.Printf("%dエポック、1エポックあたり%dバッチで学習します。\n", t.Epochs, numBatches)
	}

	for epoch := 0; epoch < t.Epochs; epoch++ {
		perm := rng.Perm(dataN)
		totalLoss := float32(0.0)
		steps := 0

		for start := 0; start < dataN; start += t.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}

			end := start + t.BatchSize
			if end > dataN {
				end = dataN
			}
			batch := tensor2d.GatherRows(xs, perm[start:end])

			losses, grad, err := t.Model.BackPropagate(batch, t.AuxKCoef, t.MultiKCoef)
			if err != nil {
				return err
			}

			if t.NonFinitePolicy != NonFiniteIgnore {
				if math32.IsNaN(losses.Total) || math32.IsInf(losses.Total, 0) || !grad.IsFinite() {
					if t.NonFinitePolicy == NonFiniteAbort {
						return fmt.Errorf("エポック%d ステップ%dで損失または勾配に非有限値が発生しました。", epoch+1, steps+1)
					}
					// NonFiniteSkipStep: このステップの更新を捨てる。
					continue
				}
			}

			grad.ProjectDecoderColumns(t.Model.Parameter.DecoderWeight)
			grad.ClipL2Norm(t.ClipGradNorm)
			t.Optimizer.Optimize(&t.Model.Parameter, &grad)
			t.Model.NormalizeDecoderColumns()

			totalLoss += losses.Total
			steps++
		}

		avgLoss := float32(0.0)
		if steps > 0 {
			avgLoss = totalLoss / float32(steps)
		}
		deadProp := float32(t.Model.CountDead(numBatches)) / float32(t.Model.NDirs)
		if t.Verbose {
			fmt.Printf("エポック%d, 平均損失: %.4f, deadニューロンの割合: %.4f\n", epoch+1, avgLoss, deadProp)
		}

		if (epoch+1)%interval == 0 || epoch == t.Epochs-1 {
			path := t.checkpointPath(fmt.Sprintf("epoch_%d.json", epoch+1))
			if err := t.Model.Parameter.WriteJSON(path); err != nil {
				return err
			}
			if t.Verbose {
				fmt.Printf("モデルを%sに保存しました。\n", path)
			}
		}
	}

	return t.Model.Parameter.WriteJSON(t.checkpointPath("epoch_end.json"))
}
