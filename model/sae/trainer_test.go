package sae_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"github.com/sw965/canary/model/sae"
	"gonum.org/v1/gonum/blas/blas32"
)

func newTrainData(rows, cols int, rng *rand.Rand) blas32.General {
	data := tensor2d.NewZeros(rows, cols)
	for i := range data.Data {
		data.Data[i] = float32(rng.NormFloat64())
	}
	return data
}

func TestTrain(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	model, err := sae.New(sae.DefaultConfig(12, 6, 3, 6))
	if err != nil {
		panic(err)
	}

	data := newTrainData(64, 6, rng)
	if err := model.InitFromData(data, rng); err != nil {
		panic(err)
	}

	saveDir := t.TempDir()
	trainer := sae.NewTrainer(model, saveDir)
	trainer.BatchSize = 16
	trainer.Epochs = 3
	trainer.MultiKCoef = 0.1
	trainer.CheckpointInterval = 2
	trainer.Verbose = false

	if err := trainer.Train(context.Background(), data, rng); err != nil {
		panic(err)
	}

	// 学習後もデコーダーの各列は単位ノルムを保つ。
	norms := tensor2d.ColL2Norms(model.Parameter.DecoderWeight)
	for j, norm := range norms.Data {
		if math32.Abs(norm-1.0) > 1e-5 {
			t.Errorf("学習後の第%d列のノルムが1ではありません。(norm=%v)", j, norm)
		}
	}

	// interval=2なのでエポック2と最終エポック3、それに最終状態が保存される。
	for _, name := range []string{"epoch_2.json", "epoch_3.json", "epoch_end.json"} {
		path := filepath.Join(saveDir, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("チェックポイント%sが保存されていません。", name)
			continue
		}
		if _, err := sae.LoadParameterJSON(path, 12, 6); err != nil {
			t.Errorf("チェックポイント%sが読み込めません。(%v)", name, err)
		}
	}
}

func TestTrainContextCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	model, err := sae.New(sae.DefaultConfig(8, 4, 2, 4))
	if err != nil {
		panic(err)
	}

	data := newTrainData(32, 4, rng)
	if err := model.InitFromData(data, rng); err != nil {
		panic(err)
	}

	trainer := sae.NewTrainer(model, t.TempDir())
	trainer.Verbose = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := trainer.Train(ctx, data, rng); !errors.Is(err, context.Canceled) {
		t.Errorf("キャンセル済みのcontextがエラーになっていません。(err=%v)", err)
	}
}

func TestTrainNonFiniteAbort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	model, err := sae.New(sae.DefaultConfig(8, 4, 2, 4))
	if err != nil {
		panic(err)
	}

	data := newTrainData(16, 4, rng)
	if err := model.InitFromData(data, rng); err != nil {
		panic(err)
	}
	data.Data[0] = math32.NaN()

	trainer := sae.NewTrainer(model, t.TempDir())
	trainer.BatchSize = 16
	trainer.Epochs = 1
	trainer.Verbose = false

	if err := trainer.Train(context.Background(), data, rng); err == nil {
		t.Errorf("NaNを含むバッチでAbortがエラーを返していません。")
	}
}
