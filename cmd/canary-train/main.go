package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sw965/canary/dataset"
	"github.com/sw965/canary/model/sae"
	orand "github.com/sw965/omw/math/rand"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/netlib/blas/netlib"
)

func main() {
	input := flag.String("input", "embeddings/liked_songs_embeddings_openai-small.npy", "埋め込みファイル(.npy)")
	outputDir := flag.String("output-dir", "models/sparse_autoencoder", "モデルの出力ディレクトリ")
	nNeurons := flag.Int("n-neurons", 32, "ニューロン数")
	k := flag.Int("k", 2, "スパース性パラメーター(top-k)")
	auxk := flag.Int("auxk", 4, "補助再構成の幅(2k推奨)")
	batchSize := flag.Int("batch-size", 128, "バッチサイズ")
	epochs := flag.Int("epochs", 50, "エポック数")
	lr := flag.Float64("lr", 1e-4, "学習率")
	auxkCoef := flag.Float64("auxk-coef", 1.0/32.0, "補助損失の係数")
	multikCoef := flag.Float64("multik-coef", 0.0, "multi-k損失の係数(0で無効)")
	clipGrad := flag.Float64("clip-grad", 1.0, "勾配クリッピングのノルム上限(0で無効)")
	cblas := flag.Bool("cblas", false, "netlib(CBLAS)をBLAS実装として使う")
	flag.Parse()

	if *cblas {
		blas32.Use(netlib.Implementation{})
	}

	fmt.Printf("%s から埋め込みを読み込みます...\n", *input)
	embeddings, err := dataset.LoadEmbeddingsNpy(*input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("形状(%d×%d)の埋め込みを読み込みました。\n", embeddings.Rows, embeddings.Cols)

	base := strings.TrimSuffix(filepath.Base(*input), ".npy")
	modelDir := filepath.Join(*outputDir, fmt.Sprintf("%s_ndirs:%d_k:%d", base, *nNeurons, *k))

	model, err := sae.New(sae.DefaultConfig(*nNeurons, embeddings.Cols, *k, *auxk))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rng := orand.NewMt19937()
	if err := model.InitFromData(embeddings, rng); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	trainer := sae.NewTrainer(model, modelDir)
	trainer.BatchSize = *batchSize
	trainer.Epochs = *epochs
	trainer.AuxKCoef = float32(*auxkCoef)
	trainer.MultiKCoef = float32(*multikCoef)
	trainer.ClipGradNorm = float32(*clipGrad)
	trainer.Optimizer.LearningRate = float32(*lr)

	// Ctrl-Cは次のバッチ境界で反映される。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("学習を開始します...")
	if err := trainer.Train(ctx, embeddings, rng); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("学習が完了しました。")
}
