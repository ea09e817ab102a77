package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/sw965/canary/dataset"
	"github.com/sw965/canary/model/sae"
	"github.com/sw965/canary/viz"
	"gonum.org/v1/gonum/blas/blas32"
)

func main() {
	embeddingsFile := flag.String("embeddings", "embeddings/liked_songs_embeddings_openai-small.npy", "埋め込みファイル(.npy)")
	metadataFile := flag.String("metadata", "embeddings/liked_songs_with_lyrics_openai-small.csv", "曲メタデータ(.csv)")
	saeModel := flag.String("sae-model", "", "学習済みSAEのチェックポイント(省略可)")
	nNeurons := flag.Int("n-neurons", 32, "ニューロン数")
	k := flag.Int("k", 2, "スパース性パラメーター(top-k)")
	auxk := flag.Int("auxk", 4, "補助再構成の幅")
	topSongs := flag.Int("top-songs", 5, "ニューロン毎に記録する上位曲数")
	output := flag.String("output", "data.json", "出力先")
	flag.Parse()

	fmt.Printf("%s から埋め込みを読み込みます...\n", *embeddingsFile)
	embeddings, err := dataset.LoadEmbeddingsNpy(*embeddingsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("%s から曲メタデータを読み込みます...\n", *metadataFile)
	songs, err := dataset.LoadSongsCSV(*metadataFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("%d次元の埋め込みを持つ%d曲を読み込みました。\n", embeddings.Cols, len(songs))

	p := runtime.NumCPU()

	// SAE由来の特徴は任意扱い。チェックポイントが読めなければ、無しで続行する。
	var saeData *viz.SAEData
	if *saeModel != "" {
		saeData = buildSAEData(*saeModel, *nNeurons, *k, *auxk, *topSongs, p, embeddings, songs)
	}

	fmt.Println("PCAで2次元に射影します...")
	embeddings2D, err := viz.ProjectPCA2D(embeddings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	payload, err := viz.BuildPayload(embeddings2D, songs, saeData)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := payload.WriteJSON(*output); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("可視化データを%sに保存しました。\n", *output)
}

func buildSAEData(path string, nNeurons, k, auxk, topSongs, p int, embeddings blas32.General, songs []dataset.Song) *viz.SAEData {
	param, err := sae.LoadParameterJSON(path, nNeurons, embeddings.Cols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "SAEモデルの読み込みに失敗しました: %v\nSAE無しで続行します...\n", err)
		return nil
	}

	model, err := sae.New(sae.DefaultConfig(nNeurons, embeddings.Cols, k, auxk))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nSAE無しで続行します...\n", err)
		return nil
	}
	model.Parameter = param

	fmt.Println("ニューロンの活性を計算します...")
	saeData, err := viz.BuildSAEData(model, embeddings, songs, topSongs, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nSAE無しで続行します...\n", err)
		return nil
	}
	fmt.Printf("%d個のニューロンのSAEデータを生成しました。\n", nNeurons)
	return saeData
}
