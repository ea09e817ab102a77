package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/sw965/canary/dataset"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"
)

func TestLoadEmbeddingsNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}

	src := mat.NewDense(2, 3, []float64{
		0.5, -1.25, 2.0,
		3.5, 0.0, -0.75,
	})
	if err := npyio.Write(f, src); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}

	emb, err := dataset.LoadEmbeddingsNpy(path)
	if err != nil {
		panic(err)
	}
	if emb.Rows != 2 || emb.Cols != 3 {
		t.Fatalf("形状が(2×3)ではありません。(%d×%d)", emb.Rows, emb.Cols)
	}

	expected := []float32{0.5, -1.25, 2.0, 3.5, 0.0, -0.75}
	for i := range expected {
		if emb.Data[i] != expected[i] {
			t.Errorf("埋め込みが%vになるべき所、%vになっています。", expected, emb.Data)
			break
		}
	}
}

func TestLoadEmbeddingsNpyRejects1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vector.npy")
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	if err := npyio.Write(f, []float32{1, 2, 3}); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}

	if _, err := dataset.LoadEmbeddingsNpy(path); err == nil {
		t.Errorf("1次元のnpyがエラーになっていません。")
	}
}

func TestEmbeddingsGobRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.gob")
	emb := blas32.General{
		Rows:   2,
		Cols:   2,
		Stride: 2,
		Data:   []float32{1, 2, 3, 4},
	}

	if err := dataset.SaveEmbeddingsGob(&emb, path); err != nil {
		panic(err)
	}
	loaded, err := dataset.LoadEmbeddingsGob(path)
	if err != nil {
		panic(err)
	}

	if loaded.Rows != emb.Rows || loaded.Cols != emb.Cols {
		t.Fatalf("テスト失敗")
	}
	for i := range emb.Data {
		if loaded.Data[i] != emb.Data[i] {
			t.Errorf("テスト失敗")
			break
		}
	}
}

func TestLoadSongsCSV(t *testing.T) {
	csvText := "Track Name,Artist Name(s),Album Name,Genres,Popularity,Release Date,lyrics\n" +
		"Song A,\"Artist One, Artist Two\",Album A,\"rock, indie rock\",73,2020-01-15,\"line1\nline2\nline3\"\n" +
		"Song B,Artist Three,Album B,,,2019-06-01,\n"

	path := filepath.Join(t.TempDir(), "songs.csv")
	if err := os.WriteFile(path, []byte(csvText), 0644); err != nil {
		panic(err)
	}

	songs, err := dataset.LoadSongsCSV(path)
	if err != nil {
		panic(err)
	}
	if len(songs) != 2 {
		t.Fatalf("曲数が2になるべき所、%dになっています。", len(songs))
	}

	a := &songs[0]
	if a.Title != "Song A" {
		t.Errorf("テスト失敗")
	}
	if a.PrimaryArtist() != "Artist One" {
		t.Errorf("PrimaryArtistが%qになっています。", a.PrimaryArtist())
	}
	genres := a.GenreList()
	if len(genres) != 2 || genres[0] != "rock" || genres[1] != "indie rock" {
		t.Errorf("ジャンルの分割が期待と異なります。(%v)", genres)
	}
	if a.Popularity != 73 {
		t.Errorf("テスト失敗")
	}

	// 歌詞は引用符付きの複数行フィールド。プレビューは先頭行だけに切り詰められる。
	if a.LyricsPreview(2) != "line1\nline2" {
		t.Errorf("歌詞プレビューが%qになっています。", a.LyricsPreview(2))
	}

	b := &songs[1]
	if len(b.GenreList()) != 0 {
		t.Errorf("空のジャンルが空リストになっていません。")
	}
	if b.Popularity != 0 {
		t.Errorf("テスト失敗")
	}
	if b.LyricsPreview(10) != "" {
		t.Errorf("テスト失敗")
	}
}

func TestLoadSongsCSVMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("Track Name,Album Name\nSong,Album\n"), 0644); err != nil {
		panic(err)
	}
	if _, err := dataset.LoadSongsCSV(path); err == nil {
		t.Errorf("必須列の欠落がエラーになっていません。")
	}
}
