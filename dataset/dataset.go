package dataset

import (
	"fmt"
	"os"
	"strings"

	"github.com/sbinet/npyio"
	"github.com/sw965/omw/encoding/gobx"
	"gonum.org/v1/gonum/blas/blas32"
)

/*
	LoadEmbeddingsNpy は.npyファイルから埋め込み行列(サンプル数×次元数)を読み込む。
	float32とfloat64のどちらの形式でも読めるが、内部表現はfloat32に揃える。
*/
func LoadEmbeddingsNpy(path string) (blas32.General, error) {
	f, err := os.Open(path)
	if err != nil {
		return blas32.General{}, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return blas32.General{}, fmt.Errorf("%s のnpyヘッダーの読み込みに失敗しました: %w", path, err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return blas32.General{}, fmt.Errorf("埋め込み行列は2次元でなければなりません。(形状=%v)", shape)
	}
	if r.Header.Descr.Fortran {
		return blas32.General{}, fmt.Errorf("Fortranオーダーのnpyには対応していません。")
	}

	rows, cols := shape[0], shape[1]
	gen := blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   make([]float32, rows*cols),
	}

	dtype := r.Header.Descr.Type
	switch {
	case strings.HasSuffix(dtype, "f4"):
		if err := r.Read(&gen.Data); err != nil {
			return blas32.General{}, err
		}
	case strings.HasSuffix(dtype, "f8"):
		data64 := make([]float64, rows*cols)
		if err := r.Read(&data64); err != nil {
			return blas32.General{}, err
		}
		for i, e := range data64 {
			gen.Data[i] = float32(e)
		}
	default:
		return blas32.General{}, fmt.Errorf("対応していないnpyのデータ型です。(dtype=%s)", dtype)
	}

	return gen, nil
}

// LoadEmbeddingsGob はSaveEmbeddingsGobで書き出したキャッシュを読み込む。
func LoadEmbeddingsGob(path string) (blas32.General, error) {
	return gobx.Load[blas32.General](path)
}

func SaveEmbeddingsGob(emb *blas32.General, path string) error {
	return gobx.Save(emb, path)
}
