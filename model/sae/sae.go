package sae

import (
	"fmt"
	"math/rand"

	tensor2d "github.com/sw965/canary/blas32/tensor/2d"
	"github.com/sw965/canary/blas32/vector"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

const (
	DefaultMultiK             = 128
	DefaultDeadStepsThreshold = 266
)

type Config struct {
	NDirs  int
	DModel int
	K      int

	// AuxK は死んだニューロンによる補助再構成の幅。0で無効。2K推奨。
	AuxK int

	// MultiK は正則化専用のワイドなtop-k再構成。0で無効。
	// 実際の選択幅は min(4K, NDirs)。
	MultiK int

	DeadStepsThreshold int
}

func DefaultConfig(nDirs, dModel, k, auxk int) Config {
	return Config{
		NDirs:              nDirs,
		DModel:             dModel,
		K:                  k,
		AuxK:               auxk,
		MultiK:             DefaultMultiK,
		DeadStepsThreshold: DefaultDeadStepsThreshold,
	}
}

/*
	Model はtop-kスパースオートエンコーダー。

	埋め込みベクトルを少数の解釈可能な潜在方向で再構成する。
	Forwardは学習専用のパスで、deadステップカウンターを更新する。
	学習後の読み取り専用の計算には query.go 側のメソッドを使う事。
*/
type Model struct {
	NDirs              int
	DModel             int
	K                  int
	AuxK               int
	MultiK             int
	DeadStepsThreshold int

	Parameter Parameter

	// ニューロン毎の「最後に発火してからのステップ数」。学習ループだけが触る。
	statsLastNonzero []int
}

func New(c Config) (*Model, error) {
	if c.NDirs <= 0 {
		return nil, fmt.Errorf("NDirsは正の値でなければなりません。(NDirs=%d)", c.NDirs)
	}
	if c.DModel <= 0 {
		return nil, fmt.Errorf("DModelは正の値でなければなりません。(DModel=%d)", c.DModel)
	}
	if c.K <= 0 {
		return nil, fmt.Errorf("Kは正の値でなければなりません。(K=%d)", c.K)
	}

	// k > nはエラーではなくnに切り詰める。k <= nなら常に定義可能なので安全な縮退。
	k := c.K
	if k > c.NDirs {
		k = c.NDirs
	}
	auxk := c.AuxK
	if auxk > c.NDirs {
		auxk = c.NDirs
	}

	threshold := c.DeadStepsThreshold
	if threshold <= 0 {
		threshold = DefaultDeadStepsThreshold
	}

	return &Model{
		NDirs:              c.NDirs,
		DModel:             c.DModel,
		K:                  k,
		AuxK:               auxk,
		MultiK:             c.MultiK,
		DeadStepsThreshold: threshold,
		Parameter:          NewParameter(c.NDirs, c.DModel),
		statsLastNonzero:   make([]int, c.NDirs),
	}, nil
}

/*
	InitFromData は代表データからパラメーターを初期化する。

	PreBiasはデータの特徴毎の中央値。DecoderWeightはGlorotの一様分布で
	初期化した後に列を単位ノルムに正規化する。EncoderWeightはその転置
	(学習開始後は独立したパラメーターとして分岐する)。LatentBiasは0。
*/
func (m *Model) InitFromData(data blas32.General, rng *rand.Rand) error {
	if data.Cols != m.DModel {
		return fmt.Errorf("データの次元数(%d)がDModel(%d)と一致しません。", data.Cols, m.DModel)
	}
	if data.Rows == 0 {
		return fmt.Errorf("初期化用のデータが空です。")
	}

	m.Parameter.PreBias = tensor2d.ColMedians(data)
	m.Parameter.DecoderWeight = tensor2d.NewGlorot(m.DModel, m.NDirs, rng)
	tensor2d.NormalizeCols(m.Parameter.DecoderWeight)
	m.Parameter.EncoderWeight = tensor2d.Transpose(m.Parameter.DecoderWeight)
	m.Parameter.LatentBias = vector.NewZeros(m.NDirs)
	return nil
}

// NormalizeDecoderColumns はDecoderWeightの各列を単位ノルムに戻す。
// オプティマイザーのステップ直後、次のフォワードパスの前に呼ぶ。
func (m *Model) NormalizeDecoderColumns() {
	tensor2d.NormalizeCols(m.Parameter.DecoderWeight)
}

// DeadCounters はdeadステップカウンターのコピーを返す。観測専用。
func (m *Model) DeadCounters() []int {
	counters := make([]int, len(m.statsLastNonzero))
	copy(counters, m.statsLastNonzero)
	return counters
}

// CountDead はカウンターがthresholdを超えているニューロン数を返す。
func (m *Model) CountDead(threshold int) int {
	count := 0
	for _, c := range m.statsLastNonzero {
		if c > threshold {
			count++
		}
	}
	return count
}

func (m *Model) multiKWidth() int {
	w := 4 * m.K
	if w > m.NDirs {
		w = m.NDirs
	}
	return w
}

// Encode は (x - PreBias)・EncoderWeightᵀ + LatentBias を返す。活性化前の値。
func (m *Model) Encode(x blas32.General) (blas32.General, error) {
	_, u, err := m.encodePre(x)
	return u, err
}

func (m *Model) encodePre(x blas32.General) (blas32.General, blas32.General, error) {
	if x.Cols != m.DModel {
		return blas32.General{}, blas32.General{}, fmt.Errorf("入力の次元数(%d)がDModel(%d)と一致しません。", x.Cols, m.DModel)
	}

	xc := tensor2d.Clone(x)
	tensor2d.SubVectorFromRows(xc, m.Parameter.PreBias)

	u := tensor2d.Dot(blas.NoTrans, blas.Trans, xc, m.Parameter.EncoderWeight)
	tensor2d.AddVectorToRows(u, m.Parameter.LatentBias)
	return xc, u, nil
}

// Decode は latents・DecoderWeightᵀ + PreBias を返す。
func (m *Model) Decode(latents blas32.General) (blas32.General, error) {
	if latents.Cols != m.NDirs {
		return blas32.General{}, fmt.Errorf("潜在ベクトルの次元数(%d)がNDirs(%d)と一致しません。", latents.Cols, m.NDirs)
	}
	y := tensor2d.Dot(blas.NoTrans, blas.Trans, latents, m.Parameter.DecoderWeight)
	tensor2d.AddVectorToRows(y, m.Parameter.PreBias)
	return y, nil
}

// Info はForwardの中間結果。BackPropagateと損失計算が使う。
type Info struct {
	XCentered     blas32.General
	LatentsPreAct blas32.General
	Latents       blas32.General
	TopK          []Sparse

	MultiKLatents blas32.General
	MultiKRecons  blas32.General

	// AuxKReconsは残差の近似。デコーダーのみを通し、PreBiasは足さない。
	AuxKLatents blas32.General
	AuxKRecons  blas32.General
	AuxK        []Sparse
}

/*
	Forward は学習用のフォワードパス。deadステップカウンターを更新するので、
	推論には使わない事。

	カウンターは全ニューロンで+1された後、このバッチのメインtop-kで
	選択されたニューロンだけ0に戻る。発火したニューロンはステップ終了時点で
	ちょうど0になる。補助パスのdead判定は更新後のカウンターで行う。
*/
func (m *Model) Forward(x blas32.General) (blas32.General, Info, error) {
	xc, u, err := m.encodePre(x)
	if err != nil {
		return blas32.General{}, Info{}, err
	}

	batchSize := x.Rows
	n := m.NDirs

	latents := tensor2d.NewZeros(batchSize, n)
	topks := make([]Sparse, batchSize)
	for r := 0; r < batchSize; r++ {
		row := u.Data[r*u.Stride : r*u.Stride+n]
		rec := sparsifyTopK(row, m.K)
		topks[r] = rec
		scatter(latents.Data[r*latents.Stride:r*latents.Stride+n], rec)
	}

	info := Info{
		XCentered:     xc,
		LatentsPreAct: u,
		Latents:       latents,
		TopK:          topks,
	}

	if m.MultiK != 0 {
		width := m.multiKWidth()
		multikLatents := tensor2d.NewZeros(batchSize, n)
		for r := 0; r < batchSize; r++ {
			row := u.Data[r*u.Stride : r*u.Stride+n]
			rec := sparsifyTopK(row, width)
			scatter(multikLatents.Data[r*multikLatents.Stride:r*multikLatents.Stride+n], rec)
		}
		multikRecons := tensor2d.Dot(blas.NoTrans, blas.Trans, multikLatents, m.Parameter.DecoderWeight)
		tensor2d.AddVectorToRows(multikRecons, m.Parameter.PreBias)
		info.MultiKLatents = multikLatents
		info.MultiKRecons = multikRecons
	}

	for i := range m.statsLastNonzero {
		m.statsLastNonzero[i]++
	}
	for _, rec := range topks {
		for _, idx := range rec.Indices {
			m.statsLastNonzero[idx] = 0
		}
	}

	if m.AuxK > 0 {
		dead := make([]bool, n)
		for i, c := range m.statsLastNonzero {
			dead[i] = c > m.DeadStepsThreshold
		}

		auxkLatents := tensor2d.NewZeros(batchSize, n)
		auxks := make([]Sparse, batchSize)
		masked := make([]float32, n)
		for r := 0; r < batchSize; r++ {
			row := u.Data[r*u.Stride : r*u.Stride+n]
			for i := range masked {
				if dead[i] {
					masked[i] = row[i]
				} else {
					masked[i] = 0.0
				}
			}
			rec := sparsifyTopK(masked, m.AuxK)
			auxks[r] = rec
			scatter(auxkLatents.Data[r*auxkLatents.Stride:r*auxkLatents.Stride+n], rec)
		}

		auxkRecons := tensor2d.Dot(blas.NoTrans, blas.Trans, auxkLatents, m.Parameter.DecoderWeight)
		info.AuxKLatents = auxkLatents
		info.AuxKRecons = auxkRecons
		info.AuxK = auxks
	}

	recons := tensor2d.Dot(blas.NoTrans, blas.Trans, latents, m.Parameter.DecoderWeight)
	tensor2d.AddVectorToRows(recons, m.Parameter.PreBias)
	return recons, info, nil
}

// addMaskedLatentChain はchainの内、latentsが正の位置だけをgUに加算する。
// 選択されなかった位置とReLUで0になった位置には勾配を流さない。
func addMaskedLatentChain(gU, chain, latents blas32.General) {
	for r := 0; r < gU.Rows; r++ {
		gOffset := r * gU.Stride
		cOffset := r * chain.Stride
		lOffset := r * latents.Stride
		for c := 0; c < gU.Cols; c++ {
			if latents.Data[lOffset+c] > 0 {
				gU.Data[gOffset+c] += chain.Data[cOffset+c]
			}
		}
	}
}

/*
	BackPropagate は1バッチ分のフォワードパスと逆伝播を行い、
	損失の内訳と全パラメーターの勾配を返す。

	逆伝播は手導出。エンコーダー・デコーダーの重み勾配は転置行列積、
	バイアス勾配は行方向の総和。PreBiasにはデコード側(加算)と
	エンコード側(減算)の両方の寄与が入る。

	補助損失の残差 e = x - recons は定数の教師信号として扱う
	(eを通してメインパスへは逆伝播しない)。死んだニューロンに
	残差を説明させるのが目的であり、主目的と競合させない為。
*/
func (m *Model) BackPropagate(x blas32.General, auxkCoef, multikCoef float32) (Losses, GradBuffer, error) {
	recons, info, err := m.Forward(x)
	if err != nil {
		return Losses{}, GradBuffer{}, err
	}

	batchSize := x.Rows
	den := baselineMSE(x)
	if den < baselineMSEFloor {
		den = baselineMSEFloor
	}

	reconsMSE, err := mse(recons, x)
	if err != nil {
		return Losses{}, GradBuffer{}, err
	}

	losses := Losses{Recons: reconsMSE / den}
	losses.Total = losses.Recons

	grad := m.Parameter.NewGradZerosLike()
	gU := tensor2d.NewZeros(batchSize, m.NDirs)

	// 主再構成: dL/dY = 2(Y - X) / (B・D・den)
	scale := 2.0 / (float32(batchSize*m.DModel) * den)
	gY := tensor2d.Clone(recons)
	tensor2d.Axpy(-1.0, x, gY)
	tensor2d.Scal(scale, gY)

	blas32.Gemm(blas.Trans, blas.NoTrans, 1.0, gY, info.Latents, 1.0, grad.DecoderWeight)
	blas32.Axpy(1.0, tensor2d.Sum0(gY), grad.PreBias)
	gZ := tensor2d.Dot(blas.NoTrans, blas.NoTrans, gY, m.Parameter.DecoderWeight)
	addMaskedLatentChain(gU, gZ, info.Latents)

	if m.MultiK != 0 && multikCoef > 0 {
		multikMSE, err := mse(info.MultiKRecons, x)
		if err != nil {
			return Losses{}, GradBuffer{}, err
		}
		losses.MultiK = multikMSE / den
		losses.Total += multikCoef * losses.MultiK

		gYm := tensor2d.Clone(info.MultiKRecons)
		tensor2d.Axpy(-1.0, x, gYm)
		tensor2d.Scal(multikCoef*scale, gYm)

		blas32.Gemm(blas.Trans, blas.NoTrans, 1.0, gYm, info.MultiKLatents, 1.0, grad.DecoderWeight)
		blas32.Axpy(1.0, tensor2d.Sum0(gYm), grad.PreBias)
		gZm := tensor2d.Dot(blas.NoTrans, blas.NoTrans, gYm, m.Parameter.DecoderWeight)
		addMaskedLatentChain(gU, gZm, info.MultiKLatents)
	}

	if m.AuxK > 0 {
		e := tensor2d.Clone(x)
		tensor2d.Axpy(-1.0, recons, e)

		denE := baselineMSE(e)
		if denE < baselineMSEFloor {
			denE = baselineMSEFloor
		}

		auxkMSE, err := mse(info.AuxKRecons, e)
		if err != nil {
			return Losses{}, GradBuffer{}, err
		}
		losses.AuxK = auxkMSE / denE
		losses.Total += auxkCoef * losses.AuxK

		if auxkCoef > 0 {
			scaleE := 2.0 / (float32(batchSize*m.DModel) * denE)
			gEh := tensor2d.Clone(info.AuxKRecons)
			tensor2d.Axpy(-1.0, e, gEh)
			tensor2d.Scal(auxkCoef*scaleE, gEh)

			// e_hatはPreBiasを足していないので、PreBiasへの寄与は無い。
			blas32.Gemm(blas.Trans, blas.NoTrans, 1.0, gEh, info.AuxKLatents, 1.0, grad.DecoderWeight)
			gZa := tensor2d.Dot(blas.NoTrans, blas.NoTrans, gEh, m.Parameter.DecoderWeight)
			addMaskedLatentChain(gU, gZa, info.AuxKLatents)
		}
	}

	// エンコーダー側: dWe = gUᵀ・Xc, dLatentBias = Σ行 gU, dPreBias -= Weᵀ・(Σ行 gU)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1.0, gU, info.XCentered, 1.0, grad.EncoderWeight)
	sU := tensor2d.Sum0(gU)
	blas32.Axpy(1.0, sU, grad.LatentBias)

	encSide := vector.NewZeros(m.DModel)
	blas32.Gemv(blas.Trans, 1.0, m.Parameter.EncoderWeight, sU, 0.0, encSide)
	blas32.Axpy(-1.0, encSide, grad.PreBias)

	return losses, grad, nil
}
