package viz

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sw965/canary/dataset"
	"github.com/sw965/canary/model/sae"
	omwjson "github.com/sw965/omw/encoding/jsonx"
	"gonum.org/v1/gonum/blas/blas32"
)

const lyricsPreviewLines = 10

type TopSong struct {
	Index      int     `json:"index"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Activation float32 `json:"activation"`
}

type Neuron struct {
	ID       int       `json:"id"`
	TopSongs []TopSong `json:"top_songs"`
}

// SAEData は可視化が消費するモデル側の成果物。
// ニューロン毎の上位曲と、全曲×全ニューロンの密な活性行列。
type SAEData struct {
	Neurons     []Neuron    `json:"neurons"`
	Activations [][]float32 `json:"activations"`
}

type SongEntry struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist"`
	PrimaryArtist string   `json:"primary_artist"`
	Album         string   `json:"album"`
	Genres        []string `json:"genres"`
	LyricsPreview string   `json:"lyrics_preview"`
	Popularity    int      `json:"popularity"`
	ReleaseDate   string   `json:"release_date"`
}

// NameCount はJSON上では ["name", count] のタプルになる。
type NameCount struct {
	Name  string
	Count int
}

func (nc NameCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{nc.Name, nc.Count})
}

func (nc *NameCount) UnmarshalJSON(b []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &nc.Name); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &nc.Count)
}

type Filters struct {
	Genres  []NameCount `json:"genres"`
	Artists []NameCount `json:"artists"`
}

type Payload struct {
	Embeddings [][2]float64 `json:"embeddings"`
	Songs      []SongEntry  `json:"songs"`
	Filters    Filters      `json:"filters"`
	SAE        *SAEData     `json:"sae,omitempty"`
}

func (p *Payload) WriteJSON(path string) error {
	return omwjson.Save[Payload](*p, path)
}

func LoadPayloadJSON(path string) (Payload, error) {
	return omwjson.Load[Payload](path)
}

/*
	BuildSAEData は学習済みモデルで全埋め込みの活性を計算し、
	ニューロン毎に最も活性の大きい曲topNと密な活性行列をまとめる。
	pは並列数。
*/
func BuildSAEData(model *sae.Model, embeddings blas32.General, songs []dataset.Song, topN, p int) (*SAEData, error) {
	if embeddings.Rows != len(songs) {
		return nil, fmt.Errorf("埋め込みの行数(%d)と曲数(%d)が一致しません。", embeddings.Rows, len(songs))
	}

	acts, err := model.ComputeActivations(embeddings, p)
	if err != nil {
		return nil, err
	}

	topIdxs, topVals, err := model.TopKActivations(embeddings, topN, p)
	if err != nil {
		return nil, err
	}

	neurons := make([]Neuron, model.NDirs)
	for j := 0; j < model.NDirs; j++ {
		topSongs := make([]TopSong, len(topIdxs[j]))
		for i, songIdx := range topIdxs[j] {
			song := &songs[songIdx]
			topSongs[i] = TopSong{
				Index:      songIdx,
				Title:      song.Title,
				Artist:     song.Artist,
				Activation: topVals[j][i],
			}
		}
		neurons[j] = Neuron{ID: j, TopSongs: topSongs}
	}

	activations := make([][]float32, acts.Rows)
	for r := 0; r < acts.Rows; r++ {
		row := make([]float32, acts.Cols)
		copy(row, acts.Data[r*acts.Stride:r*acts.Stride+acts.Cols])
		activations[r] = row
	}

	return &SAEData{Neurons: neurons, Activations: activations}, nil
}

// countSorted は出現回数の降順(同数なら名前の昇順)で数え上げる。
func countSorted(names []string) []NameCount {
	counts := map[string]int{}
	for _, name := range names {
		counts[name]++
	}

	result := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NameCount{Name: name, Count: count})
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].Count != result[b].Count {
			return result[a].Count > result[b].Count
		}
		return result[a].Name < result[b].Name
	})
	return result
}

/*
	BuildPayload は可視化用のdata.jsonの中身を組み立てる。
	saeDataはnilでも良い。その場合はSAEのブロックを省略する
	(チェックポイントが読めない時、SAE由来の特徴は任意扱いで続行する)。
*/
func BuildPayload(embeddings2D [][2]float64, songs []dataset.Song, saeData *SAEData) (Payload, error) {
	if len(embeddings2D) != len(songs) {
		return Payload{}, fmt.Errorf("2次元座標の数(%d)と曲数(%d)が一致しません。", len(embeddings2D), len(songs))
	}

	entries := make([]SongEntry, len(songs))
	var allGenres []string
	var primaryArtists []string
	for i := range songs {
		song := &songs[i]
		genres := song.GenreList()
		allGenres = append(allGenres, genres...)
		primaryArtists = append(primaryArtists, song.PrimaryArtist())

		entries[i] = SongEntry{
			ID:            i,
			Title:         song.Title,
			Artist:        song.Artist,
			PrimaryArtist: song.PrimaryArtist(),
			Album:         song.Album,
			Genres:        genres,
			LyricsPreview: song.LyricsPreview(lyricsPreviewLines),
			Popularity:    song.Popularity,
			ReleaseDate:   song.ReleaseDate,
		}
	}

	return Payload{
		Embeddings: embeddings2D,
		Songs:      entries,
		Filters: Filters{
			Genres:  countSorted(allGenres),
			Artists: countSorted(primaryArtists),
		},
		SAE: saeData,
	}, nil
}
