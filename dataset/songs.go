package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Song は1曲分のメタデータ。CSVの列名は元データ(Spotifyのエクスポート)に合わせている。
type Song struct {
	Title       string
	Artist      string
	Album       string
	Genres      string
	Popularity  int
	ReleaseDate string
	Lyrics      string
}

// PrimaryArtist はカンマ区切りのアーティスト名の先頭だけを返す。
func (s *Song) PrimaryArtist() string {
	name := strings.SplitN(s.Artist, ",", 2)[0]
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	return name
}

func (s *Song) GenreList() []string {
	if strings.TrimSpace(s.Genres) == "" {
		return []string{}
	}
	parts := strings.Split(s.Genres, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}

// LyricsPreview は歌詞の先頭lines行だけを返す。
func (s *Song) LyricsPreview(lines int) string {
	if s.Lyrics == "" {
		return ""
	}
	split := strings.Split(s.Lyrics, "\n")
	if len(split) > lines {
		split = split[:lines]
	}
	return strings.Join(split, "\n")
}

/*
	LoadSongsCSV は曲メタデータのCSVを読み込む。

	必須列は "Track Name" と "Artist Name(s)"。
	"Album Name"、"Genres"、"Popularity"、"Release Date"、"lyrics" は
	あれば使い、無ければ空値のままにする。歌詞には改行が含まれる為、
	引用符付きの複数行フィールドとして扱われる。
*/
func LoadSongsCSV(path string) ([]Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s のヘッダー行の読み込みに失敗しました: %w", path, err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{"Track Name", "Artist Name(s)"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("CSVに必須列 %q がありません。", required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := colIdx[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var songs []Song
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		popularity := 0
		if raw := strings.TrimSpace(field(record, "Popularity")); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				popularity = v
			}
		}

		songs = append(songs, Song{
			Title:       field(record, "Track Name"),
			Artist:      field(record, "Artist Name(s)"),
			Album:       field(record, "Album Name"),
			Genres:      field(record, "Genres"),
			Popularity:  popularity,
			ReleaseDate: field(record, "Release Date"),
			Lyrics:      field(record, "lyrics"),
		})
	}
	return songs, nil
}
