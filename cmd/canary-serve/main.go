package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	port := flag.Int("port", 8000, "待ち受けポート")
	dir := flag.String("dir", ".", "配信するディレクトリ(data.jsonを含む事)")
	flag.Parse()

	dataPath := filepath.Join(*dir, "data.json")
	if _, err := os.Stat(dataPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s が見つかりません。先にcanary-prepareを実行して下さい。\n", dataPath)
		os.Exit(1)
	}

	fs := http.FileServer(http.Dir(*dir))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// data.jsonは再生成される事があるので、キャッシュさせない。
		if strings.HasSuffix(r.URL.Path, "data.json") {
			w.Header().Set("Cache-Control", "no-store")
		}
		fs.ServeHTTP(w, r)
	})

	addr := fmt.Sprintf(":%d", *port)
	fmt.Printf("http://localhost%s で配信します。\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
