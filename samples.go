package charrnn

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unixpickle/essentials"
)

// ReadCorpus reads the training text at path.
//
// If path is a directory, every file in it which is not
// hidden is read and the contents are concatenated in
// name order.
func ReadCorpus(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", essentials.AddCtx("read corpus", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", essentials.AddCtx("read corpus", err)
		}
		return string(data), nil
	}

	contents, err := os.ReadDir(path)
	if err != nil {
		return "", essentials.AddCtx("read corpus", err)
	}
	sort.Slice(contents, func(i, j int) bool {
		return contents[i].Name() < contents[j].Name()
	})
	var res strings.Builder
	for _, item := range contents {
		if strings.HasPrefix(item.Name(), ".") || item.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, item.Name()))
		if err != nil {
			return "", essentials.AddCtx("read corpus", err)
		}
		res.Write(data)
	}
	return res.String(), nil
}
