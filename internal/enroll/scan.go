package enroll

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/facetally/internal/domain/registry"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Scan maps every identity directory under dir to its image files, sorted.
// Directory names are canonicalized, so two spellings of one name share an
// entry. Hidden directories and other files are ignored.
func Scan(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoUsersDir, err)
	}
	out := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := registry.CanonicalName(e.Name())
		if name == "" {
			continue
		}
		personDir := filepath.Join(dir, e.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoUsersDir, err)
		}
		paths := out[name]
		for _, f := range files {
			if f.IsDir() || !imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			paths = append(paths, filepath.Join(personDir, f.Name()))
		}
		sort.Strings(paths)
		out[name] = paths
	}
	return out, nil
}
