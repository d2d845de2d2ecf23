package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// loadImages reads every recognised image file directly inside dir
// (non-recursive) into memory, keyed by base filename.
func loadImages(dir string) (map[string][]byte, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("server: read dir %s: %w", dir, err)
	}

	images := make(map[string][]byte)
	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("server: read %s: %w", entry.Name(), err)
		}
		images[entry.Name()] = data
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)
	return images, filenames, nil
}

// writeEqualised writes every equalised image to dir/equalised, naming
// each file after its source but with a .tiff extension.
func writeEqualised(dir string, equalised map[string][]byte) error {
	outDir := filepath.Join(dir, "equalised")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("server: create %s: %w", outDir, err)
	}
	for filename, data := range equalised {
		base := filepath.Base(filename)
		outName := strings.TrimSuffix(base, filepath.Ext(base)) + ".tiff"
		outPath := filepath.Join(outDir, outName)
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("server: write %s: %w", outPath, err)
		}
	}
	return nil
}
