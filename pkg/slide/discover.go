package slide

import (
	"fmt"
	"os"
	"path/filepath"
)

// Entry describes one slide scheduled for preprocessing: where it lives
// and where its per-slide output directory was created.
type Entry struct {
	PatientID  string
	SlidePath  string
	ResultPath string
}

// Discover scans the input path for slide files and prepares a per-slide
// result directory under resultsPath for each one found. The input may be
// a single slide file or a directory of slides (not recursed). A directory
// without any slide files yields an empty list, not an error.
func Discover(inputPath, resultsPath string) ([]Entry, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}

	var paths []string
	if info.IsDir() {
		files, err := os.ReadDir(inputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read input directory: %w", err)
		}
		for _, f := range files {
			if !f.IsDir() && IsSlideFile(f.Name()) {
				paths = append(paths, filepath.Join(inputPath, f.Name()))
			}
		}
	} else {
		paths = append(paths, inputPath)
	}

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		id := IDFromPath(p)
		resultPath := filepath.Join(resultsPath, id)
		if err := os.MkdirAll(resultPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create result directory for %s: %w", id, err)
		}
		entries = append(entries, Entry{
			PatientID:  id,
			SlidePath:  p,
			ResultPath: resultPath,
		})
	}

	return entries, nil
}
