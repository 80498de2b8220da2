// Package report writes the run-level CSV artifacts: the slide inventory
// built before fan-out, and the summary and error reports aggregated
// after all workers return.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"histotile/internal/models"
	"histotile/pkg/slide"
)

// Report filenames created under the run's output directory.
const (
	InventoryFile = "patient_files.csv"
	SummaryFile   = "summary_report.csv"
	ErrorFile     = "error_report.csv"
)

// WriteInventory records the discovered slides and their output
// directories to patient_files.csv and returns its path.
func WriteInventory(entries []slide.Entry, outputDir string) (string, error) {
	path := filepath.Join(outputDir, InventoryFile)
	rows := [][]string{{"Patient ID", "Original Slide Path", "Preprocessing Path"}}
	for _, e := range entries {
		rows = append(rows, []string{e.PatientID, e.SlidePath, e.ResultPath})
	}
	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSummary writes the per-slide outcome report. Counts for stages
// that never ran are left empty.
func WriteSummary(outcomes []models.Outcome, outputDir string) error {
	rows := [][]string{{"Patient ID", "Original Slide Path", "Total Tiles", "In Focus Tiles"}}
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.PatientID,
			o.SlidePath,
			formatCount(o.TileCount),
			formatCount(o.InFocusCount),
		})
	}
	return writeCSV(filepath.Join(outputDir, SummaryFile), rows)
}

// WriteErrors writes the aggregated error records.
func WriteErrors(errs []models.ProcessingError, outputDir string) error {
	rows := [][]string{{"Patient ID", "Path", "Error", "Stage"}}
	for _, e := range errs {
		rows = append(rows, []string{e.PatientID, e.Path, e.Message, e.Stage})
	}
	return writeCSV(filepath.Join(outputDir, ErrorFile), rows)
}

func formatCount(c *int) string {
	if c == nil {
		return ""
	}
	return strconv.Itoa(*c)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
