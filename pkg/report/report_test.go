package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histotile/internal/models"
	"histotile/pkg/slide"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteInventory(t *testing.T) {
	dir := t.TempDir()
	entries := []slide.Entry{
		{PatientID: "P1", SlidePath: "/in/P1.svs", ResultPath: "/out/P1"},
		{PatientID: "P2", SlidePath: "/in/P2.svs", ResultPath: "/out/P2"},
	}

	path, err := WriteInventory(entries, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, InventoryFile), path)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Patient ID", "Original Slide Path", "Preprocessing Path"}, rows[0])
	assert.Equal(t, []string{"P1", "/in/P1.svs", "/out/P1"}, rows[1])
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	four, three := 4, 3
	outcomes := []models.Outcome{
		{PatientID: "P1", SlidePath: "/in/P1.svs", TileCount: &four, InFocusCount: &three},
		{PatientID: "P2", SlidePath: "/in/P2.svs"},
	}

	require.NoError(t, WriteSummary(outcomes, dir))

	rows := readCSV(t, filepath.Join(dir, SummaryFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"P1", "/in/P1.svs", "4", "3"}, rows[1])
	// Counts stay empty for stages that never ran.
	assert.Equal(t, []string{"P2", "/in/P2.svs", "", ""}, rows[2])
}

func TestWriteErrors(t *testing.T) {
	dir := t.TempDir()
	errs := []models.ProcessingError{
		{PatientID: "P2", Path: "/in/P2.svs", Message: "failed to open slide", Stage: models.StageSlideOpening},
	}

	require.NoError(t, WriteErrors(errs, dir))

	rows := readCSV(t, filepath.Join(dir, ErrorFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"P2", "/in/P2.svs", "failed to open slide", "Slide Opening"}, rows[1])
}
