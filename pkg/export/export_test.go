package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Schedule conflicts",
		Headers: []string{"ID", "Type", "Description"},
		Rows: []map[string]string{
			{"ID": "1", "Type": "room_time_conflict", "Description": "Room 101 is occupied, twice"},
			{"ID": "2", "Type": "teacher_workload_exceeded"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Type,Description", lines[0])
	assert.Equal(t, `1,room_time_conflict,"Room 101 is occupied, twice"`, lines[1])
	assert.Equal(t, "2,teacher_workload_exceeded,", lines[2])
}

func TestExportersRequireHeaders(t *testing.T) {
	renderers := []Renderer{NewCSVExporter(), NewPDFExporter(), NewXLSXExporter()}
	for _, r := range renderers {
		_, err := r.Render(Dataset{})
		assert.Error(t, err, r.Extension())
	}
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Type", "Description"}, rows[0])
	assert.Equal(t, "room_time_conflict", rows[1][1])
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter("Description").Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFColumnWidths(t *testing.T) {
	widths := NewPDFExporter("Description").columnWidths([]string{"ID", "Type", "Description"})
	require.Len(t, widths, 3)
	assert.InDelta(t, widths[0]*2, widths[2], 0.001)
	assert.InDelta(t, pdfPageWidth, widths[0]+widths[1]+widths[2], 0.001)
}
