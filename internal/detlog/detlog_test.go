package detlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"signdetect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestOpenWritesHeaderAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,row,here\n"), 0644))

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	rows := readRows(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, Header, rows[0])
}

func TestWriteOneRowPerDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	l, err := Open(path)
	require.NoError(t, err)

	dets := []models.Detection{
		{ClassID: 14, ClassName: "Stop", Confidence: 0.876, Box: models.Box{X1: 1, Y1: 2, X2: 30, Y2: 40}},
		{ClassID: 7, ClassName: "Speed Limit 30", Confidence: 0.5, Box: models.Box{X1: 5, Y1: 5, X2: 9, Y2: 9}},
		{ClassID: 99, ClassName: "Unknown", Confidence: 1, Box: models.Box{}},
	}
	require.NoError(t, l.Write(dets))
	assert.Equal(t, 3, l.Rows())
	require.NoError(t, l.Close())

	rows := readRows(t, path)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Stop", "0.88", "[1.0, 2.0, 30.0, 40.0]"}, rows[1])
	assert.Equal(t, []string{"Speed Limit 30", "0.50", "[5.0, 5.0, 9.0, 9.0]"}, rows[2])
	assert.Equal(t, []string{"Unknown", "1.00", "[0.0, 0.0, 0.0, 0.0]"}, rows[3])

	for _, r := range rows[1:] {
		assert.Regexp(t, `^\d\.\d\d$`, r[1])
	}
}

func TestWriteEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Write(nil))
	assert.Equal(t, 0, l.Rows())
}

func TestWriteAfterCloseFails(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "detections.csv"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	err = l.Write([]models.Detection{{ClassName: "Stop"}})
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, l.Close())
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "detections.csv"))
	assert.Error(t, err)
}

func TestLine(t *testing.T) {
	d := models.Detection{ClassName: "Red Light", Confidence: 0.123, Box: models.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	assert.Equal(t, "Red Light (0.12) at [1.0, 2.0, 3.0, 4.0]", Line(d))
}
