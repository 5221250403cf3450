package excel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadObservations_Wide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.csv")
	body := "Date,Rest_Days,Points\n" +
		"2024-01-01,2,101\n" +
		"2024-01-02,,98\n" +
		"2024-01-03,1,\n" +
		"2024-01-04,3,110\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	obs, err := NewDataReader(path, nil).ReadObservations(DefaultExcelConfig())
	require.NoError(t, err)
	require.Len(t, obs, 2)

	rest, ok := obs.Lookup("Rest_Days")
	require.True(t, ok)
	require.Len(t, rest, 3)
	assert.Equal(t, 1.0, rest[1].Value)
	assert.True(t, rest[1].Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	points, ok := obs.Lookup("points")
	require.True(t, ok)
	assert.Len(t, points, 3)

	_, ok = obs.Lookup("minutes")
	assert.False(t, ok)
}

func TestParseObservations_Errors(t *testing.T) {
	cfg := DefaultExcelConfig()

	_, err := ParseObservations(&ExcelData{Headers: []string{"points"}}, cfg)
	assert.ErrorContains(t, err, "date")

	data := &ExcelData{
		Headers: []string{"date", "points"},
		Rows:    []RawRowData{{"date": "2024-01-01", "points": "lots"}},
	}
	_, err = ParseObservations(data, cfg)
	assert.ErrorContains(t, err, "row 2 points")
}
