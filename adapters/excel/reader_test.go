package excel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	"factorcorr/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteExamples_ReadBack(t *testing.T) {
	gen := testkit.NewSeriesGenerator(testkit.DefaultSeriesConfig())
	examples := append(
		gen.Examples(testkit.CoMoving, 1, 0.9, 0.8),
		gen.Examples(testkit.AntiMoving, 1, -0.7, 0.6)...,
	)

	for _, name := range []string{"examples.xlsx", "examples.csv"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteExamples(path, examples))

			groups, err := NewDataReader(path, nil).ReadSeriesFile(DefaultExcelConfig())
			require.NoError(t, err)
			require.Len(t, groups, 2)

			back := Examples(groups)
			require.Len(t, back, 2)
			for i, ex := range back {
				want := examples[i]
				assert.Equal(t, want.FactorA, ex.FactorA)
				assert.Equal(t, want.FactorB, ex.FactorB)
				assert.InDelta(t, want.Correlation, ex.Correlation, 1e-12)
				require.NotNil(t, ex.Confidence)
				assert.InDelta(t, *want.Confidence, *ex.Confidence, 1e-12)
				require.Len(t, ex.TimeSeries, len(want.TimeSeries))
				for j, p := range ex.TimeSeries {
					assert.True(t, p.Date.Equal(want.TimeSeries[j].Date.Truncate(24*time.Hour)))
					assert.InDelta(t, want.TimeSeries[j].ValueA, p.ValueA, 1e-9)
					assert.InDelta(t, want.TimeSeries[j].ValueB, p.ValueB, 1e-9)
				}
			}
		})
	}
}

func TestParseSeries_CSVUnlabelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	body := "Date,Factor_A,Factor_B,Value_A,Value_B\n" +
		"2024-01-03,rest,wins,3,0.6\n" +
		"2024-01-01,rest,wins,1,0.2\n" +
		"2024-01-02,rest,wins,2,0.4\n" +
		",,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	groups, err := NewDataReader(path, nil).ReadSeriesFile(DefaultExcelConfig())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Correlation)
	assert.Empty(t, Examples(groups))

	s := groups[0].Series
	require.Len(t, s, 3)
	assert.Equal(t, 1.0, s[0].ValueA)
	assert.Equal(t, 3.0, s[2].ValueA)
}

func TestParseSeries_Errors(t *testing.T) {
	cfg := DefaultExcelConfig()

	_, err := ParseSeries(&ExcelData{Headers: []string{"date", "value_a"}}, cfg)
	assert.Error(t, err)

	data := &ExcelData{
		Headers: []string{"date", "value_a", "value_b"},
		Rows:    []RawRowData{{"date": "someday", "value_a": "1", "value_b": "2"}},
	}
	_, err = ParseSeries(data, cfg)
	assert.ErrorContains(t, err, "row 2")

	data.Rows[0]["date"] = "2024-01-01"
	data.Rows[0]["value_b"] = "n/a"
	_, err = ParseSeries(data, cfg)
	assert.ErrorContains(t, err, "value_b")
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-15", "03/15/2024", "2024-03-15T00:00:00Z", "45366"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s -> %s", in, got)
	}
	_, err := ParseDate("tomorrow")
	assert.Error(t, err)
}

func TestMatrix_RoundTrip(t *testing.T) {
	m := &factor.CorrelationMatrix{
		Factors: []string{"injuries", "rest", "wins"},
		Values: [][]float64{
			{1, -0.3, -0.5},
			{-0.3, 1, 0.4},
			{-0.5, 0.4, 1},
		},
	}
	path := filepath.Join(t.TempDir(), "matrix.xlsx")
	require.NoError(t, WriteMatrix(path, m))

	got, err := NewDataReader(path, nil).ReadMatrix()
	require.NoError(t, err)
	assert.Equal(t, m.Factors, got.Factors)
	assert.Equal(t, m.Values, got.Values)
}

func TestParseMatrix_NonSquare(t *testing.T) {
	_, err := ParseMatrix([][]string{
		{"", "a", "b"},
		{"a", "1", "0.2"},
	})
	assert.ErrorIs(t, err, core.ErrShapeMismatch)

	_, err = ParseMatrix([][]string{
		{"", "a", "b"},
		{"b", "1", "0.2"},
		{"a", "0.2", "1"},
	})
	assert.ErrorContains(t, err, "does not match")
}
