package excel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"factorcorr/domain/factor"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
}

// ParseDate accepts ISO dates, US dates and Excel serial day numbers
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid Excel date %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// PairSeries is the history of one factor pair plus optional labels found in the file
type PairSeries struct {
	Pair        factor.Pair
	Series      factor.TimeSeriesSample
	Correlation *float64
	Confidence  *float64
}

// ParseSeries groups long-format rows by factor pair, preserving first-seen order
func ParseSeries(data *ExcelData, cfg ExcelConfig) ([]PairSeries, error) {
	for _, col := range []string{cfg.DateColumn, cfg.ValueAColumn, cfg.ValueBColumn} {
		if !data.HasColumn(col) {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	index := map[factor.Pair]int{}
	var out []PairSeries
	for i, row := range data.Rows {
		line := i + 2
		pair := factor.Pair{FactorA: row[cfg.FactorAColumn], FactorB: row[cfg.FactorBColumn]}

		date, err := ParseDate(row[cfg.DateColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		a, err := parseFloat(row[cfg.ValueAColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d %s: %w", line, cfg.ValueAColumn, err)
		}
		b, err := parseFloat(row[cfg.ValueBColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d %s: %w", line, cfg.ValueBColumn, err)
		}

		k, ok := index[pair]
		if !ok {
			k = len(out)
			index[pair] = k
			out = append(out, PairSeries{Pair: pair})
		}
		ps := &out[k]
		ps.Series = append(ps.Series, factor.Point{Date: date, ValueA: a, ValueB: b})

		if ps.Correlation == nil {
			if v, ok, err := optionalFloat(row[cfg.CorrelationColumn]); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", line, cfg.CorrelationColumn, err)
			} else if ok {
				ps.Correlation = &v
			}
		}
		if ps.Confidence == nil {
			if v, ok, err := optionalFloat(row[cfg.ConfidenceColumn]); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", line, cfg.ConfidenceColumn, err)
			} else if ok {
				ps.Confidence = &v
			}
		}
	}
	for i := range out {
		out[i].Series = out[i].Series.Sorted()
	}
	return out, nil
}

// Examples turns labelled pairs into training examples; unlabelled pairs are skipped
func Examples(groups []PairSeries) []factor.TrainingExample {
	var out []factor.TrainingExample
	for _, g := range groups {
		if g.Correlation == nil {
			continue
		}
		out = append(out, factor.TrainingExample{
			FactorA:     g.Pair.FactorA,
			FactorB:     g.Pair.FactorB,
			TimeSeries:  g.Series,
			Correlation: *g.Correlation,
			Confidence:  g.Confidence,
			DataPoints:  len(g.Series),
		})
	}
	return out
}

// ReadSeriesFile reads and groups a series file in one call
func (r *DataReader) ReadSeriesFile(cfg ExcelConfig) ([]PairSeries, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return ParseSeries(data, cfg)
}

func parseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

func optionalFloat(s string) (float64, bool, error) {
	if strings.TrimSpace(s) == "" {
		return 0, false, nil
	}
	v, err := parseFloat(s)
	return v, err == nil, err
}
