package excel

import (
	"fmt"
	"strings"

	"factorcorr/domain/factor"
)

// FactorObservations maps a lowercased factor column to its dated values
type FactorObservations map[string][]factor.Observation

// ParseObservations reads a wide sheet: a date column plus one column per factor.
// Blank cells are skipped so each factor may follow its own schedule.
func ParseObservations(data *ExcelData, cfg ExcelConfig) (FactorObservations, error) {
	if !data.HasColumn(cfg.DateColumn) {
		return nil, fmt.Errorf("missing required column %q", cfg.DateColumn)
	}

	out := FactorObservations{}
	for i, row := range data.Rows {
		line := i + 2
		date, err := ParseDate(row[cfg.DateColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		for _, col := range data.Headers {
			if col == cfg.DateColumn || col == "" {
				continue
			}
			v, ok, err := optionalFloat(row[col])
			if err != nil {
				return nil, fmt.Errorf("row %d %s: %w", line, col, err)
			}
			if ok {
				out[col] = append(out[col], factor.Observation{Date: date, Value: v})
			}
		}
	}
	return out, nil
}

// ReadObservations reads and parses a wide file in one call
func (r *DataReader) ReadObservations(cfg ExcelConfig) (FactorObservations, error) {
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return ParseObservations(data, cfg)
}

// Lookup finds a factor column case-insensitively
func (o FactorObservations) Lookup(name string) ([]factor.Observation, bool) {
	obs, ok := o[strings.ToLower(strings.TrimSpace(name))]
	return obs, ok
}
