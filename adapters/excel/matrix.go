package excel

import (
	"fmt"
	"strings"

	"factorcorr/domain/factor"
)

// ReadMatrix reads a square correlation matrix laid out with factor names
// across the first row and down the first column
func (r *DataReader) ReadMatrix() (*factor.CorrelationMatrix, error) {
	rows, err := r.ReadRows()
	if err != nil {
		return nil, err
	}
	return ParseMatrix(rows)
}

// ParseMatrix converts a labelled grid into a CorrelationMatrix
func ParseMatrix(rows [][]string) (*factor.CorrelationMatrix, error) {
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("matrix sheet needs a header row and at least one factor")
	}
	factors := make([]string, 0, len(rows[0])-1)
	for _, h := range rows[0][1:] {
		factors = append(factors, strings.TrimSpace(h))
	}

	m := &factor.CorrelationMatrix{Factors: factors}
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		if name := strings.TrimSpace(row[0]); i < len(factors) && name != factors[i] {
			return nil, fmt.Errorf("row %d label %q does not match column %q", i+2, name, factors[i])
		}
		values := make([]float64, len(row)-1)
		for j, cell := range row[1:] {
			v, err := parseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("cell (%d,%d): %w", i+2, j+2, err)
			}
			values[j] = v
		}
		m.Values = append(m.Values, values)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
