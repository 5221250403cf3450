package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"factorcorr/domain/factor"

	"github.com/xuri/excelize/v2"
)

// WriteExamples writes examples in the long format ParseSeries reads; a .csv path
// produces CSV, anything else an xlsx workbook
func WriteExamples(path string, examples []factor.TrainingExample) error {
	cfg := DefaultExcelConfig()
	rows := [][]string{{
		cfg.DateColumn, cfg.FactorAColumn, cfg.FactorBColumn,
		cfg.ValueAColumn, cfg.ValueBColumn, cfg.CorrelationColumn, cfg.ConfidenceColumn,
	}}
	for _, ex := range examples {
		conf := ""
		if ex.Confidence != nil {
			conf = formatFloat(*ex.Confidence)
		}
		for _, p := range ex.TimeSeries {
			rows = append(rows, []string{
				p.Date.Format("2006-01-02"), ex.FactorA, ex.FactorB,
				formatFloat(p.ValueA), formatFloat(p.ValueB), formatFloat(ex.Correlation), conf,
			})
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return writeCSV(path, rows)
	}
	return writeSheet(path, rows)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writeSheet stores numeric-looking cells as numbers so spreadsheet users can chart them
func writeSheet(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, r := range rows {
		cells := make([]interface{}, len(r))
		for j, v := range r {
			cells[j] = v
			if i > 0 && j >= 3 {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					cells[j] = n
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteMatrix writes a labelled correlation grid that ReadMatrix reads back
func WriteMatrix(path string, m *factor.CorrelationMatrix) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := []interface{}{""}
	for _, name := range m.Factors {
		header = append(header, name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, values := range m.Values {
		row := []interface{}{m.Factors[i]}
		for _, v := range values {
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
