package excel

// ExcelConfig maps spreadsheet columns onto series fields
type ExcelConfig struct {
	Sheet             string `json:"sheet"`
	DateColumn        string `json:"date_column"`
	FactorAColumn     string `json:"factor_a_column"`
	FactorBColumn     string `json:"factor_b_column"`
	ValueAColumn      string `json:"value_a_column"`
	ValueBColumn      string `json:"value_b_column"`
	CorrelationColumn string `json:"correlation_column"`
	ConfidenceColumn  string `json:"confidence_column"`
}

// DefaultExcelConfig returns the long-format column names written by WriteExamples
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{
		DateColumn:        "date",
		FactorAColumn:     "factor_a",
		FactorBColumn:     "factor_b",
		ValueAColumn:      "value_a",
		ValueBColumn:      "value_b",
		CorrelationColumn: "correlation",
		ConfidenceColumn:  "confidence",
	}
}
