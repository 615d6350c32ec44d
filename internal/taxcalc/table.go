package taxcalc

// TaxCode identifies one row of the comparison table.
type TaxCode string

const (
	II     TaxCode = "II"
	PIS    TaxCode = "PIS"
	COFINS TaxCode = "COFINS"
	IPI    TaxCode = "IPI"
	IS     TaxCode = "IS"
	IBS    TaxCode = "IBS"
	CBS    TaxCode = "CBS"
	ICMS   TaxCode = "ICMS"

	// Total labels the synthesized column-sum row.
	Total TaxCode = "TOTAL"
)

// TaxCodes is the fixed row order of the comparison table. Exports key off it by position.
var TaxCodes = []TaxCode{II, PIS, COFINS, IPI, IS, IBS, CBS, ICMS}

// costCodes are the taxes that enter the cost of the import. IS, IBS and CBS are creditable.
var costCodes = []TaxCode{II, PIS, COFINS, IPI, ICMS}

// TaxLine is one tax under both regimes.
type TaxLine struct {
	Code    TaxCode
	Current float64
	Reform  float64
}

// ComparisonTable holds one TaxLine per TaxCodes entry and their column sums.
type ComparisonTable struct {
	Lines []TaxLine
	Total TaxLine
}

// Rows returns the eight tax rows followed by the TOTAL row.
func (t ComparisonTable) Rows() []TaxLine {
	rows := make([]TaxLine, 0, len(t.Lines)+1)
	rows = append(rows, t.Lines...)
	return append(rows, t.Total)
}

// Line returns the row for code. The second result is false when the table has no such row.
func (t ComparisonTable) Line(code TaxCode) (TaxLine, bool) {
	if code == Total {
		return t.Total, true
	}
	for _, line := range t.Lines {
		if line.Code == code {
			return line, true
		}
	}
	return TaxLine{}, false
}

// Result is the output of one computation.
type Result struct {
	CustomsValue     float64
	Comparison       ComparisonTable
	TotalCostCurrent float64
	TotalCostReform  float64
}

// amounts maps each tax to its value in one regime column.
type amounts map[TaxCode]float64

func newComparisonTable(current, reform amounts) ComparisonTable {
	table := ComparisonTable{
		Lines: make([]TaxLine, 0, len(TaxCodes)),
		Total: TaxLine{Code: Total},
	}
	for _, code := range TaxCodes {
		line := TaxLine{Code: code, Current: current[code], Reform: reform[code]}
		table.Lines = append(table.Lines, line)
		table.Total.Current += line.Current
		table.Total.Reform += line.Reform
	}
	return table
}

func newResult(customsValue float64, current, reform amounts) Result {
	return Result{
		CustomsValue:     customsValue,
		Comparison:       newComparisonTable(current, reform),
		TotalCostCurrent: customsValue + sumCodes(current, costCodes),
		TotalCostReform:  customsValue + sumCodes(reform, costCodes),
	}
}

func sumCodes(values amounts, codes []TaxCode) float64 {
	total := 0.0
	for _, code := range codes {
		total += values[code]
	}
	return total
}
