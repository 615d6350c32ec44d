// Package report turns engine results into display rows and exportable files.
package report

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

// Column headers of the comparison table. Spreadsheets built from it are read by position and name.
const (
	HeaderTax     = "Tributo"
	HeaderReform  = "Valor Após Reforma (R$)"
	HeaderCurrent = "Valor Antes da Reforma (R$)"
)

// ComparisonHeaders is the header row, in export order.
var ComparisonHeaders = []string{HeaderTax, HeaderReform, HeaderCurrent}

// Row is one comparison line ready for display.
type Row struct {
	Tax     string
	Reform  float64
	Current float64
	IsTotal bool
}

// ComparisonRows returns the eight tax rows followed by TOTAL.
func ComparisonRows(result taxcalc.Result) []Row {
	return lo.Map(result.Comparison.Rows(), func(l taxcalc.TaxLine, _ int) Row {
		return Row{
			Tax:     string(l.Code),
			Reform:  l.Reform,
			Current: l.Current,
			IsTotal: l.Code == taxcalc.Total,
		}
	})
}

// Cents rounds half away from zero to two decimal places.
func Cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FormatBRL renders v as "R$ 1.234,56".
func FormatBRL(v float64) string {
	return "R$ " + FormatNumber(v)
}

// FormatNumber renders v with two decimals, "." thousands and "," decimal separators.
func FormatNumber(v float64) string {
	fixed := Cents(v).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + frac
}

// Bar is one group of the comparison chart. Percentages are relative to the largest amount.
type Bar struct {
	Tax        string
	Current    float64
	Reform     float64
	CurrentPct float64
	ReformPct  float64
}

// ChartBars scales the tax rows for a bar chart. TOTAL is left out.
func ChartBars(result taxcalc.Result) []Bar {
	lines := result.Comparison.Lines
	peak := lo.Max(lo.FlatMap(lines, func(l taxcalc.TaxLine, _ int) []float64 {
		return []float64{l.Current, l.Reform}
	}))

	return lo.Map(lines, func(l taxcalc.TaxLine, _ int) Bar {
		bar := Bar{Tax: string(l.Code), Current: l.Current, Reform: l.Reform}
		if peak > 0 {
			bar.CurrentPct = l.Current / peak * 100
			bar.ReformPct = l.Reform / peak * 100
		}
		return bar
	})
}
