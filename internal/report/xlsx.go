package report

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/simulador-reforma/internal/nfe"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

const (
	SheetComparison = "Comparativo"
	SheetRecords    = "NF-e XML"
	SheetItems      = "Itens"
)

// RecordHeaders is the column order of the NF-e extraction sheet.
var RecordHeaders = []string{
	"Número NF-e", "Emissão", "Fornecedor", "UF", "Filial (CNPJ)",
	"Código Produto", "Descrição do Produto", "NCM", "CFOP", "Unidade",
	"Quantidade", "Valor Unitário", "Valor do Produto",
	"CST ICMS", "Base ICMS", "Alíquota ICMS", "Valor ICMS",
	"CST IPI", "Valor IPI", "Valor Total do Item",
}

// WriteComparisonXLSX writes a single-sheet workbook with the comparison table and cost summary.
func WriteComparisonXLSX(w io.Writer, result taxcalc.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetComparison); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	if err := writeComparisonSheet(f, SheetComparison, result); err != nil {
		return err
	}
	return errors.Wrap(f.Write(w), "write workbook")
}

// WriteRecordsXLSX writes the extracted NF-e lines, one row per det.
func WriteRecordsXLSX(w io.Writer, records []nfe.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRecords); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	if err := setRow(f, SheetRecords, 1, stringsToAny(RecordHeaders)); err != nil {
		return err
	}
	for i, r := range records {
		row := []any{
			r.Number, r.IssueDate, r.IssuerName, r.IssuerUF, r.IssuerCNPJ,
			r.ProductCode, r.Description, r.NCM, r.CFOP, r.Unit,
			r.Quantity, r.UnitPrice, Cents(r.ProductValue).InexactFloat64(),
			r.ICMSCST, Cents(r.ICMSBase).InexactFloat64(), Cents(r.ICMSRate).InexactFloat64(), Cents(r.ICMSValue).InexactFloat64(),
			r.IPICST, Cents(r.IPIValue).InexactFloat64(), r.ItemTotal,
		}
		if err := setRow(f, SheetRecords, i+2, row); err != nil {
			return err
		}
	}
	return errors.Wrap(f.Write(w), "write workbook")
}

// WriteBatchXLSX writes per-item results (reform and current per tax, or the item error) and the
// aggregated comparison.
func WriteBatchXLSX(w io.Writer, batch taxcalc.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetItems); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	header := []any{"Item", "Valor"}
	for _, code := range taxcalc.TaxCodes {
		header = append(header, string(code)+" Após Reforma", string(code)+" Antes da Reforma")
	}
	header = append(header, "Erro")
	if err := setRow(f, SheetItems, 1, header); err != nil {
		return err
	}

	for i, o := range batch.Outcomes {
		row := []any{o.Item.Ref, o.Item.Value}
		for _, code := range taxcalc.TaxCodes {
			if o.Err != nil {
				row = append(row, nil, nil)
				continue
			}
			l, _ := o.Result.Comparison.Line(code)
			row = append(row, l.Reform, l.Current)
		}
		if o.Err != nil {
			row = append(row, o.Err.Error())
		}
		if err := setRow(f, SheetItems, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetComparison); err != nil {
		return errors.Wrap(err, "add summary sheet")
	}
	if err := writeComparisonSheet(f, SheetComparison, batch.Summary); err != nil {
		return err
	}
	return errors.Wrap(f.Write(w), "write workbook")
}

func writeComparisonSheet(f *excelize.File, sheet string, result taxcalc.Result) error {
	if err := setRow(f, sheet, 1, stringsToAny(ComparisonHeaders)); err != nil {
		return err
	}
	rows := ComparisonRows(result)
	for i, r := range rows {
		if err := setRow(f, sheet, i+2, []any{r.Tax, r.Reform, r.Current}); err != nil {
			return err
		}
	}

	next := len(rows) + 3
	summary := [][]any{
		{"Valor Aduaneiro (R$)", result.CustomsValue},
		{"Custo Total Após Reforma (R$)", result.TotalCostReform},
		{"Custo Total Antes da Reforma (R$)", result.TotalCostCurrent},
	}
	for i, s := range summary {
		if err := setRow(f, sheet, next+i, s); err != nil {
			return err
		}
	}

	style, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return errors.Wrap(err, "create number style")
	}
	if err := f.SetCellStyle(sheet, "B2", cell(3, next+len(summary)-1), style); err != nil {
		return errors.Wrap(err, "apply number style")
	}
	return errors.Wrap(f.SetColWidth(sheet, "A", "C", 32), "set column width")
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	if err := f.SetSheetRow(sheet, cell(1, row), &values); err != nil {
		return errors.Wrapf(err, "write %s row %d", sheet, row)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
