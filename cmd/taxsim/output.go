package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/Simplici0/simulador-reforma/internal/report"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

type lineJSON struct {
	Tax     string  `json:"tax"`
	Reform  float64 `json:"reform"`
	Current float64 `json:"current"`
}

type resultJSON struct {
	Variant          string     `json:"variant,omitempty"`
	CustomsValue     float64    `json:"customs_value"`
	BaseIBSCBS       float64    `json:"base_ibs_cbs,omitempty"`
	BaseICMS         float64    `json:"base_icms,omitempty"`
	Lines            []lineJSON `json:"lines"`
	TotalCostReform  float64    `json:"total_cost_reform"`
	TotalCostCurrent float64    `json:"total_cost_current"`
}

type itemJSON struct {
	Ref    string      `json:"ref"`
	Value  float64     `json:"value"`
	Result *resultJSON `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type batchJSON struct {
	Items   []itemJSON `json:"items"`
	Failed  int        `json:"failed"`
	Summary resultJSON `json:"summary"`
}

func linesJSON(result taxcalc.Result) []lineJSON {
	return lo.Map(report.ComparisonRows(result), func(r report.Row, _ int) lineJSON {
		return lineJSON{
			Tax:     r.Tax,
			Reform:  report.Cents(r.Reform).InexactFloat64(),
			Current: report.Cents(r.Current).InexactFloat64(),
		}
	})
}

func newResultJSON(b taxcalc.Breakdown) resultJSON {
	out := plainResultJSON(b.Result)
	out.Variant = b.Variant.String()
	if b.Variant == taxcalc.CascadingBase {
		out.BaseIBSCBS = report.Cents(b.BaseIBSCBS).InexactFloat64()
		out.BaseICMS = report.Cents(b.BaseICMS).InexactFloat64()
	}
	return out
}

func plainResultJSON(result taxcalc.Result) resultJSON {
	return resultJSON{
		CustomsValue:     report.Cents(result.CustomsValue).InexactFloat64(),
		Lines:            linesJSON(result),
		TotalCostReform:  report.Cents(result.TotalCostReform).InexactFloat64(),
		TotalCostCurrent: report.Cents(result.TotalCostCurrent).InexactFloat64(),
	}
}

func newBatchJSON(batch taxcalc.BatchResult) batchJSON {
	return batchJSON{
		Items: lo.Map(batch.Outcomes, func(o taxcalc.ItemOutcome, _ int) itemJSON {
			item := itemJSON{Ref: o.Item.Ref, Value: o.Item.Value}
			if o.Err != nil {
				item.Error = o.Err.Error()
				return item
			}
			r := plainResultJSON(o.Result.Result)
			r.BaseIBSCBS = report.Cents(o.Result.BaseIBSCBS).InexactFloat64()
			r.BaseICMS = report.Cents(o.Result.BaseICMS).InexactFloat64()
			item.Result = &r
			return item
		}),
		Failed:  batch.Failed,
		Summary: plainResultJSON(batch.Summary),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeComparisonText(w io.Writer, result taxcalc.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t%s\t%s\t\n", report.HeaderTax, report.HeaderReform, report.HeaderCurrent)
	for _, r := range report.ComparisonRows(result) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", r.Tax, report.FormatNumber(r.Reform), report.FormatNumber(r.Current))
	}
	return tw.Flush()
}

func writeSummaryText(w io.Writer, result taxcalc.Result) {
	fmt.Fprintf(w, "Valor aduaneiro: %s\n", report.FormatBRL(result.CustomsValue))
	fmt.Fprintf(w, "Custo total após a reforma: %s\n", report.FormatBRL(result.TotalCostReform))
	fmt.Fprintf(w, "Custo total antes da reforma: %s\n", report.FormatBRL(result.TotalCostCurrent))
}

func writeBreakdownText(w io.Writer, b taxcalc.Breakdown) error {
	if err := writeComparisonText(w, b.Result); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Base de cálculo: %s\n", b.Variant)
	if b.Variant == taxcalc.CascadingBase {
		fmt.Fprintf(w, "Base IBS/CBS: %s\n", report.FormatBRL(b.BaseIBSCBS))
		fmt.Fprintf(w, "Base ICMS: %s\n", report.FormatBRL(b.BaseICMS))
	}
	writeSummaryText(w, b.Result)
	return nil
}

func writeBatchText(w io.Writer, batch taxcalc.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Item\tValor\tTotal Após Reforma\tTotal Antes da Reforma\tErro")
	for _, o := range batch.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t\t\t%v\n", o.Item.Ref, report.FormatNumber(o.Item.Value), o.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			o.Item.Ref,
			report.FormatNumber(o.Item.Value),
			report.FormatNumber(o.Result.Comparison.Total.Reform),
			report.FormatNumber(o.Result.Comparison.Total.Current),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Consolidado:")
	if err := writeComparisonText(w, batch.Summary); err != nil {
		return err
	}
	writeSummaryText(w, batch.Summary)
	return nil
}
