package taxcalc

import (
	"math"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
)

// LineItem is one invoice product line reduced to the numbers the engine needs.
type LineItem struct {
	Ref   string
	Value float64

	// Optional per-item rates taken from the invoice. Nil falls back to the request RateSet.
	IPIRate  *float64
	ICMSRate *float64
}

// ItemResult is the computation of one line item.
type ItemResult struct {
	Result
	BaseIBSCBS    float64
	BaseICMS      float64
	BasePISCOFINS float64
}

// ItemOutcome pairs an item with its result or the error that prevented it.
type ItemOutcome struct {
	Item   LineItem
	Result ItemResult
	Err    error
}

// BatchResult holds every item outcome, in input order, and the column sums of the successful ones.
type BatchResult struct {
	Outcomes []ItemOutcome
	Summary  Result
	Failed   int
}

// ComputeItem applies the cascading formula to one line item, with the item value standing in for
// the customs value and no other customs costs. Reform PIS/COFINS use the item base net of ICMS:
// (value + IPI) - ICMS. An item whose grossed-up ICMS exceeds value + IPI fails with
// ErrUndefinedResult instead of reporting negative PIS/COFINS.
func ComputeItem(rates RateSet, item LineItem, opts ...Option) (ItemResult, error) {
	if math.IsNaN(item.Value) || math.IsInf(item.Value, 0) {
		return ItemResult{}, errors.Wrapf(&ValidationError{Field: "item_value", Value: item.Value, Reason: "must be a finite number"}, "item %s", item.Ref)
	}
	if item.Value < 0 {
		return ItemResult{}, errors.Wrapf(&ValidationError{Field: "item_value", Value: item.Value, Reason: "must be greater than or equal to 0"}, "item %s", item.Ref)
	}

	itemRates := rates
	if item.IPIRate != nil {
		itemRates.IPI = *item.IPIRate
	}
	if item.ICMSRate != nil {
		itemRates.ICMS = *item.ICMSRate
	}
	if err := itemRates.Validate(); err != nil {
		return ItemResult{}, errors.Wrapf(err, "item %s", item.Ref)
	}

	b, err := computeCascading(itemRates, CostComponents{Principal: item.Value}, newOptions(opts))
	if err != nil {
		return ItemResult{}, errors.Wrapf(err, "item %s", item.Ref)
	}

	reformICMS, _ := b.Comparison.Line(ICMS)
	basePISCOFINS := (item.Value + percentOf(item.Value, itemRates.IPI)) - reformICMS.Reform
	if basePISCOFINS < 0 {
		return ItemResult{}, errors.Wrapf(ErrUndefinedResult,
			"item %s: ICMS %v exceeds value plus IPI, PIS/COFINS base would be %v", item.Ref, reformICMS.Reform, basePISCOFINS)
	}

	reform := columnOf(b.Comparison, func(l TaxLine) float64 { return l.Reform })
	reform[PIS] = percentOf(basePISCOFINS, itemRates.PIS)
	reform[COFINS] = percentOf(basePISCOFINS, itemRates.COFINS)

	current := amounts{
		II:     reform[II],
		IPI:    reform[IPI],
		PIS:    percentOf(item.Value, itemRates.PIS),
		COFINS: percentOf(item.Value, itemRates.COFINS),
		ICMS:   percentOf(item.Value, itemRates.ICMS),
	}

	return ItemResult{
		Result:        newResult(item.Value, current, reform),
		BaseIBSCBS:    b.BaseIBSCBS,
		BaseICMS:      b.BaseICMS,
		BasePISCOFINS: basePISCOFINS,
	}, nil
}

// ComputeBatch computes every item concurrently. A failing item carries its error in its outcome
// and does not affect the others. workers <= 0 uses GOMAXPROCS.
func ComputeBatch(rates RateSet, items []LineItem, workers int, opts ...Option) BatchResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	mapper := iter.Mapper[LineItem, ItemOutcome]{MaxGoroutines: workers}
	outcomes := mapper.Map(items, func(item *LineItem) ItemOutcome {
		res, err := ComputeItem(rates, *item, opts...)
		return ItemOutcome{Item: *item, Result: res, Err: err}
	})

	return BatchResult{
		Outcomes: outcomes,
		Summary:  Aggregate(outcomes),
		Failed:   lo.CountBy(outcomes, func(o ItemOutcome) bool { return o.Err != nil }),
	}
}

// Aggregate sums each column of the successful outcomes into a single Result. The sum runs in
// slice order so equal inputs give bit-identical totals.
func Aggregate(outcomes []ItemOutcome) Result {
	ok := lo.Filter(outcomes, func(o ItemOutcome, _ int) bool { return o.Err == nil })

	current := amounts{}
	reform := amounts{}
	for _, o := range ok {
		for _, line := range o.Result.Comparison.Lines {
			current[line.Code] += line.Current
			reform[line.Code] += line.Reform
		}
	}

	customs := lo.SumBy(ok, func(o ItemOutcome) float64 { return o.Result.CustomsValue })
	return newResult(customs, current, reform)
}

func columnOf(t ComparisonTable, pick func(TaxLine) float64) amounts {
	col := amounts{}
	for _, line := range t.Lines {
		col[line.Code] = pick(line)
	}
	return col
}
