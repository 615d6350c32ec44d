package taxcalc

import (
	"errors"
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestComputeItem_PISCOFINSNetOfICMS(t *testing.T) {
	rates, _ := fixtureInput(t)

	res, err := ComputeItem(rates, LineItem{Ref: "1-A", Value: 1000})
	if err != nil {
		t.Fatalf("ComputeItem: %v", err)
	}

	nearlyEqual(t, "customs", res.CustomsValue, 1000)
	nearlyEqual(t, "base IBS/CBS", res.BaseIBSCBS, 1150)
	nearlyEqual(t, "base ICMS", res.BaseICMS, 1584.7560975609756)
	nearlyEqual(t, "ICMS", line(t, res.Result, ICMS).Reform, 285.2560975609756)
	nearlyEqual(t, "base PIS/COFINS", res.BasePISCOFINS, 744.7439024390244)
	nearlyEqual(t, "PIS", line(t, res.Result, PIS).Reform, 14.894878048780487)
	nearlyEqual(t, "COFINS", line(t, res.Result, COFINS).Reform, 22.34231707317073)

	nearlyEqual(t, "PIS current", line(t, res.Result, PIS).Current, 20)
	nearlyEqual(t, "COFINS current", line(t, res.Result, COFINS).Current, 30)
	nearlyEqual(t, "ICMS current", line(t, res.Result, ICMS).Current, 180)
	nearlyEqual(t, "II current", line(t, res.Result, II).Current, 100)
	nearlyEqual(t, "IPI current", line(t, res.Result, IPI).Current, 30)
}

func TestComputeItem_UsesInvoiceRates(t *testing.T) {
	rates, _ := fixtureInput(t)

	res, err := ComputeItem(rates, LineItem{Value: 200, IPIRate: ptr(15), ICMSRate: ptr(12)})
	if err != nil {
		t.Fatalf("ComputeItem: %v", err)
	}
	nearlyEqual(t, "IPI", line(t, res.Result, IPI).Reform, 30)
	nearlyEqual(t, "ICMS current", line(t, res.Result, ICMS).Current, 24)
}

func TestComputeItem_RejectsInvalidInvoiceRate(t *testing.T) {
	rates, _ := fixtureInput(t)

	_, err := ComputeItem(rates, LineItem{Ref: "bad", Value: 10, IPIRate: ptr(140)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestComputeItem_RejectsNonFiniteValue(t *testing.T) {
	rates, _ := fixtureInput(t)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := ComputeItem(rates, LineItem{Ref: "x", Value: v})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("value %v: err = %v, want ErrValidation", v, err)
		}
	}
}

func TestComputeBatch_NonFiniteItemKeepsSummaryFinite(t *testing.T) {
	rates, _ := fixtureInput(t)

	batch := ComputeBatch(rates, []LineItem{
		{Ref: "1", Value: 100},
		{Ref: "2", Value: math.NaN()},
	}, 2)

	if batch.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", batch.Failed)
	}
	if batch.Outcomes[0].Err != nil {
		t.Fatalf("item 1 err = %v", batch.Outcomes[0].Err)
	}
	nearlyEqual(t, "summary customs", batch.Summary.CustomsValue, 100)
	if math.IsNaN(batch.Summary.Comparison.Total.Reform) {
		t.Fatalf("summary reform total is NaN")
	}
}

func TestComputeItem_NegativePISCOFINSBaseIsUndefined(t *testing.T) {
	rates, err := NewRateSet(0, 2, 3, 0, 0, 0, 0, 60)
	if err != nil {
		t.Fatalf("NewRateSet: %v", err)
	}

	// ICMS = 1000/0.4*0.6 = 1500 > 1000, so the base would be -500.
	_, err = ComputeItem(rates, LineItem{Ref: "hi-icms", Value: 1000})
	if !errors.Is(err, ErrUndefinedResult) {
		t.Fatalf("err = %v, want ErrUndefinedResult", err)
	}

	// At ICMS 50 the grossed-up ICMS equals the value: base is exactly 0.
	rates.ICMS = 50
	res, err := ComputeItem(rates, LineItem{Ref: "edge", Value: 1000})
	if err != nil {
		t.Fatalf("ComputeItem at 50%%: %v", err)
	}
	nearlyEqual(t, "base PIS/COFINS", res.BasePISCOFINS, 0)
	if pis := line(t, res.Result, PIS).Reform; pis < 0 {
		t.Fatalf("PIS = %v, want >= 0", pis)
	}
}

func TestComputeBatch_FailingItemDoesNotAbortOthers(t *testing.T) {
	rates, _ := fixtureInput(t)
	items := []LineItem{
		{Ref: "1", Value: 100},
		{Ref: "2", Value: 250, ICMSRate: ptr(100)},
		{Ref: "3", Value: 400},
	}

	batch := ComputeBatch(rates, items, 2)

	if len(batch.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(batch.Outcomes))
	}
	if batch.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", batch.Failed)
	}
	for i, o := range batch.Outcomes {
		if o.Item.Ref != items[i].Ref {
			t.Fatalf("outcome %d ref = %s, want %s", i, o.Item.Ref, items[i].Ref)
		}
	}
	if !errors.Is(batch.Outcomes[1].Err, ErrUndefinedResult) {
		t.Fatalf("item 2 err = %v, want ErrUndefinedResult", batch.Outcomes[1].Err)
	}
	if batch.Outcomes[0].Err != nil || batch.Outcomes[2].Err != nil {
		t.Fatalf("unexpected errors: %v, %v", batch.Outcomes[0].Err, batch.Outcomes[2].Err)
	}
	nearlyEqual(t, "summary customs", batch.Summary.CustomsValue, 500)
}

func TestComputeBatch_MatchesAggregateComputation(t *testing.T) {
	rates, _ := fixtureInput(t)
	values := []float64{120.5, 980, 33.25, 4500, 0, 712.4}

	items := make([]LineItem, 0, len(values))
	sum := 0.0
	for _, v := range values {
		items = append(items, LineItem{Value: v})
		sum += v
	}

	batch := ComputeBatch(rates, items, 0)
	if batch.Failed != 0 {
		t.Fatalf("Failed = %d, want 0", batch.Failed)
	}

	aggregate, err := Compute(rates, CostComponents{Principal: sum}, CascadingBase)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	nearlyEqual(t, "customs", batch.Summary.CustomsValue, aggregate.CustomsValue)
	for _, code := range []TaxCode{II, IS, IBS, CBS, IPI, ICMS} {
		got := line(t, batch.Summary, code)
		want := line(t, aggregate, code)
		nearlyEqual(t, string(code)+" reform", got.Reform, want.Reform)
		nearlyEqual(t, string(code)+" current", got.Current, want.Current)
	}
}

func TestAggregate_TotalRowIsColumnSum(t *testing.T) {
	rates, _ := fixtureInput(t)
	batch := ComputeBatch(rates, []LineItem{{Value: 10}, {Value: 20}, {Value: 30}}, 1)

	var current, reform float64
	for _, l := range batch.Summary.Comparison.Lines {
		current += l.Current
		reform += l.Reform
	}
	if batch.Summary.Comparison.Total.Current != current || batch.Summary.Comparison.Total.Reform != reform {
		t.Fatalf("total %+v, want current=%v reform=%v", batch.Summary.Comparison.Total, current, reform)
	}
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(nil)
	if result.CustomsValue != 0 || result.Comparison.Total.Reform != 0 || len(result.Comparison.Lines) != len(TaxCodes) {
		t.Fatalf("unexpected empty aggregate: %+v", result)
	}
}
