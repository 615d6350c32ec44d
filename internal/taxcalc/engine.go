// Package taxcalc computes import taxes under the current and the reform regimes.
//
// All functions are pure: they read their arguments, return a value and keep no state, so they are
// safe to call from any number of goroutines.
package taxcalc

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// BaseVariant selects how the taxable bases are derived.
type BaseVariant int

const (
	// CascadingBase applies IBS/CBS on a base that includes II and IS, and grosses up ICMS.
	CascadingBase BaseVariant = iota
	// FlatBase applies every rate directly to the customs value.
	FlatBase
)

func (v BaseVariant) String() string {
	switch v {
	case FlatBase:
		return "flat"
	case CascadingBase:
		return "cascading"
	default:
		return "unknown"
	}
}

// ParseBaseVariant accepts "flat" or "cascading", case-insensitively.
func ParseBaseVariant(s string) (BaseVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat":
		return FlatBase, nil
	case "cascading", "":
		return CascadingBase, nil
	default:
		return 0, errors.Wrapf(ErrValidation, "unknown base variant %q", s)
	}
}

type options struct {
	doubleCountOther bool
}

// Option tunes a computation.
type Option func(*options)

// WithDoubleCountOther controls whether other customs costs are added again to the IBS/CBS and
// ICMS bases in CascadingBase, on top of their share of the customs value. Defaults to true.
func WithDoubleCountOther(enabled bool) Option {
	return func(o *options) {
		o.doubleCountOther = enabled
	}
}

func newOptions(opts []Option) options {
	o := options{doubleCountOther: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Breakdown exposes the intermediate bases of a computation next to its Result.
type Breakdown struct {
	Result
	Variant    BaseVariant
	BaseIBSCBS float64
	BaseICMS   float64
}

// Compute derives both regime columns for one import operation.
//
// Inputs are expected to be validated by NewRateSet and NewCostComponents. The only failure is
// ErrUndefinedResult, returned by CascadingBase when the ICMS rate is 100.
func Compute(rates RateSet, costs CostComponents, variant BaseVariant, opts ...Option) (Result, error) {
	b, err := ComputeDetailed(rates, costs, variant, opts...)
	if err != nil {
		return Result{}, err
	}
	return b.Result, nil
}

// ComputeDetailed is Compute plus the bases the taxes were applied to.
func ComputeDetailed(rates RateSet, costs CostComponents, variant BaseVariant, opts ...Option) (Breakdown, error) {
	switch variant {
	case FlatBase:
		return computeFlat(rates, costs), nil
	case CascadingBase:
		return computeCascading(rates, costs, newOptions(opts))
	default:
		return Breakdown{}, errors.Wrapf(ErrValidation, "unknown base variant %d", int(variant))
	}
}

func computeFlat(rates RateSet, costs CostComponents) Breakdown {
	customs := costs.CustomsValue()

	reform := amounts{}
	for _, code := range TaxCodes {
		reform[code] = percentOf(customs, rates.Rate(code))
	}

	current := amounts{
		II:     reform[II],
		PIS:    reform[PIS],
		COFINS: reform[COFINS],
		IPI:    reform[IPI],
		ICMS:   reform[ICMS],
	}

	return Breakdown{
		Result:     newResult(customs, current, reform),
		Variant:    FlatBase,
		BaseIBSCBS: customs,
		BaseICMS:   customs,
	}
}

func computeCascading(rates RateSet, costs CostComponents, o options) (Breakdown, error) {
	customs := costs.CustomsValue()
	extra := 0.0
	if o.doubleCountOther {
		extra = costs.Other
	}

	ii := percentOf(customs, rates.II)
	is := percentOf(customs, rates.IS)

	baseIBSCBS := customs + ii + is + extra
	ibs := percentOf(baseIBSCBS, rates.IBS)
	cbs := percentOf(baseIBSCBS, rates.CBS)

	ipi := percentOf(customs, rates.IPI)

	baseICMS, err := grossUp(customs+ii+is+ibs+cbs+extra, rates.ICMS)
	if err != nil {
		return Breakdown{}, err
	}
	icms := percentOf(baseICMS, rates.ICMS)

	pis := percentOf(customs, rates.PIS)
	cofins := percentOf(customs, rates.COFINS)

	reform := amounts{II: ii, PIS: pis, COFINS: cofins, IPI: ipi, IS: is, IBS: ibs, CBS: cbs, ICMS: icms}
	current := amounts{II: ii, PIS: pis, COFINS: cofins, IPI: ipi, ICMS: percentOf(customs, rates.ICMS)}

	return Breakdown{
		Result:     newResult(customs, current, reform),
		Variant:    CascadingBase,
		BaseIBSCBS: baseIBSCBS,
		BaseICMS:   baseICMS,
	}, nil
}

// grossUp returns the base that already embeds a tax of rate percent: known / (1 - rate/100).
func grossUp(known, rate float64) (float64, error) {
	denominator := 1 - rate/100
	if denominator <= 0 {
		return 0, errors.Wrapf(ErrUndefinedResult, "icms gross-up with rate %v%%", rate)
	}
	return known / denominator, nil
}

func percentOf(base, rate float64) float64 {
	return base * rate / 100
}
