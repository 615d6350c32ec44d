package taxcalc

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrUndefinedResult is returned when the ICMS gross-up denominator is zero or negative.
	ErrUndefinedResult = errors.New("undefined result")
)

// ValidationError reports the first input field that is out of range.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.Field, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateSet holds the eight tax rates of one computation, as percentages in [0, 100].
type RateSet struct {
	II     float64
	PIS    float64
	COFINS float64
	IPI    float64
	IS     float64
	IBS    float64
	CBS    float64
	ICMS   float64
}

// NewRateSet builds a RateSet and rejects any rate outside [0, 100].
func NewRateSet(ii, pis, cofins, ipi, is, ibs, cbs, icms float64) (RateSet, error) {
	rates := RateSet{
		II:     ii,
		PIS:    pis,
		COFINS: cofins,
		IPI:    ipi,
		IS:     is,
		IBS:    ibs,
		CBS:    cbs,
		ICMS:   icms,
	}
	if err := rates.Validate(); err != nil {
		return RateSet{}, err
	}
	return rates, nil
}

// Validate checks every rate in TaxCodes order and returns the first violation.
func (r RateSet) Validate() error {
	for _, code := range TaxCodes {
		if err := checkPercent(string(code), r.Rate(code)); err != nil {
			return err
		}
	}
	return nil
}

// Rate returns the percentage configured for code. TOTAL and unknown codes yield 0.
func (r RateSet) Rate(code TaxCode) float64 {
	switch code {
	case II:
		return r.II
	case PIS:
		return r.PIS
	case COFINS:
		return r.COFINS
	case IPI:
		return r.IPI
	case IS:
		return r.IS
	case IBS:
		return r.IBS
	case CBS:
		return r.CBS
	case ICMS:
		return r.ICMS
	default:
		return 0
	}
}

// CostComponents are the monetary parts of the customs value.
type CostComponents struct {
	Principal float64 // FOB value of the goods
	Freight   float64
	Insurance float64
	Other     float64 // AFRMM, CIDE and other customs costs
}

// NewCostComponents builds a CostComponents and rejects negative amounts.
func NewCostComponents(principal, freight, insurance, other float64) (CostComponents, error) {
	costs := CostComponents{
		Principal: principal,
		Freight:   freight,
		Insurance: insurance,
		Other:     other,
	}
	if err := costs.Validate(); err != nil {
		return CostComponents{}, err
	}
	return costs, nil
}

func (c CostComponents) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"principal", c.Principal},
		{"freight", c.Freight},
		{"insurance", c.Insurance},
		{"other", c.Other},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Value: f.value, Reason: "must be a finite number"}
		}
		if f.value < 0 {
			return &ValidationError{Field: f.name, Value: f.value, Reason: "must be greater than or equal to 0"}
		}
	}
	return nil
}

// CustomsValue is principal + freight + insurance + other (valor aduaneiro).
func (c CostComponents) CustomsValue() float64 {
	return c.Principal + c.Freight + c.Insurance + c.Other
}

func checkPercent(field string, value float64) error {
	if math.IsNaN(value) {
		return &ValidationError{Field: field, Value: value, Reason: "must be a number"}
	}
	if value < 0 || value > 100 {
		return &ValidationError{Field: field, Value: value, Reason: "must be between 0 and 100"}
	}
	return nil
}
