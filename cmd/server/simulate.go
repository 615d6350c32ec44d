package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/report"
	"github.com/Simplici0/simulador-reforma/internal/store"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

// simulationForm keeps the submitted values so the form can be re-rendered as typed.
type simulationForm struct {
	ProfileID        int64
	Rates            taxcalc.RateSet
	Costs            taxcalc.CostComponents
	Variant          taxcalc.BaseVariant
	DoubleCountOther bool
}

type resultView struct {
	Variant          taxcalc.BaseVariant
	CustomsValue     float64
	TotalCostReform  float64
	TotalCostCurrent float64
	BaseIBSCBS       float64
	BaseICMS         float64
	Rows             []report.Row
	Bars             []report.Bar
}

type simulationViewData struct {
	baseViewData
	Profiles []store.RateProfile
	Form     simulationForm
	Result   *resultView
}

func newResultView(b taxcalc.Breakdown) *resultView {
	return &resultView{
		Variant:          b.Variant,
		CustomsValue:     b.CustomsValue,
		TotalCostReform:  b.TotalCostReform,
		TotalCostCurrent: b.TotalCostCurrent,
		BaseIBSCBS:       b.BaseIBSCBS,
		BaseICMS:         b.BaseICMS,
		Rows:             report.ComparisonRows(b.Result),
		Bars:             report.ChartBars(b.Result),
	}
}

func (s *server) handleSimulationForm(w http.ResponseWriter, r *http.Request) {
	form := simulationForm{Variant: s.defaultVariant(), DoubleCountOther: s.cfg.DoubleCountOther}

	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.log.Error("list rate profiles", zap.Error(err))
		http.Error(w, "failed to load rate profiles", http.StatusInternalServerError)
		return
	}

	if profile, ok := s.pickProfile(r); ok {
		form.ProfileID = profile.ID
		form.Rates = profile.Rates
	}

	s.renderTemplate(w, http.StatusOK, "simulate.html", simulationViewData{Profiles: profiles, Form: form})
}

// pickProfile loads ?profile_id= when it names a stored profile, the default profile otherwise.
func (s *server) pickProfile(r *http.Request) (store.RateProfile, bool) {
	ctx := r.Context()
	if raw := r.URL.Query().Get("profile_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			profile, err := s.profiles.Get(ctx, id)
			if err == nil {
				return profile, true
			}
			if !errors.Is(err, store.ErrNotFound) {
				s.log.Error("get rate profile", zap.Int64("id", id), zap.Error(err))
			}
		}
	}

	profile, err := s.profiles.Default(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("get default rate profile", zap.Error(err))
		}
		return store.RateProfile{}, false
	}
	return profile, true
}

func (s *server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.log.Error("list rate profiles", zap.Error(err))
		http.Error(w, "failed to load rate profiles", http.StatusInternalServerError)
		return
	}

	form, validationErr := parseSimulationForm(r)
	if validationErr != nil {
		s.renderTemplate(w, http.StatusBadRequest, "simulate.html", simulationViewData{
			baseViewData: baseViewData{ErrorMessage: validationErr.Error()},
			Profiles:     profiles,
			Form:         form,
		})
		return
	}

	breakdown, err := taxcalc.ComputeDetailed(form.Rates, form.Costs, form.Variant, taxcalc.WithDoubleCountOther(form.DoubleCountOther))
	if err != nil {
		status, msg := computeErrorResponse(err)
		s.renderTemplate(w, status, "simulate.html", simulationViewData{
			baseViewData: baseViewData{ErrorMessage: msg},
			Profiles:     profiles,
			Form:         form,
		})
		return
	}

	s.log.Debug("simulation computed",
		zap.String("variant", form.Variant.String()),
		zap.Float64("customs_value", breakdown.CustomsValue),
		zap.Float64("total_reform", breakdown.Comparison.Total.Reform),
	)

	s.renderTemplate(w, http.StatusOK, "simulate.html", simulationViewData{
		Profiles: profiles,
		Form:     form,
		Result:   newResultView(breakdown),
	})
}

func (s *server) handleSimulateExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form, err := parseSimulationForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := taxcalc.Compute(form.Rates, form.Costs, form.Variant, taxcalc.WithDoubleCountOther(form.DoubleCountOther))
	if err != nil {
		status, msg := computeErrorResponse(err)
		http.Error(w, msg, status)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		filename    string
	)
	switch format := r.FormValue("format"); format {
	case "xlsx":
		err = report.WriteComparisonXLSX(&buf, result)
		contentType = xlsxContentType
		filename = "comparativo_reforma.xlsx"
	case "pdf":
		err = report.WriteComparisonPDF(&buf, result, report.Meta{Variant: form.Variant, GeneratedAt: time.Now()})
		contentType = "application/pdf"
		filename = "comparativo_reforma.pdf"
	default:
		http.Error(w, fmt.Sprintf("formato %q não suportado", format), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("export simulation", zap.Error(err))
		http.Error(w, "failed to export", http.StatusInternalServerError)
		return
	}

	writeDownload(w, contentType, filename, &buf)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeDownload(w http.ResponseWriter, contentType, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// computeErrorResponse maps engine errors to a status and a user message.
func computeErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, taxcalc.ErrUndefinedResult):
		return http.StatusUnprocessableEntity, "ICMS de 100% torna o cálculo por dentro indefinido. Use a base única ou reduza a alíquota."
	case errors.Is(err, taxcalc.ErrValidation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "erro ao calcular tributos"
	}
}

func parseSimulationForm(r *http.Request) (simulationForm, error) {
	form := simulationForm{DoubleCountOther: r.FormValue("double_count_other") == "1"}
	form.ProfileID, _ = strconv.ParseInt(r.FormValue("profile_id"), 10, 64)

	var err error
	if form.Variant, err = taxcalc.ParseBaseVariant(r.FormValue("variant")); err != nil {
		return form, fmt.Errorf("base de cálculo inválida")
	}
	if form.Rates, err = parseRates(r); err != nil {
		return form, err
	}
	if form.Costs, err = parseCosts(r); err != nil {
		return form, err
	}
	return form, nil
}

// rateFields lists the form field of each tax in TaxCodes order.
var rateFields = []struct {
	code  taxcalc.TaxCode
	field string
}{
	{taxcalc.II, "ii"},
	{taxcalc.PIS, "pis"},
	{taxcalc.COFINS, "cofins"},
	{taxcalc.IPI, "ipi"},
	{taxcalc.IS, "is"},
	{taxcalc.IBS, "ibs"},
	{taxcalc.CBS, "cbs"},
	{taxcalc.ICMS, "icms"},
}

func parseRates(r *http.Request) (taxcalc.RateSet, error) {
	values := make(map[taxcalc.TaxCode]float64, len(rateFields))
	for _, f := range rateFields {
		v, err := parsePercent(r.FormValue(f.field), string(f.code))
		if err != nil {
			return taxcalc.RateSet{}, err
		}
		values[f.code] = v
	}
	return taxcalc.NewRateSet(
		values[taxcalc.II], values[taxcalc.PIS], values[taxcalc.COFINS], values[taxcalc.IPI],
		values[taxcalc.IS], values[taxcalc.IBS], values[taxcalc.CBS], values[taxcalc.ICMS],
	)
}

func parseCosts(r *http.Request) (taxcalc.CostComponents, error) {
	var (
		c   taxcalc.CostComponents
		err error
	)
	if c.Principal, err = parseNonNegativeFloat(r.FormValue("fob"), "Valor FOB"); err != nil {
		return c, err
	}
	if c.Freight, err = parseNonNegativeFloat(r.FormValue("freight"), "Frete internacional"); err != nil {
		return c, err
	}
	if c.Insurance, err = parseNonNegativeFloat(r.FormValue("insurance"), "Seguro internacional"); err != nil {
		return c, err
	}
	if c.Other, err = parseNonNegativeFloat(r.FormValue("other"), "Outros custos aduaneiros"); err != nil {
		return c, err
	}
	return taxcalc.NewCostComponents(c.Principal, c.Freight, c.Insurance, c.Other)
}

// parseNumber accepts "1234.5", "1234,5" and blank (0).
func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	return strconv.ParseFloat(raw, 64)
}

func parseNonNegativeFloat(raw, field string) (float64, error) {
	value, err := parseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%s deve ser numérico", field)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s deve ser maior ou igual a 0", field)
	}
	return value, nil
}

func parsePercent(raw, field string) (float64, error) {
	value, err := parseNonNegativeFloat(raw, field)
	if err != nil {
		return 0, err
	}
	if value > 100 {
		return 0, fmt.Errorf("%s deve estar entre 0 e 100", field)
	}
	return value, nil
}
