package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/seed"
	"github.com/Simplici0/simulador-reforma/internal/store"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

type ratesViewData struct {
	baseViewData
	Profiles []store.RateProfile
	NewRates taxcalc.RateSet
}

func (s *server) handleAdminRatesForm(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.log.Error("list rate profiles", zap.Error(err))
		http.Error(w, "failed to load rate profiles", http.StatusInternalServerError)
		return
	}

	s.renderTemplate(w, http.StatusOK, "admin_rates.html", ratesViewData{
		baseViewData: baseViewData{
			ErrorMessage:   r.URL.Query().Get("error"),
			SuccessMessage: r.URL.Query().Get("success"),
		},
		Profiles: profiles,
		NewRates: seed.DefaultRates,
	})
}

func (s *server) handleAdminRatesCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	profile, err := parseRateProfileForm(r)
	if err != nil {
		redirectAdminRates(w, r, "error", err.Error())
		return
	}

	id, err := s.profiles.Create(r.Context(), profile)
	if errors.Is(err, taxcalc.ErrValidation) {
		redirectAdminRates(w, r, "error", err.Error())
		return
	}
	if err != nil {
		s.log.Error("create rate profile", zap.Error(err))
		http.Error(w, "failed to create rate profile", http.StatusInternalServerError)
		return
	}

	s.log.Info("rate profile created", zap.Int64("id", id), zap.String("name", profile.Name))
	redirectAdminRates(w, r, "success", "Perfil de alíquotas criado com sucesso")
}

func (s *server) handleAdminRatesUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid rate profile id", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	profile, err := parseRateProfileForm(r)
	if err != nil {
		redirectAdminRates(w, r, "error", err.Error())
		return
	}
	profile.ID = id

	err = s.profiles.Update(r.Context(), profile)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, taxcalc.ErrValidation):
		redirectAdminRates(w, r, "error", err.Error())
		return
	case err != nil:
		s.log.Error("update rate profile", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to update rate profile", http.StatusInternalServerError)
		return
	}

	redirectAdminRates(w, r, "success", "Perfil de alíquotas atualizado com sucesso")
}

func redirectAdminRates(w http.ResponseWriter, r *http.Request, key, msg string) {
	http.Redirect(w, r, "/admin/rates?"+key+"="+url.QueryEscape(msg), http.StatusSeeOther)
}

func parseRateProfileForm(r *http.Request) (store.RateProfile, error) {
	profile := store.RateProfile{
		Name:      strings.TrimSpace(r.FormValue("name")),
		Notes:     strings.TrimSpace(r.FormValue("notes")),
		IsDefault: r.FormValue("is_default") == "1",
	}
	if profile.Name == "" {
		return profile, errors.New("nome é obrigatório")
	}

	rates, err := parseRates(r)
	if err != nil {
		return profile, err
	}
	profile.Rates = rates
	return profile, nil
}
