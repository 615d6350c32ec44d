package main

import (
	"bytes"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/nfe"
	"github.com/Simplici0/simulador-reforma/internal/report"
	"github.com/Simplici0/simulador-reforma/internal/store"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

type itemView struct {
	Ref          string
	Value        float64
	ReformTotal  float64
	CurrentTotal float64
	Error        string
}

type nfeViewData struct {
	baseViewData
	Profiles   []store.RateProfile
	Form       simulationForm
	Records    []nfe.Record
	FileErrors []nfe.FileError
	Items      []itemView
	Failed     int
	Summary    *resultView
}

func (s *server) handleNFeForm(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.log.Error("list rate profiles", zap.Error(err))
		http.Error(w, "failed to load rate profiles", http.StatusInternalServerError)
		return
	}

	form := simulationForm{Variant: taxcalc.CascadingBase}
	if profile, ok := s.pickProfile(r); ok {
		form.ProfileID = profile.ID
		form.Rates = profile.Rates
	}

	s.renderTemplate(w, http.StatusOK, "nfe.html", nfeViewData{Profiles: profiles, Form: form})
}

func (s *server) handleNFeUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.log.Error("list rate profiles", zap.Error(err))
		http.Error(w, "failed to load rate profiles", http.StatusInternalServerError)
		return
	}

	form := simulationForm{Variant: taxcalc.CascadingBase}
	rates, err := parseRates(r)
	if err != nil {
		s.renderTemplate(w, http.StatusBadRequest, "nfe.html", nfeViewData{
			baseViewData: baseViewData{ErrorMessage: err.Error()},
			Profiles:     profiles,
			Form:         form,
		})
		return
	}
	form.Rates = rates

	files, closeAll, err := uploadedFiles(r)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	defer closeAll()

	records, fileErrors := nfe.ParseFiles(files)
	for _, fe := range fileErrors {
		s.log.Warn("skipping nf-e file", zap.String("file", fe.Name), zap.Error(fe.Err))
	}

	if len(records) == 0 {
		msg := "Nenhum item encontrado nos arquivos enviados."
		if len(files) == 0 {
			msg = "Envie um ou mais arquivos XML de NF-e."
		}
		s.renderTemplate(w, http.StatusBadRequest, "nfe.html", nfeViewData{
			baseViewData: baseViewData{ErrorMessage: msg},
			Profiles:     profiles,
			Form:         form,
			FileErrors:   fileErrors,
		})
		return
	}

	batch := taxcalc.ComputeBatch(rates, nfe.LineItems(records), s.cfg.BatchWorkers)
	s.log.Info("nf-e batch computed",
		zap.Int("files", len(files)),
		zap.Int("items", len(batch.Outcomes)),
		zap.Int("failed", batch.Failed),
	)

	switch r.FormValue("format") {
	case "xlsx":
		s.download(w, "nfe_xml_extraido.xlsx", func(buf *bytes.Buffer) error {
			return report.WriteRecordsXLSX(buf, records)
		})
		return
	case "batch-xlsx":
		s.download(w, "nfe_tributos_por_item.xlsx", func(buf *bytes.Buffer) error {
			return report.WriteBatchXLSX(buf, batch)
		})
		return
	}

	s.renderTemplate(w, http.StatusOK, "nfe.html", nfeViewData{
		Profiles:   profiles,
		Form:       form,
		Records:    records,
		FileErrors: fileErrors,
		Items:      itemViews(batch),
		Failed:     batch.Failed,
		Summary:    newResultView(taxcalc.Breakdown{Result: batch.Summary, Variant: taxcalc.CascadingBase}),
	})
}

func (s *server) download(w http.ResponseWriter, filename string, write func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		s.log.Error("export nf-e", zap.Error(err))
		http.Error(w, "failed to export", http.StatusInternalServerError)
		return
	}
	writeDownload(w, xlsxContentType, filename, &buf)
}

func uploadedFiles(r *http.Request) ([]nfe.File, func(), error) {
	var (
		files   []nfe.File
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if r.MultipartForm == nil {
		return nil, closeAll, nil
	}
	for _, header := range r.MultipartForm.File["xmls"] {
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Join(errors.New(header.Filename), err)
		}
		closers = append(closers, f.Close)
		files = append(files, nfe.File{Name: header.Filename, Reader: f})
	}
	return files, closeAll, nil
}

func itemViews(batch taxcalc.BatchResult) []itemView {
	views := make([]itemView, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		v := itemView{Ref: o.Item.Ref, Value: o.Item.Value}
		if o.Err != nil {
			v.Error = o.Err.Error()
		} else {
			v.ReformTotal = o.Result.Comparison.Total.Reform
			v.CurrentTotal = o.Result.Comparison.Total.Current
		}
		views = append(views, v)
	}
	return views
}
