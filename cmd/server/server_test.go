package main

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/config"
	"github.com/Simplici0/simulador-reforma/internal/db"
	"github.com/Simplici0/simulador-reforma/internal/migrations"
	"github.com/Simplici0/simulador-reforma/internal/seed"
	"github.com/Simplici0/simulador-reforma/internal/store"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

func newTestServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(ctx, db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, migrations.Up(ctx, database))
	_, err = seed.Run(ctx, database)
	require.NoError(t, err)

	return &server{
		cfg: config.Config{
			Env:              "test",
			BaseVariant:      "cascading",
			DoubleCountOther: true,
			BatchWorkers:     2,
			MaxUploadMB:      1,
		},
		log:      zap.NewNop(),
		profiles: store.NewRateProfiles(database),
	}
}

func simulationValues() url.Values {
	form := url.Values{}
	form.Set("variant", "flat")
	form.Set("ii", "10")
	form.Set("pis", "2")
	form.Set("cofins", "3")
	form.Set("ipi", "3")
	form.Set("is", "5")
	form.Set("ibs", "8")
	form.Set("cbs", "5")
	form.Set("icms", "18")
	form.Set("fob", "1000")
	form.Set("freight", "100")
	form.Set("insurance", "50")
	form.Set("other", "20")
	return form
}

func postForm(t *testing.T, h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestParseSimulationForm_Success(t *testing.T) {
	form := simulationValues()
	form.Set("fob", "1000,50")
	form.Set("double_count_other", "1")

	req := httptest.NewRequest(http.MethodPost, "/simulate", nil)
	req.Form = form

	got, err := parseSimulationForm(req)
	require.NoError(t, err)
	assert.Equal(t, taxcalc.FlatBase, got.Variant)
	assert.True(t, got.DoubleCountOther)
	assert.InDelta(t, 1000.5, got.Costs.Principal, 1e-9)
	assert.InDelta(t, 18, got.Rates.ICMS, 1e-9)
}

func TestParseSimulationForm_BlankIsZero(t *testing.T) {
	form := simulationValues()
	form.Del("is")
	form.Set("other", " ")

	req := httptest.NewRequest(http.MethodPost, "/simulate", nil)
	req.Form = form

	got, err := parseSimulationForm(req)
	require.NoError(t, err)
	assert.Zero(t, got.Rates.IS)
	assert.Zero(t, got.Costs.Other)
}

func TestParseSimulationForm_Invalid(t *testing.T) {
	cases := map[string]url.Values{}

	negative := simulationValues()
	negative.Set("freight", "-1")
	cases["negative cost"] = negative

	outOfRange := simulationValues()
	outOfRange.Set("ibs", "101")
	cases["rate above 100"] = outOfRange

	notNumeric := simulationValues()
	notNumeric.Set("fob", "abc")
	cases["not numeric"] = notNumeric

	badVariant := simulationValues()
	badVariant.Set("variant", "stepped")
	cases["unknown variant"] = badVariant

	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/simulate", nil)
			req.Form = form
			_, err := parseSimulationForm(req)
			assert.Error(t, err)
		})
	}
}

func TestSimulationFormPrefillsDefaultProfile(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, seed.DefaultProfileName)
	assert.Contains(t, body, `name="ibs" value="17.7"`)
}

func TestSimulationFormLoadsRequestedProfile(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	id, err := s.profiles.Create(ctx, store.RateProfile{Name: "Eletrônicos", Rates: taxcalc.RateSet{IBS: 12.5, ICMS: 18}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?profile_id="+strconv.FormatInt(id, 10), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="ibs" value="12.5"`)

	unknown := httptest.NewRecorder()
	s.routes().ServeHTTP(unknown, httptest.NewRequest(http.MethodGet, "/nfe?profile_id=999", nil))
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Contains(t, unknown.Body.String(), `name="ibs" value="17.7"`)
}

func TestSimulate(t *testing.T) {
	s := newTestServer(t)

	rec := postForm(t, s.routes(), "/simulate", simulationValues())

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "631,80")
	assert.Contains(t, body, "421,20")
	assert.Contains(t, body, "R$ 1.591,20")
}

func TestSimulate_ValidationError(t *testing.T) {
	s := newTestServer(t)
	form := simulationValues()
	form.Set("icms", "150")

	rec := postForm(t, s.routes(), "/simulate", form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ICMS deve estar entre 0 e 100")
}

func TestSimulate_UndefinedCascadingResult(t *testing.T) {
	s := newTestServer(t)
	form := simulationValues()
	form.Set("variant", "cascading")
	form.Set("icms", "100")

	rec := postForm(t, s.routes(), "/simulate", form)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "indefinido")
}

func TestSimulateExport(t *testing.T) {
	s := newTestServer(t)

	xlsx := postForm(t, s.routes(), "/simulate/export?format=xlsx", simulationValues())
	require.Equal(t, http.StatusOK, xlsx.Code)
	assert.Equal(t, xlsxContentType, xlsx.Header().Get("Content-Type"))
	assert.Contains(t, xlsx.Header().Get("Content-Disposition"), "comparativo_reforma.xlsx")
	assert.True(t, bytes.HasPrefix(xlsx.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	pdf := postForm(t, s.routes(), "/simulate/export?format=pdf", simulationValues())
	require.Equal(t, http.StatusOK, pdf.Code)
	assert.Equal(t, "application/pdf", pdf.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF")))

	unknown := postForm(t, s.routes(), "/simulate/export?format=csv", simulationValues())
	assert.Equal(t, http.StatusBadRequest, unknown.Code)
}

const uploadNFe = `<?xml version="1.0" encoding="UTF-8"?>
<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe1" versao="4.00">
    <ide><nNF>55</nNF><dhEmi>2024-06-01T08:00:00-03:00</dhEmi></ide>
    <emit><CNPJ>11222333000144</CNPJ><xNome>Fornecedor</xNome><enderEmit><UF>PR</UF></enderEmit></emit>
    <det nItem="1">
      <prod><cProd>X1</cProd><xProd>Motor</xProd><qCom>1</qCom><vUnCom>1000</vUnCom><vProd>1000.00</vProd></prod>
      <imposto>
        <ICMS><ICMS00><CST>00</CST><pICMS>18.00</pICMS></ICMS00></ICMS>
        <IPI><IPITrib><CST>50</CST><pIPI>10.00</pIPI></IPITrib></IPI>
      </imposto>
    </det>
    <det nItem="2">
      <prod><cProd>X2</cProd><xProd>Painel</xProd><qCom>1</qCom><vUnCom>50</vUnCom><vProd>50.00</vProd></prod>
      <imposto>
        <ICMS><ICMS00><CST>00</CST><pICMS>100.00</pICMS></ICMS00></ICMS>
      </imposto>
    </det>
  </infNFe>
</NFe>`

func multipartUpload(t *testing.T, target string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, value := range map[string]string{"ii": "14", "pis": "2.1", "cofins": "9.65", "ipi": "10", "ibs": "17.7", "cbs": "8.8", "icms": "18"} {
		require.NoError(t, mw.WriteField(field, value))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("xmls", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestNFeUpload(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, multipartUpload(t, "/nfe", map[string]string{
		"nota.xml":   uploadNFe,
		"broken.xml": "<NFe><infNFe>",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Itens extraídos (2)")
	assert.Contains(t, body, "55/X1")
	assert.Contains(t, body, "1 item(ns) não puderam ser calculados")
	assert.Contains(t, body, "broken.xml")
}

func TestNFeUpload_Exports(t *testing.T) {
	s := newTestServer(t)

	for _, format := range []string{"xlsx", "batch-xlsx"} {
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, multipartUpload(t, "/nfe?format="+format, map[string]string{"nota.xml": uploadNFe}))

		require.Equal(t, http.StatusOK, rec.Code, format)
		assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"), format)
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), format)
	}
}

func TestNFeUpload_NoRecords(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, multipartUpload(t, "/nfe", map[string]string{"broken.xml": "not xml"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nenhum item encontrado")
}

func rateProfileValues(name string) url.Values {
	form := simulationValues()
	form.Set("name", name)
	form.Set("notes", "perfil de teste")
	return form
}

func TestAdminRatesCreate(t *testing.T) {
	s := newTestServer(t)
	h := s.routes()

	rec := postForm(t, h, "/admin/rates", rateProfileValues("Eletrônicos"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "success=")

	profiles, err := s.profiles.List(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	dup := postForm(t, h, "/admin/rates", rateProfileValues("Eletrônicos"))
	require.Equal(t, http.StatusSeeOther, dup.Code)
	assert.Contains(t, dup.Header().Get("Location"), "error=")

	missing := postForm(t, h, "/admin/rates", rateProfileValues(" "))
	require.Equal(t, http.StatusSeeOther, missing.Code)
	assert.Contains(t, missing.Header().Get("Location"), "error=")
}

func TestAdminRatesUpdate(t *testing.T) {
	s := newTestServer(t)
	h := s.routes()
	ctx := context.Background()

	profiles, err := s.profiles.List(ctx)
	require.NoError(t, err)
	var id int64
	for _, p := range profiles {
		if !p.IsDefault {
			id = p.ID
		}
	}
	require.NotZero(t, id)

	form := rateProfileValues("Isento")
	form.Set("is_default", "1")
	rec := postForm(t, h, "/admin/rates/"+strconv.FormatInt(id, 10), form)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	def, err := s.profiles.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, def.ID)
	assert.InDelta(t, 18, def.Rates.ICMS, 1e-9)

	notFound := postForm(t, h, "/admin/rates/999", rateProfileValues("Outro"))
	assert.Equal(t, http.StatusNotFound, notFound.Code)

	badID := postForm(t, h, "/admin/rates/abc", rateProfileValues("Outro"))
	assert.Equal(t, http.StatusBadRequest, badID.Code)
}

func TestAdminRatesForm(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/rates?success=ok", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, seed.DefaultProfileName)
	assert.Contains(t, body, "alert-success")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
