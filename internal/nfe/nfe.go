// Package nfe extracts product line items from NF-e (Nota Fiscal Eletrônica) XML documents.
package nfe

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

// Namespace is the XML namespace of NF-e documents.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// ErrMalformedRecord marks documents that cannot be read: no infNFe element, broken XML or a
// numeric field that is present but not a number.
var ErrMalformedRecord = errors.New("malformed nf-e record")

// Record is one det (product line) of an NF-e, flattened with the document header.
type Record struct {
	Number       string
	IssueDate    string // dd/mm/yyyy
	IssuerName   string
	IssuerUF     string
	IssuerCNPJ   string
	ProductCode  string
	Description  string
	NCM          string
	CFOP         string
	Unit         string
	Quantity     float64
	UnitPrice    float64
	ProductValue float64
	ICMSCST      string
	ICMSBase     float64
	ICMSRate     float64
	ICMSValue    float64
	IPICST       string
	IPIRate      float64
	IPIValue     float64
	ItemTotal    float64 // ProductValue + IPIValue

	hasICMSRate bool
	hasIPIRate  bool
}

// LineItem reduces the record to the engine input. Rates are carried only when the invoice had them.
func (r Record) LineItem() taxcalc.LineItem {
	item := taxcalc.LineItem{
		Ref:   r.Number + "/" + r.ProductCode,
		Value: r.ProductValue,
	}
	if r.hasIPIRate {
		rate := r.IPIRate
		item.IPIRate = &rate
	}
	if r.hasICMSRate {
		rate := r.ICMSRate
		item.ICMSRate = &rate
	}
	return item
}

// LineItems converts every record.
func LineItems(records []Record) []taxcalc.LineItem {
	items := make([]taxcalc.LineItem, 0, len(records))
	for _, r := range records {
		items = append(items, r.LineItem())
	}
	return items
}

type infNFe struct {
	Ide  ide   `xml:"ide"`
	Emit emit  `xml:"emit"`
	Det  []det `xml:"det"`
}

type ide struct {
	NNF   string `xml:"nNF"`
	DhEmi string `xml:"dhEmi"`
}

type emit struct {
	CNPJ      string `xml:"CNPJ"`
	XNome     string `xml:"xNome"`
	EnderEmit struct {
		UF string `xml:"UF"`
	} `xml:"enderEmit"`
}

type det struct {
	Prod    prod    `xml:"prod"`
	Imposto imposto `xml:"imposto"`
}

type prod struct {
	CProd  string  `xml:"cProd"`
	XProd  string  `xml:"xProd"`
	NCM    string  `xml:"NCM"`
	CFOP   string  `xml:"CFOP"`
	UCom   string  `xml:"uCom"`
	QCom   *string `xml:"qCom"`
	VUnCom *string `xml:"vUnCom"`
	VProd  *string `xml:"vProd"`
}

type imposto struct {
	ICMS struct {
		// ICMS00, ICMS20, ICMSSN102, ... only one group is present.
		Groups []icmsGroup `xml:",any"`
	} `xml:"ICMS"`
	IPI struct {
		Trib *ipiTrib `xml:"IPITrib"`
	} `xml:"IPI"`
}

type icmsGroup struct {
	CST   *string `xml:"CST"`
	VBC   *string `xml:"vBC"`
	PICMS *string `xml:"pICMS"`
	VICMS *string `xml:"vICMS"`
}

type ipiTrib struct {
	CST  *string `xml:"CST"`
	PIPI *string `xml:"pIPI"`
	VIPI *string `xml:"vIPI"`
}

// Parse reads one NF-e document (nfeProc or bare NFe) and returns one Record per det element.
func Parse(r io.Reader) ([]Record, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, errors.Wrap(ErrMalformedRecord, "no infNFe element")
		}
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "read xml: %v", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "infNFe" || start.Name.Space != Namespace {
			continue
		}

		var doc infNFe
		if err := dec.DecodeElement(&doc, &start); err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "decode infNFe: %v", err)
		}
		return doc.records()
	}
}

func (doc infNFe) records() ([]Record, error) {
	issued, err := formatIssueDate(doc.Ide.DhEmi)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(doc.Det))
	for i, d := range doc.Det {
		rec := Record{
			Number:      strings.TrimSpace(doc.Ide.NNF),
			IssueDate:   issued,
			IssuerName:  strings.TrimSpace(doc.Emit.XNome),
			IssuerUF:    strings.TrimSpace(doc.Emit.EnderEmit.UF),
			IssuerCNPJ:  strings.TrimSpace(doc.Emit.CNPJ),
			ProductCode: strings.TrimSpace(d.Prod.CProd),
			Description: strings.TrimSpace(d.Prod.XProd),
			NCM:         strings.TrimSpace(d.Prod.NCM),
			CFOP:        strings.TrimSpace(d.Prod.CFOP),
			Unit:        strings.TrimSpace(d.Prod.UCom),
		}
		if err := d.fill(&rec); err != nil {
			return nil, errors.Wrapf(err, "det %d", i+1)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d det) fill(rec *Record) error {
	var err error
	if rec.Quantity, _, err = number("qCom", d.Prod.QCom); err != nil {
		return err
	}
	if rec.UnitPrice, _, err = number("vUnCom", d.Prod.VUnCom); err != nil {
		return err
	}
	if rec.ProductValue, _, err = number("vProd", d.Prod.VProd); err != nil {
		return err
	}

	if len(d.Imposto.ICMS.Groups) > 0 {
		g := d.Imposto.ICMS.Groups[0]
		rec.ICMSCST = text(g.CST)
		if rec.ICMSBase, _, err = number("vBC", g.VBC); err != nil {
			return err
		}
		if rec.ICMSRate, rec.hasICMSRate, err = number("pICMS", g.PICMS); err != nil {
			return err
		}
		if rec.ICMSValue, _, err = number("vICMS", g.VICMS); err != nil {
			return err
		}
	}

	if t := d.Imposto.IPI.Trib; t != nil {
		rec.IPICST = text(t.CST)
		if rec.IPIRate, rec.hasIPIRate, err = number("pIPI", t.PIPI); err != nil {
			return err
		}
		if rec.IPIValue, _, err = number("vIPI", t.VIPI); err != nil {
			return err
		}
	}

	rec.ItemTotal = rec.ProductValue + rec.IPIValue
	return nil
}

// number parses an optional decimal element. Absent elements are 0.
func number(field string, raw *string) (float64, bool, error) {
	if raw == nil {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, errors.Wrapf(ErrMalformedRecord, "%s: %q is not a number", field, *raw)
	}
	return v, true, nil
}

func text(raw *string) string {
	if raw == nil {
		return ""
	}
	return strings.TrimSpace(*raw)
}

func formatIssueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) < 19 {
		return "", errors.Wrapf(ErrMalformedRecord, "dhEmi: %q", raw)
	}
	t, err := time.Parse("2006-01-02T15:04:05", raw[:19])
	if err != nil {
		return "", errors.Wrapf(ErrMalformedRecord, "dhEmi: %q", raw)
	}
	return t.Format("02/01/2006"), nil
}

// File is a named XML source, typically an uploaded file.
type File struct {
	Name   string
	Reader io.Reader
}

// FileError is the failure of one file in ParseFiles.
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// ParseFiles parses every file in order. A file that fails is reported and skipped.
func ParseFiles(files []File) ([]Record, []FileError) {
	var (
		records []Record
		failed  []FileError
	)
	for _, f := range files {
		recs, err := Parse(f.Reader)
		if err != nil {
			failed = append(failed, FileError{Name: f.Name, Err: err})
			continue
		}
		records = append(records, recs...)
	}
	return records, failed
}
