package report

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

// Meta is the header information printed on a PDF report.
type Meta struct {
	Title       string
	Variant     taxcalc.BaseVariant
	GeneratedAt time.Time
}

// WriteComparisonPDF renders the comparison table and cost summary as a one-page PDF.
func WriteComparisonPDF(w io.Writer, result taxcalc.Result, meta Meta) error {
	if meta.Title == "" {
		meta.Title = "Simulador de Importação - Reforma Tributária"
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now()
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, meta.Title, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
	)
	m.AddRow(12,
		col.New(6).Add(
			text.New("Gerado em: "+meta.GeneratedAt.Format("02/01/2006 15:04"), props.Text{Size: 9}),
			text.New("Base de cálculo: "+variantLabel(meta.Variant), props.Text{Size: 9, Top: 4}),
		),
		col.New(6),
	)

	summary := [][2]string{
		{"Valor Aduaneiro", FormatBRL(result.CustomsValue)},
		{"Custo Total Após Reforma", FormatBRL(result.TotalCostReform)},
		{"Custo Total Antes da Reforma", FormatBRL(result.TotalCostCurrent)},
	}
	for _, s := range summary {
		m.AddRow(7,
			text.NewCol(6, s[0], props.Text{Size: 10, Style: fontstyle.Bold}),
			text.NewCol(6, s[1], props.Text{Size: 10, Align: align.Right}),
		)
	}

	m.AddRow(8, col.New(12))
	m.AddRow(8,
		text.NewCol(4, HeaderTax, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, HeaderReform, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(4, HeaderCurrent, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, r := range ComparisonRows(result) {
		style := fontstyle.Normal
		if r.IsTotal {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			text.NewCol(4, r.Tax, props.Text{Size: 9, Style: style}),
			text.NewCol(4, FormatBRL(r.Reform), props.Text{Size: 9, Style: style, Align: align.Right}),
			text.NewCol(4, FormatBRL(r.Current), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return errors.Wrap(err, "generate pdf")
	}
	if _, err := w.Write(doc.GetBytes()); err != nil {
		return errors.Wrap(err, "write pdf")
	}
	return nil
}

func variantLabel(v taxcalc.BaseVariant) string {
	switch v {
	case taxcalc.FlatBase:
		return "Base única (valor aduaneiro)"
	case taxcalc.CascadingBase:
		return "Base em cascata (ICMS por dentro)"
	default:
		return v.String()
	}
}
