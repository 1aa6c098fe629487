package render

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.DocumentRenderer = (*PDFRenderer)(nil)

// PDFRenderer produces A4 documents with the core Helvetica font.
type PDFRenderer struct {
	now func() time.Time
}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{now: time.Now} }

func (r *PDFRenderer) Format() model.Format { return model.FormatPDF }

func (r *PDFRenderer) Render(w io.Writer, in adapter.RenderInput) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	// core fonts are cp1252; translate UTF-8 input
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(in.Title, true)
	pdf.SetCreator("Formative Compliance", true)
	pdf.SetCreationDate(r.now())
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s  |  Page %d", in.Title, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(in.Title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	for _, l := range businessLines(headerOf(in)) {
		pdf.CellFormat(0, 5, tr(l), "", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	for _, b := range parseBlocks(in.Body) {
		switch b.kind {
		case blockHeading:
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, tr(b.text), "", "L", false)
			pdf.Ln(1)
		case blockBullet:
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetX(25)
			pdf.MultiCell(0, 6, tr("- "+b.text), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr(b.text), "", "J", false)
			pdf.Ln(2)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func headerOf(in adapter.RenderInput) renderHeader {
	return renderHeader{
		business: in.Business.BusinessName,
		abn:      in.Business.ABN,
		state:    in.Business.State,
		industry: in.Industry,
	}
}
