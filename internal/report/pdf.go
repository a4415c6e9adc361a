package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const pdfFont = "GoFont"

// PDF writes an A4 report with every enabled panel, the derived metrics and
// the bull's-eye diagram. Text uses an embedded UTF-8 font so any patient
// name renders.
type PDF struct {
	regular, bold []byte
}

func NewPDF() PDF {
	return PDF{regular: goregular.TTF, bold: gobold.TTF}
}

func (PDF) Format() string      { return "pdf" }
func (PDF) ContentType() string { return "application/pdf" }

func (p PDF) Render(w io.Writer, r *Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddUTF8FontFromBytes(pdfFont, "", p.regular)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", p.bold)
	pdf.SetTitle(r.Title, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	pdf.SetFont(pdfFont, "B", 11)
	pdf.CellFormat(width, 6, r.Institution, "", 1, "C", false, 0, "")
	pdf.SetFont(pdfFont, "B", 14)
	pdf.CellFormat(width, 9, r.Title, "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont(pdfFont, "", 10)
	pair := func(label, value string, w float64, ln int) {
		pdf.SetFont(pdfFont, "B", 10)
		lw := pdf.GetStringWidth(label) + 2
		pdf.CellFormat(lw, 6, label, "", 0, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		pdf.CellFormat(w-lw, 6, value, "", ln, "L", false, 0, "")
	}
	half := width / 2
	pair("Name:", r.PatientName, half, 0)
	pair("Date:", r.Date, half, 1)
	pair("Age:", patientRow(r, "Age"), half/1.5, 0)
	pair("Height:", patientRow(r, "Height"), half/1.5, 0)
	pair("Weight:", patientRow(r, "Weight"), half/1.5, 1)
	pair("BMI:", patientRow(r, "BMI"), half/1.5, 0)
	pair("BSA:", patientRow(r, "BSA"), half/1.5, 0)
	pair("Heart rate:", patientRow(r, "Heart rate"), half/1.5, 1)

	y := pdf.GetY() + 2
	pdf.Line(left, y, pageW-right, y)
	pdf.SetY(y + 3)

	table := func(title string, rows []Row) {
		pdf.SetFont(pdfFont, "B", 11)
		pdf.SetFillColor(238, 238, 238)
		pdf.CellFormat(width, 7, strings.ToUpper(title), "1", 1, "C", true, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		for _, row := range rows {
			pdf.CellFormat(width*0.6, 6, row.Label, "1", 0, "L", false, 0, "")
			pdf.CellFormat(width*0.4, 6, row.Text(), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}
	for _, s := range r.Sections {
		table(s.Title, s.Rows)
	}
	table(r.Metrics.Title, r.Metrics.Rows)

	pdf.SetFont(pdfFont, "B", 11)
	pdf.CellFormat(width, 7, "REGIONAL WALL MOTION", "", 1, "L", false, 0, "")
	pdf.SetFont(pdfFont, "", 10)
	summary, lines := r.WallMotion()
	pdf.MultiCell(width, 5, summary, "", "L", false)
	for _, line := range lines {
		pdf.MultiCell(width, 5, line, "", "L", false)
	}
	pdf.Ln(2)

	png, err := BullseyePNG(r.Segments)
	if err != nil {
		return err
	}
	const imgSize = 70.0
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("bullseye", opts, bytes.NewReader(png))
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+imgSize > pageH-15 {
		pdf.AddPage()
	}
	pdf.ImageOptions("bullseye", left+(width-imgSize)/2, pdf.GetY(), imgSize, imgSize, true, opts, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("pdf layout: %w", err)
	}
	return pdf.Output(w)
}
