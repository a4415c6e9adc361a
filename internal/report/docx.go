package report

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	docxDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

	// Times New Roman 12pt as the Normal style.
	docxStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults><w:rPrDefault><w:rPr>
<w:rFonts w:ascii="Times New Roman" w:hAnsi="Times New Roman" w:cs="Times New Roman"/>
<w:sz w:val="24"/><w:szCs w:val="24"/>
</w:rPr></w:rPrDefault></w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
</w:styles>`
)

// docxSections are the panels the Word report includes.
var docxSections = []string{SectionAorta, SectionAorticValve, SectionLeftVentricle}

// DOCX writes a WordprocessingML package.
type DOCX struct{}

func (DOCX) Format() string { return "docx" }
func (DOCX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func (DOCX) Render(w io.Writer, r *Report) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name, body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/_rels/document.xml.rels", docxDocumentRels},
		{"word/styles.xml", docxStyles},
		{"word/document.xml", docxDocument(r)},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("docx part %s: %w", p.name, err)
		}
		if _, err := io.WriteString(f, p.body); err != nil {
			return fmt.Errorf("docx part %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

type run struct {
	text string
	bold bool
	// size in half-points, 0 for the default
	size int
}

type wordDoc struct {
	b strings.Builder
}

func escape(s string) string {
	var sb strings.Builder
	xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func (d *wordDoc) runs(runs []run) {
	for _, r := range runs {
		d.b.WriteString("<w:r>")
		if r.bold || r.size > 0 {
			d.b.WriteString("<w:rPr>")
			if r.bold {
				d.b.WriteString("<w:b/>")
			}
			if r.size > 0 {
				fmt.Fprintf(&d.b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, r.size, r.size)
			}
			d.b.WriteString("</w:rPr>")
		}
		// Tabs and line breaks need their own elements.
		for i, line := range strings.Split(r.text, "\n") {
			if i > 0 {
				d.b.WriteString("<w:br/>")
			}
			for j, part := range strings.Split(line, "\t") {
				if j > 0 {
					d.b.WriteString("<w:tab/>")
				}
				if part != "" {
					fmt.Fprintf(&d.b, `<w:t xml:space="preserve">%s</w:t>`, escape(part))
				}
			}
		}
		d.b.WriteString("</w:r>")
	}
}

func (d *wordDoc) paragraph(center bool, runs ...run) {
	d.b.WriteString("<w:p>")
	if center {
		d.b.WriteString(`<w:pPr><w:jc w:val="center"/></w:pPr>`)
	}
	d.runs(runs)
	d.b.WriteString("</w:p>")
}

func (d *wordDoc) heading(text string) {
	d.b.WriteString(`<w:p><w:pPr><w:spacing w:before="240" w:after="60"/></w:pPr>`)
	d.runs([]run{{text: strings.ToUpper(text), bold: true, size: 26}})
	d.b.WriteString("</w:p>")
}

func (d *wordDoc) table(rows []Row) {
	d.b.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
	d.b.WriteString(`<w:tblGrid><w:gridCol w:w="4320"/><w:gridCol w:w="3600"/></w:tblGrid>`)
	for _, row := range rows {
		d.b.WriteString("<w:tr>")
		for i, text := range []string{row.Label + ":", row.Text()} {
			width := 4320
			if i == 1 {
				width = 3600
			}
			fmt.Fprintf(&d.b, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, width)
			d.paragraph(false, run{text: text})
			d.b.WriteString("</w:tc>")
		}
		d.b.WriteString("</w:tr>")
	}
	d.b.WriteString("</w:tbl>")
}

func patientRow(r *Report, label string) string {
	for _, row := range r.Patient {
		if row.Label == label {
			return row.Text()
		}
	}
	return Missing
}

func docxDocument(r *Report) string {
	d := &wordDoc{}
	d.b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	d.b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	d.paragraph(true, run{text: r.Institution, bold: true})
	d.paragraph(true, run{text: r.Title, bold: true, size: 28})
	d.paragraph(false)

	d.paragraph(false,
		run{text: "Name: ", bold: true}, run{text: r.PatientName + "\t\t"},
		run{text: "Date: ", bold: true}, run{text: r.Date})
	d.paragraph(false,
		run{text: "Age: ", bold: true}, run{text: patientRow(r, "Age") + "\t"},
		run{text: "Height: ", bold: true}, run{text: patientRow(r, "Height") + "\t"},
		run{text: "Weight: ", bold: true}, run{text: patientRow(r, "Weight")})
	d.paragraph(false,
		run{text: "BSA: ", bold: true}, run{text: patientRow(r, "BSA") + "\t"},
		run{text: "Heart rate: ", bold: true}, run{text: patientRow(r, "Heart rate")})
	d.paragraph(false, run{text: strings.Repeat("_", 70)})

	for _, key := range docxSections {
		if s := r.Section(key); s != nil {
			d.heading(s.Title)
			d.table(s.Rows)
		}
	}

	d.heading("Regional wall motion")
	summary, lines := r.WallMotion()
	if len(lines) == 0 {
		d.paragraph(false, run{text: summary})
	} else {
		d.paragraph(false, run{text: summary + "\n", bold: true}, run{text: strings.Join(lines, ", ")})
	}

	d.b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
		`<w:pgMar w:top="1134" w:right="850" w:bottom="1134" w:left="1701" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	d.b.WriteString("</w:body></w:document>")
	return d.b.String()
}
