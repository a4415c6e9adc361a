package report

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/guregu/null.v3"

	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
)

func sampleExamination() *examination.Examination {
	in := examination.NewCreateInput()
	e := &examination.Examination{
		ID:              uuid.New(),
		ExamDatetime:    time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC),
		Age:             null.IntFrom(61),
		Height:          examination.NewMeasure(172),
		Weight:          examination.NewMeasure(80.5),
		BSA:             examination.NewMeasure(1.96),
		Aorta:           in.Aorta,
		AorticValve:     in.AorticValve,
		LeftVentricle:   in.LeftVentricle,
		OtherChambers:   in.OtherChambers,
		MitralValve:     in.MitralValve,
		TricuspidValve:  in.TricuspidValve,
		PulmonaryArtery: in.PulmonaryArtery,
		Patient:         &examination.Patient{FullName: "Sokolova Maria"},
	}
	e.Aorta.Diameter = examination.NewMeasure(32)
	e.LeftVentricle.EDV = examination.NewMeasure(120)
	e.LeftVentricle.ESV = examination.NewMeasure(50)
	e.AorticValve.Regurgitation = 1
	e.MitralValve.Enabled = false
	return e
}

func TestBuild(t *testing.T) {
	r := Build(sampleExamination(), "Central City Hospital")

	assert.Equal(t, "Central City Hospital", r.Institution)
	assert.Equal(t, Title, r.Title)
	assert.Equal(t, "Sokolova Maria", r.PatientName)
	assert.Equal(t, "07.03.2024", r.Date)
	assert.Equal(t, "61 years", patientRow(r, "Age"))
	assert.Equal(t, "80.5 kg", patientRow(r, "Weight"))
	assert.Equal(t, Missing, patientRow(r, "Heart rate"))

	assert.Nil(t, r.Section(SectionMitralValve), "disabled panel must be skipped")
	require.NotNil(t, r.Section(SectionAorta))
	assert.Equal(t, "32 mm", r.Section(SectionAorta).Rows[0].Text())
	assert.Equal(t, Missing, r.Section(SectionAorta).Rows[1].Text())

	lv := r.Section(SectionLeftVentricle)
	require.NotNil(t, lv)
	assert.Equal(t, "58.3 %", lv.Rows[len(lv.Rows)-1].Text())
	assert.Equal(t, "1 deg.", r.Section(SectionAorticValve).Rows[4].Text())
}

func TestBuild_MissingValues(t *testing.T) {
	r := Build(&examination.Examination{}, "X")
	assert.Equal(t, Missing, r.PatientName)
	assert.Equal(t, Missing, r.Date)
	assert.Empty(t, r.Sections)
}

func TestWallMotion(t *testing.T) {
	r := Build(sampleExamination(), "X")
	summary, lines := r.WallMotion()
	assert.Equal(t, "No regional wall motion abnormalities.", summary)
	assert.Empty(t, lines)

	r.Segments[2] = examination.SegmentAkinesis
	r.Segments[16] = examination.SegmentDyskinesis
	summary, lines = r.WallMotion()
	assert.Equal(t, wallMotionBad, summary)
	assert.Equal(t, []string{"Segment 3: Akinesis", "Segment 17: Dyskinesis"}, lines)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Echo_Sokolova Maria.pdf", FileName("Sokolova Maria", "pdf"))
	assert.Equal(t, "Echo_a_b.docx", FileName(` a/b" `, "docx"))
}

func newRegistry() *Registry {
	return Default("Central City Hospital", zerolog.Nop())
}

func TestRegistry(t *testing.T) {
	reg := newRegistry()
	assert.Equal(t, []string{"csv", "docx", "pdf", "xlsx"}, reg.Formats())
	assert.True(t, reg.Supports("pdf"))
	assert.False(t, reg.Supports("odt"))
	assert.Nil(t, reg.Find("odt"))

	_, err := reg.Export(context.Background(), sampleExamination(), "odt")
	assert.True(t, errors.Is(err, examination.ErrUnknownFormat))
}

func TestRegistry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRegistry().Export(ctx, sampleExamination(), "csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func export(t *testing.T, format string) *examination.Document {
	t.Helper()
	e := sampleExamination()
	e.Segments[0] = examination.SegmentHypokinesis
	doc, err := newRegistry().Export(context.Background(), e, format)
	require.NoError(t, err)
	assert.Equal(t, "Echo_Sokolova Maria."+format, doc.Filename)
	require.NotEmpty(t, doc.Body)
	return doc
}

func TestExport_DOCX(t *testing.T) {
	doc := export(t, "docx")
	assert.Contains(t, doc.ContentType, "wordprocessingml")

	zr, err := zip.NewReader(bytes.NewReader(doc.Body), int64(len(doc.Body)))
	require.NoError(t, err)
	var body string
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			b, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			body = string(b)
		}
	}
	require.NotEmpty(t, body, "document.xml missing")
	assert.Contains(t, body, "Central City Hospital")
	assert.Contains(t, body, "ECHOCARDIOGRAPHY REPORT")
	assert.Contains(t, body, "Sokolova Maria")
	assert.Contains(t, body, "AORTA")
	assert.Contains(t, body, "58.3 %")
	assert.Contains(t, body, "Segment 1: Hypokinesis")
	assert.NotContains(t, body, "PULMONARY ARTERY", "docx carries the core panels only")
}

func TestExport_XLSX(t *testing.T) {
	doc := export(t, "xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(doc.Body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{xlsxSheet}, f.GetSheetList())
	title, err := f.GetCellValue(xlsxSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, Title, title)
	name, err := f.GetCellValue(xlsxSheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "Sokolova Maria", name)
	section, err := f.GetCellValue(xlsxSheet, "A8")
	require.NoError(t, err)
	assert.Equal(t, "Aorta", section)

	width, err := f.GetColWidth(xlsxSheet, "A")
	require.NoError(t, err)
	assert.Equal(t, 30.0, width)
}

func TestExport_PDF(t *testing.T) {
	doc := export(t, "pdf")
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF-")))
}

func TestExport_CSV(t *testing.T) {
	doc := export(t, "csv")

	var rows []*csvRow
	require.NoError(t, gocsv.UnmarshalBytes(doc.Body, &rows))
	assert.True(t, strings.HasPrefix(string(doc.Body), "section,parameter,value,unit"))

	find := func(section, param string) *csvRow {
		for _, r := range rows {
			if r.Section == section && r.Parameter == param {
				return r
			}
		}
		return nil
	}
	require.NotNil(t, find("patient", "Name"))
	assert.Equal(t, "Sokolova Maria", find("patient", "Name").Value)
	require.NotNil(t, find(SectionAorta, "Root diameter"))
	assert.Equal(t, "32", find(SectionAorta, "Root diameter").Value)
	assert.Equal(t, "mm", find(SectionAorta, "Root diameter").Unit)
	assert.Equal(t, Missing, find(SectionAorta, "Aortic valve opening").Value)
	assert.Nil(t, find(SectionMitralValve, "E velocity"))
	assert.Equal(t, "Hypokinesis", find("segments", "Segment 1").Value)
	assert.Equal(t, "Normal", find("segments", "Segment 17").Value)
}

func TestBullseye(t *testing.T) {
	var segments examination.SegmentStates
	segments[16] = examination.SegmentDyskinesis

	b, err := BullseyePNG(segments)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, BullseyeSize, img.Bounds().Dx())

	// A point inside the apex, clear of its label.
	r, g, bl, _ := img.At(BullseyeSize/2+10, BullseyeSize/2+12).RGBA()
	want := stateColors[examination.SegmentDyskinesis]
	assert.InDelta(t, want[0], float64(r)/0xffff, 0.02)
	assert.InDelta(t, want[1], float64(g)/0xffff, 0.02)
	assert.InDelta(t, want[2], float64(bl)/0xffff, 0.02)
}

func TestBullseye_Concurrent(t *testing.T) {
	var segments examination.SegmentStates
	segments[0] = examination.SegmentHypokinesis

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := BullseyePNG(segments)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestWordDoc_Table(t *testing.T) {
	d := &wordDoc{}
	d.table([]Row{{Label: "EF", Value: "58.3", Unit: "%"}})
	want := `<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr>` +
		`<w:tblGrid><w:gridCol w:w="4320"/><w:gridCol w:w="3600"/></w:tblGrid>` +
		`<w:tr>` +
		`<w:tc><w:tcPr><w:tcW w:w="4320" w:type="dxa"/></w:tcPr><w:p><w:r><w:t xml:space="preserve">EF:</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:tcPr><w:tcW w:w="3600" w:type="dxa"/></w:tcPr><w:p><w:r><w:t xml:space="preserve">58.3 %</w:t></w:r></w:p></w:tc>` +
		`</w:tr></w:tbl>`
	assert.Equal(t, want, d.b.String())
}

func TestWordDoc_Runs(t *testing.T) {
	d := &wordDoc{}
	d.paragraph(true, run{text: "A<B>\tC\nD", bold: true, size: 28})
	want := `<w:p><w:pPr><w:jc w:val="center"/></w:pPr>` +
		`<w:r><w:rPr><w:b/><w:sz w:val="28"/><w:szCs w:val="28"/></w:rPr>` +
		`<w:t xml:space="preserve">A&lt;B&gt;</w:t><w:tab/><w:t xml:space="preserve">C</w:t>` +
		`<w:br/><w:t xml:space="preserve">D</w:t></w:r></w:p>`
	assert.Equal(t, want, d.b.String())
}

func TestDocxDocument_WellFormed(t *testing.T) {
	r := Build(sampleExamination(), "Clinic & Co")
	r.PatientName = `O'Brien <"Jr">`
	doc := docxDocument(r)

	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Contains(t, doc, "Clinic &amp; Co")
	assert.True(t, strings.HasSuffix(doc, "</w:sectPr></w:body></w:document>"))
}
