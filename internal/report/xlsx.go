package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Report"

// XLSX writes a one-sheet workbook laid out like the paper report.
type XLSX struct{}

func (XLSX) Format() string { return "xlsx" }
func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

type xlsxStyles struct {
	bold, normal, title, header, sectionTitle, cell int
}

func newXLSXStyles(f *excelize.File) (*xlsxStyles, error) {
	thin := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	defs := []*excelize.Style{
		{Font: &excelize.Font{Family: "Arial", Size: 10, Bold: true}},
		{Font: &excelize.Font{Family: "Arial", Size: 10}},
		{Font: &excelize.Font{Family: "Arial", Size: 12, Bold: true}, Alignment: &excelize.Alignment{Horizontal: "center"}},
		{Font: &excelize.Font{Family: "Arial", Size: 10, Bold: true}, Alignment: &excelize.Alignment{Horizontal: "center"}},
		{
			Font:      &excelize.Font{Family: "Arial", Size: 10, Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"EEEEEE"}, Pattern: 1},
			Border:    thin,
		},
		{Font: &excelize.Font{Family: "Arial", Size: 10}, Border: thin},
	}
	ids := make([]int, len(defs))
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return nil, fmt.Errorf("xlsx style: %w", err)
		}
		ids[i] = id
	}
	return &xlsxStyles{bold: ids[0], normal: ids[1], title: ids[2], header: ids[3], sectionTitle: ids[4], cell: ids[5]}, nil
}

// xlsxSheetWriter keeps the first error so the layout code stays linear.
type xlsxSheetWriter struct {
	f   *excelize.File
	err error
}

func (s *xlsxSheetWriter) value(cell string, v interface{}, style int) {
	if s.err != nil {
		return
	}
	if s.err = s.f.SetCellValue(xlsxSheet, cell, v); s.err != nil {
		return
	}
	s.err = s.f.SetCellStyle(xlsxSheet, cell, cell, style)
}

func (s *xlsxSheetWriter) merge(from, to string) {
	if s.err == nil {
		s.err = s.f.MergeCell(xlsxSheet, from, to)
	}
}

func (s *xlsxSheetWriter) style(from, to string, style int) {
	if s.err == nil {
		s.err = s.f.SetCellStyle(xlsxSheet, from, to, style)
	}
}

func (XLSX) Render(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	for col, width := range map[string]float64{"A": 30, "B": 15, "C": 30, "D": 15} {
		if err := f.SetColWidth(xlsxSheet, col, col, width); err != nil {
			return fmt.Errorf("xlsx column %s: %w", col, err)
		}
	}
	st, err := newXLSXStyles(f)
	if err != nil {
		return err
	}

	s := &xlsxSheetWriter{f: f}
	s.merge("A1", "D1")
	s.value("A1", r.Institution, st.header)
	s.merge("A2", "D2")
	s.value("A2", r.Title, st.title)

	s.value("A4", "Patient:", st.bold)
	s.value("B4", r.PatientName, st.normal)
	s.value("C4", "Examination date:", st.bold)
	s.value("D4", r.Date, st.normal)
	s.value("A5", "Age:", st.bold)
	s.value("B5", patientRow(r, "Age"), st.normal)
	s.value("C5", "Height / Weight:", st.bold)
	s.value("D5", patientRow(r, "Height")+" / "+patientRow(r, "Weight"), st.normal)
	s.value("A6", "BSA:", st.bold)
	s.value("B6", patientRow(r, "BSA"), st.normal)
	s.value("C6", "Heart rate:", st.bold)
	s.value("D6", patientRow(r, "Heart rate"), st.normal)

	row := 8
	section := func(title string, rows []Row) {
		a, d := fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row)
		s.merge(a, d)
		s.value(a, title, st.sectionTitle)
		s.style(a, d, st.sectionTitle)
		row++
		for _, item := range rows {
			a, b, d := fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), fmt.Sprintf("D%d", row)
			s.value(a, item.Label, st.cell)
			s.merge(b, d)
			s.value(b, item.Text(), st.cell)
			s.style(b, d, st.cell)
			row++
		}
		row++
	}

	for _, sec := range r.Sections {
		section(sec.Title, sec.Rows)
	}
	section(r.Metrics.Title, r.Metrics.Rows)

	summary, lines := r.WallMotion()
	wall := make([]Row, 0, len(lines)+1)
	if len(lines) == 0 {
		wall = append(wall, Row{Label: "Result", Value: summary})
	}
	for _, n := range r.Segments.Abnormal() {
		wall = append(wall, Row{Label: fmt.Sprintf("Segment %d", n), Value: r.Segments.State(n).String()})
	}
	section("Regional wall motion", wall)

	if s.err != nil {
		return fmt.Errorf("xlsx layout: %w", s.err)
	}
	_, err = f.WriteTo(w)
	return err
}
