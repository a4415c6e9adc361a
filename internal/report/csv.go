package report

import (
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
)

type csvRow struct {
	Section   string `csv:"section"`
	Parameter string `csv:"parameter"`
	Value     string `csv:"value"`
	Unit      string `csv:"unit"`
}

// CSV writes one section,parameter,value,unit row per value.
type CSV struct{}

func (CSV) Format() string      { return "csv" }
func (CSV) ContentType() string { return "text/csv; charset=utf-8" }

func (CSV) Render(w io.Writer, r *Report) error {
	rows := []*csvRow{
		{Section: "patient", Parameter: "Name", Value: r.PatientName},
		{Section: "patient", Parameter: "Date", Value: r.Date},
	}
	add := func(section string, list []Row) {
		for _, row := range list {
			value := row.Value
			if value == "" {
				value = Missing
			}
			rows = append(rows, &csvRow{Section: section, Parameter: row.Label, Value: value, Unit: row.Unit})
		}
	}
	add("patient", r.Patient)
	for _, s := range r.Sections {
		add(s.Key, s.Rows)
	}
	add(r.Metrics.Key, r.Metrics.Rows)
	for n := 1; n <= len(r.Segments); n++ {
		rows = append(rows, &csvRow{
			Section:   "segments",
			Parameter: "Segment " + strconv.Itoa(n),
			Value:     r.Segments.State(n).String(),
		})
	}
	return gocsv.Marshal(&rows, w)
}
