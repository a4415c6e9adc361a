package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/Pryanik-M/LiveHeart/internal/domain/examination"
)

const (
	Title         = "ECHOCARDIOGRAPHY REPORT"
	Missing       = "-"
	dateLayout    = "02.01.2006"
	wallMotionOK  = "No regional wall motion abnormalities."
	wallMotionBad = "Regional wall motion abnormalities:"
)

// Section keys.
const (
	SectionAorta           = "aorta"
	SectionAorticValve     = "aortic_valve"
	SectionLeftVentricle   = "left_ventricle"
	SectionOtherChambers   = "other_chambers"
	SectionMitralValve     = "mitral_valve"
	SectionTricuspidValve  = "tricuspid_valve"
	SectionPulmonaryArtery = "pulmonary_artery"
	SectionMetrics         = "metrics"
)

// Row is one labelled value. An empty Value renders as "-".
type Row struct {
	Label string
	Value string
	Unit  string
}

// Text renders the value with its unit.
func (r Row) Text() string {
	if r.Value == "" {
		return Missing
	}
	if r.Unit == "" {
		return r.Value
	}
	return r.Value + " " + r.Unit
}

type Section struct {
	Key   string
	Title string
	Rows  []Row
}

// Report is the format-independent content of an export.
type Report struct {
	Institution string
	Title       string
	PatientName string
	Date        string
	Patient     []Row
	// Sections holds the enabled panels in display order.
	Sections []Section
	Metrics  Section
	Segments examination.SegmentStates
}

// Section returns the section with key, or nil when it was disabled.
func (r *Report) Section(key string) *Section {
	for i := range r.Sections {
		if r.Sections[i].Key == key {
			return &r.Sections[i]
		}
	}
	return nil
}

// WallMotion returns the summary line and one line per abnormal segment.
func (r *Report) WallMotion() (string, []string) {
	abnormal := r.Segments.Abnormal()
	if len(abnormal) == 0 {
		return wallMotionOK, nil
	}
	lines := make([]string, 0, len(abnormal))
	for _, n := range abnormal {
		lines = append(lines, fmt.Sprintf("Segment %d: %s", n, r.Segments.State(n)))
	}
	return wallMotionBad, lines
}

// FormatDate renders t as dd.mm.yyyy, or "-" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return Missing
	}
	return t.Format(dateLayout)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func measure(label string, m examination.Measure, unit string) Row {
	if !m.Valid {
		return Row{Label: label, Unit: unit}
	}
	return Row{Label: label, Value: num(m.Float64), Unit: unit}
}

func integer(label string, v null.Int, unit string) Row {
	if !v.Valid {
		return Row{Label: label, Unit: unit}
	}
	return Row{Label: label, Value: strconv.FormatInt(v.Int64, 10), Unit: unit}
}

func degree(label string, v int) Row {
	return Row{Label: label, Value: strconv.Itoa(v), Unit: "deg."}
}

func metric(label string, v null.Float, unit string) Row {
	if !v.Valid {
		return Row{Label: label, Unit: unit}
	}
	return Row{Label: label, Value: num(v.Float64), Unit: unit}
}

// Build collects the content of e. Disabled panels are left out.
func Build(e *examination.Examination, institution string) *Report {
	r := &Report{
		Institution: institution,
		Title:       Title,
		PatientName: Missing,
		Date:        FormatDate(e.ExamDatetime),
		Segments:    e.Segments,
	}
	if e.Patient != nil && strings.TrimSpace(e.Patient.FullName) != "" {
		r.PatientName = e.Patient.FullName
	}

	r.Patient = []Row{
		integer("Age", e.Age, "years"),
		measure("Height", e.Height, "cm"),
		measure("Weight", e.Weight, "kg"),
		measure("BMI", e.BMI, "kg/m²"),
		measure("BSA", e.BSA, "m²"),
		integer("Heart rate", e.HR, "bpm"),
	}

	m := examination.ComputeMetrics(e)

	if a := e.Aorta; a.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionAorta, Title: "Aorta", Rows: []Row{
			measure("Root diameter", a.Diameter, "mm"),
			measure("Aortic valve opening", a.ValveOpening, "mm"),
		}})
	}
	if av := e.AorticValve; av.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionAorticValve, Title: "Aortic valve", Rows: []Row{
			measure("Peak velocity (Vmax)", av.PSK, "m/s"),
			measure("Max pressure gradient", av.GradMax, "mmHg"),
			measure("Mean pressure gradient", av.GradMean, "mmHg"),
			measure("Valve area", av.Area, "cm²"),
			degree("Regurgitation", av.Regurgitation),
		}})
	}
	if lv := e.LeftVentricle; lv.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionLeftVentricle, Title: "Left ventricle", Rows: []Row{
			measure("End-diastolic dimension (EDD)", lv.EDD, "mm"),
			measure("End-systolic dimension (ESD)", lv.ESD, "mm"),
			measure("End-diastolic volume (EDV)", lv.EDV, "ml"),
			measure("End-systolic volume (ESV)", lv.ESV, "ml"),
			measure("Septal thickness (IVSd)", lv.IVSd, "mm"),
			measure("Posterior wall thickness (PW)", lv.PW, "mm"),
			metric("Ejection fraction (Simpson)", m.EF, "%"),
		}})
	}
	if oc := e.OtherChambers; oc.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionOtherChambers, Title: "Other chambers", Rows: []Row{
			measure("Left atrium", oc.LA, "mm"),
			measure("Right atrium", oc.RA, "mm"),
			measure("Right ventricle", oc.RV, "mm"),
			measure("Left atrial volume", oc.LAV, "ml"),
		}})
	}
	if mv := e.MitralValve; mv.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionMitralValve, Title: "Mitral valve", Rows: []Row{
			measure("E velocity", mv.E, "m/s"),
			measure("A velocity", mv.A, "m/s"),
			metric("E/A", m.MitralEA, ""),
			measure("Max pressure gradient", mv.GradMax, "mmHg"),
			measure("Deceleration time (DTE)", mv.DTE, "ms"),
			measure("Isovolumic relaxation time (IVRT)", mv.IVRT, "ms"),
			degree("Regurgitation", mv.Reg),
		}})
	}
	if tv := e.TricuspidValve; tv.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionTricuspidValve, Title: "Tricuspid valve", Rows: []Row{
			measure("E velocity", tv.E, "m/s"),
			measure("A velocity", tv.A, "m/s"),
			metric("E/A", m.TricuspidEA, ""),
			measure("Max pressure gradient", tv.GradMax, "mmHg"),
			measure("TAPSE", tv.TAPSE, "mm"),
			degree("Regurgitation", tv.Reg),
		}})
	}
	if pa := e.PulmonaryArtery; pa.Enabled {
		r.Sections = append(r.Sections, Section{Key: SectionPulmonaryArtery, Title: "Pulmonary artery", Rows: []Row{
			measure("Trunk diameter", pa.Diameter, "mm"),
			measure("Max pressure gradient", pa.GradMax, "mmHg"),
			measure("Peak velocity", pa.Velocity, "m/s"),
			measure("Acceleration time (AT)", pa.AT, "ms"),
			measure("Ejection time (ET)", pa.ET, "ms"),
			metric("AT/ET", m.ATET, ""),
			metric("Mean pulmonary pressure (est.)", m.MPAP, "mmHg"),
			degree("Regurgitation", pa.Reg),
			measure("Inferior vena cava", pa.IVC, "mm"),
		}})
	}

	r.Metrics = Section{Key: SectionMetrics, Title: "Derived metrics", Rows: []Row{
		metric("Stroke volume", m.SV, "ml"),
		metric("Minute volume", m.MO, "ml/min"),
		metric("Cardiac output", m.CO, "l/min"),
		metric("Cardiac index", m.CI, "l/min/m²"),
		metric("Fractional shortening", m.FS, "%"),
		metric("LV mass (Devereux)", m.LVM, "g"),
		metric("LV mass index", m.LVMI, "g/m²"),
		metric("Relative wall thickness", m.RWT, ""),
		metric("LA volume index", m.LAVI, "ml/m²"),
	}}
	return r
}
