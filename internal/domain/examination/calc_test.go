package examination

import (
	"encoding/json"
	"testing"

	"gopkg.in/guregu/null.v3"
)

func TestBMIAndBSA(t *testing.T) {
	h, w := NewMeasure(180), NewMeasure(81)

	bmi, ok := BMI(h, w)
	if !ok || bmi != 25 {
		t.Errorf("expected BMI 25, got %v (%v)", bmi, ok)
	}
	bsa, ok := BSA(h, w)
	if !ok || bsa != 2.01 {
		t.Errorf("expected BSA 2.01, got %v (%v)", bsa, ok)
	}

	if _, ok := BMI(Measure{}, w); ok {
		t.Error("expected no BMI without height")
	}
	if _, ok := BSA(h, NewMeasure(0)); ok {
		t.Error("expected no BSA with zero weight")
	}
}

func TestEjectionFraction(t *testing.T) {
	ef, ok := EjectionFraction(LeftVentricle{EDV: NewMeasure(120), ESV: NewMeasure(50)})
	if !ok || ef != 58.3 {
		t.Errorf("expected EF 58.3, got %v", ef)
	}
	if _, ok := EjectionFraction(LeftVentricle{EDV: NewMeasure(120)}); ok {
		t.Error("expected no EF without ESV")
	}
	if _, ok := EjectionFraction(LeftVentricle{EDV: NewMeasure(0), ESV: NewMeasure(50)}); ok {
		t.Error("expected no EF with zero EDV")
	}
}

func sampleExamination() *Examination {
	return &Examination{
		Height: NewMeasure(180),
		Weight: NewMeasure(81),
		BSA:    NewMeasure(2),
		HR:     null.IntFrom(70),
		LeftVentricle: LeftVentricle{
			Enabled: true,
			IVSd:    NewMeasure(1),
			EDD:     NewMeasure(5),
			ESD:     NewMeasure(3),
			PW:      NewMeasure(1),
			EDV:     NewMeasure(120),
			ESV:     NewMeasure(50),
		},
		OtherChambers:   OtherChambers{Enabled: true, LAV: NewMeasure(50)},
		MitralValve:     MitralValve{Enabled: true, E: NewMeasure(0.8), A: NewMeasure(0.6)},
		TricuspidValve:  TricuspidValve{Enabled: true, E: NewMeasure(0.5)},
		PulmonaryArtery: PulmonaryArtery{Enabled: true, AT: NewMeasure(100), ET: NewMeasure(300)},
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(sampleExamination())

	tests := []struct {
		name string
		got  null.Float
		want float64
	}{
		{"ef", m.EF, 58.3},
		{"sv", m.SV, 70},
		{"mo", m.MO, 4900},
		{"co", m.CO, 4.9},
		{"ci", m.CI, 2.45},
		{"fs", m.FS, 40},
		{"lvm", m.LVM, 186},
		{"lvmi", m.LVMI, 93},
		{"rwt", m.RWT, 0.4},
		{"lavi", m.LAVI, 25},
		{"mitral_ea", m.MitralEA, 1.33},
		{"at_et", m.ATET, 0.33},
		{"mpap", m.MPAP, 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Valid || tt.got.Float64 != tt.want {
				t.Errorf("expected %v, got %+v", tt.want, tt.got)
			}
		})
	}

	if m.TricuspidEA.Valid {
		t.Error("expected no tricuspid E/A without A")
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(&Examination{})
	if m != (Metrics{}) {
		t.Errorf("expected no metrics, got %+v", m)
	}
}

func TestComputeMetrics_BSAFromHeightWeight(t *testing.T) {
	e := sampleExamination()
	e.BSA = Measure{}
	m := ComputeMetrics(e)
	if !m.LAVI.Valid || m.LAVI.Float64 != 24.9 {
		t.Errorf("expected LAVi 24.9 from derived BSA 2.01, got %+v", m.LAVI)
	}
}

func TestComputeMetrics_OverflowStaysNull(t *testing.T) {
	e := &Examination{
		HR:            null.IntFrom(70),
		LeftVentricle: LeftVentricle{Enabled: true, EDV: NewMeasure(1e308), ESV: NewMeasure(1)},
	}
	m := ComputeMetrics(e)
	if m.MO.Valid || m.CO.Valid {
		t.Errorf("expected overflowing MO and CO to be null, got %+v %+v", m.MO, m.CO)
	}
	if !m.SV.Valid || m.SV.Float64 != 1e308 {
		t.Errorf("expected SV kept unrounded, got %+v", m.SV)
	}
	if !m.EF.Valid || m.EF.Float64 != 100 {
		t.Errorf("expected EF 100, got %+v", m.EF)
	}
	if _, err := json.Marshal(m); err != nil {
		t.Errorf("metrics must encode, got %v", err)
	}
}

func TestNearestMPAP(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{0.1, 69},
		{0.22, 69},
		{0.23, 50},
		{0.41, 19},
		{0.9, 13},
	}
	for _, tt := range tests {
		if got := nearestMPAP(tt.ratio); got != tt.want {
			t.Errorf("nearestMPAP(%v) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}
