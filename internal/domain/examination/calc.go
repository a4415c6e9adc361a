package examination

import (
	"math"

	"gopkg.in/guregu/null.v3"
)

// Metrics are the values derived from an examination's measurements. A
// metric is null when one of its inputs is missing or zero.
type Metrics struct {
	EF          null.Float `json:"ef"`
	SV          null.Float `json:"sv"`
	MO          null.Float `json:"mo"`
	CO          null.Float `json:"co"`
	CI          null.Float `json:"ci"`
	FS          null.Float `json:"fs"`
	LVM         null.Float `json:"lvm"`
	LVMI        null.Float `json:"lvmi"`
	RWT         null.Float `json:"rwt"`
	LAVI        null.Float `json:"lavi"`
	MitralEA    null.Float `json:"mitral_ea"`
	TricuspidEA null.Float `json:"tricuspid_ea"`
	ATET        null.Float `json:"at_et"`
	MPAP        null.Float `json:"mpap"`
}

// mpapTable maps the pulmonary AT/ET ratio to mean pulmonary artery pressure.
var mpapTable = []struct {
	ratio float64
	mpap  float64
}{
	{0.20, 69},
	{0.25, 50},
	{0.30, 36},
	{0.35, 26},
	{0.40, 19},
	{0.45, 13},
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// set rounds v. Non-finite results stay null; values too large to round are
// kept as they are.
func set(v float64, digits int) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	if r := round(v, digits); !math.IsInf(r, 0) && !math.IsNaN(r) {
		v = r
	}
	return null.FloatFrom(v)
}

// BMI is weight / (height in m)², one decimal.
func BMI(height, weight Measure) (float64, bool) {
	h, okH := height.Usable()
	w, okW := weight.Usable()
	if !okH || !okW {
		return 0, false
	}
	return round(w/math.Pow(h/100, 2), 1), true
}

// BSA is the Mosteller body surface area in m², two decimals.
func BSA(height, weight Measure) (float64, bool) {
	h, okH := height.Usable()
	w, okW := weight.Usable()
	if !okH || !okW {
		return 0, false
	}
	return round(math.Sqrt(h*w/3600), 2), true
}

// EjectionFraction is the Simpson EF in percent, one decimal.
func EjectionFraction(lv LeftVentricle) (float64, bool) {
	edv, ok1 := lv.EDV.Usable()
	esv, ok2 := lv.ESV.Usable()
	if !ok1 || !ok2 {
		return 0, false
	}
	return round((edv-esv)/edv*100, 1), true
}

func heartRate(e *Examination) (float64, bool) {
	if e.LeftVentricle.HR.Valid && e.LeftVentricle.HR.Int64 != 0 {
		return float64(e.LeftVentricle.HR.Int64), true
	}
	if e.HR.Valid && e.HR.Int64 != 0 {
		return float64(e.HR.Int64), true
	}
	return 0, false
}

// ComputeMetrics derives the metrics of e.
func ComputeMetrics(e *Examination) Metrics {
	var m Metrics
	lv := e.LeftVentricle
	bsa, hasBSA := e.BSA.Usable()
	if !hasBSA {
		bsa, hasBSA = BSA(e.Height, e.Weight)
	}

	if edd, ok := lv.EDD.Usable(); ok {
		if esd, ok := lv.ESD.Usable(); ok {
			m.FS = set((edd-esd)/edd*100, 1)
		}
	}

	edv, okEDV := lv.EDV.Usable()
	esv, okESV := lv.ESV.Usable()
	if okEDV && okESV {
		sv := edv - esv
		m.SV = set(sv, 1)
		m.EF = set(sv/edv*100, 1)
		if hr, ok := heartRate(e); ok && sv != 0 {
			m.MO = set(sv*hr, 0)
			co := sv * hr / 1000
			m.CO = set(co, 2)
			if hasBSA {
				m.CI = set(co/bsa, 2)
			}
		}
	}

	edd, okEDD := lv.EDD.Usable()
	ivsd, okIVSd := lv.IVSd.Usable()
	pw, okPW := lv.PW.Usable()
	if okEDD && okIVSd && okPW {
		lvm := 0.8*(1.04*math.Pow(edd+ivsd+pw, 3)-math.Pow(edd, 3)) + 0.6
		m.LVM = set(lvm, 0)
		if hasBSA {
			m.LVMI = set(lvm/bsa, 1)
		}
	}
	if okEDD && okPW {
		m.RWT = set(2*pw/edd, 2)
	}

	if lav, ok := e.OtherChambers.LAV.Usable(); ok && hasBSA {
		m.LAVI = set(lav/bsa, 1)
	}

	m.MitralEA = ratio(e.MitralValve.E, e.MitralValve.A)
	m.TricuspidEA = ratio(e.TricuspidValve.E, e.TricuspidValve.A)

	if at, ok := e.PulmonaryArtery.AT.Usable(); ok {
		if et, ok := e.PulmonaryArtery.ET.Usable(); ok {
			r := at / et
			m.ATET = set(r, 2)
			m.MPAP = null.FloatFrom(nearestMPAP(r))
		}
	}
	return m
}

func ratio(num, den Measure) null.Float {
	n, ok1 := num.Usable()
	d, ok2 := den.Usable()
	if !ok1 || !ok2 {
		return null.Float{}
	}
	return set(n/d, 2)
}

func nearestMPAP(r float64) float64 {
	best := mpapTable[0]
	for _, row := range mpapTable[1:] {
		if math.Abs(row.ratio-r) < math.Abs(best.ratio-r) {
			best = row
		}
	}
	return best.mpap
}
