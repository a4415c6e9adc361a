package examination

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Patient belongs to the physician who created it.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientSummary is a row of the patient list.
type PatientSummary struct {
	Patient
	ExaminationCount int        `json:"examination_count"`
	LatestExamAt     *time.Time `json:"latest_exam_at,omitempty"`
}

// PatientDetail is a patient with its examinations, newest first.
type PatientDetail struct {
	Patient
	Examinations []ExaminationSummary `json:"examinations"`
}

// ExaminationSummary is the short form listed under a patient.
type ExaminationSummary struct {
	ID           uuid.UUID `json:"id"`
	ExamDatetime time.Time `json:"exam_datetime"`
	Age          null.Int  `json:"age"`
	CreatedAt    time.Time `json:"created_at"`
}

// Examination is one echocardiography study with its panels and the wall
// motion of the 17 segments.
type Examination struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	ExamDatetime time.Time `json:"exam_datetime"`
	Age          null.Int  `json:"age"`
	Height       Measure   `json:"height"`
	Weight       Measure   `json:"weight"`
	BMI          Measure   `json:"bmi"`
	BSA          Measure   `json:"bsa"`
	HR           null.Int  `json:"hr"`
	CreatedAt    time.Time `json:"created_at"`

	Aorta           Aorta           `json:"aorta"`
	AorticValve     AorticValve     `json:"aortic_valve"`
	LeftVentricle   LeftVentricle   `json:"left_ventricle"`
	OtherChambers   OtherChambers   `json:"other_chambers"`
	MitralValve     MitralValve     `json:"mitral_valve"`
	TricuspidValve  TricuspidValve  `json:"tricuspid_valve"`
	PulmonaryArtery PulmonaryArtery `json:"pulmonary_artery"`
	Segments        SegmentStates   `json:"segments"`

	Patient *Patient `json:"patient,omitempty"`
}

type Aorta struct {
	Enabled      bool    `json:"is_enabled"`
	Diameter     Measure `json:"diameter"`
	ValveOpening Measure `json:"valve_opening"`
}

type AorticValve struct {
	Enabled       bool    `json:"is_enabled"`
	PSK           Measure `json:"psk"`
	GradMax       Measure `json:"grad_max"`
	GradMean      Measure `json:"grad_mean"`
	Regurgitation int     `json:"regurgitation"`
	Area          Measure `json:"area"`
}

type LeftVentricle struct {
	Enabled bool     `json:"is_enabled"`
	IVSd    Measure  `json:"ivsd"`
	EDD     Measure  `json:"edd"`
	ESD     Measure  `json:"esd"`
	PW      Measure  `json:"pw"`
	EDV     Measure  `json:"edv"`
	ESV     Measure  `json:"esv"`
	HR      null.Int `json:"hr"`
}

type OtherChambers struct {
	Enabled bool    `json:"is_enabled"`
	LA      Measure `json:"la"`
	RA      Measure `json:"ra"`
	RV      Measure `json:"rv"`
	LAV     Measure `json:"lav"`
}

type MitralValve struct {
	Enabled bool    `json:"is_enabled"`
	E       Measure `json:"e"`
	A       Measure `json:"a"`
	GradMax Measure `json:"grad_max"`
	DTE     Measure `json:"dte"`
	IVRT    Measure `json:"ivrt"`
	Reg     int     `json:"reg"`
}

type TricuspidValve struct {
	Enabled bool    `json:"is_enabled"`
	E       Measure `json:"e"`
	A       Measure `json:"a"`
	GradMax Measure `json:"grad_max"`
	TAPSE   Measure `json:"tapse"`
	Reg     int     `json:"reg"`
}

type PulmonaryArtery struct {
	Enabled  bool    `json:"is_enabled"`
	Diameter Measure `json:"diameter"`
	GradMax  Measure `json:"grad_max"`
	Velocity Measure `json:"velocity"`
	AT       Measure `json:"at"`
	ET       Measure `json:"et"`
	Reg      int     `json:"reg"`
	IVC      Measure `json:"ivc"`
}

// CreateInput is the body of POST /patients.
type CreateInput struct {
	FullName     string   `json:"full_name"`
	ExamDatetime string   `json:"exam_datetime"`
	Age          null.Int `json:"age"`
	Height       Measure  `json:"height"`
	Weight       Measure  `json:"weight"`
	BMI          Measure  `json:"bmi"`
	BSA          Measure  `json:"bsa"`
	HR           null.Int `json:"hr"`

	Aorta           Aorta           `json:"aorta"`
	AorticValve     AorticValve     `json:"aortic_valve"`
	LeftVentricle   LeftVentricle   `json:"left_ventricle"`
	OtherChambers   OtherChambers   `json:"other_chambers"`
	MitralValve     MitralValve     `json:"mitral_valve"`
	TricuspidValve  TricuspidValve  `json:"tricuspid_valve"`
	PulmonaryArtery PulmonaryArtery `json:"pulmonary_artery"`
	Segments        SegmentStates   `json:"segments"`

	// ExportType asks for the rendered document instead of JSON.
	ExportType string `json:"export_type"`
}

// NewCreateInput returns an input with every panel enabled, so panels the
// client leaves out are stored enabled and empty.
func NewCreateInput() CreateInput {
	return CreateInput{
		Aorta:           Aorta{Enabled: true},
		AorticValve:     AorticValve{Enabled: true},
		LeftVentricle:   LeftVentricle{Enabled: true},
		OtherChambers:   OtherChambers{Enabled: true},
		MitralValve:     MitralValve{Enabled: true},
		TricuspidValve:  TricuspidValve{Enabled: true},
		PulmonaryArtery: PulmonaryArtery{Enabled: true},
	}
}
