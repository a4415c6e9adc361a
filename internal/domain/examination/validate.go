package examination

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var regurgitationDegree = []validation.Rule{validation.Min(0), validation.Max(4).Error("must be between 0 and 4")}

func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FullName, validation.Required.Error("enter the patient's name"), validation.RuneLength(1, 255)),
		validation.Field(&in.Age, validation.Min(0), validation.Max(150)),
		validation.Field(&in.Height, validation.Max(300.0)),
		validation.Field(&in.Weight, validation.Max(500.0)),
		validation.Field(&in.BMI),
		validation.Field(&in.BSA),
		validation.Field(&in.HR, validation.Min(0), validation.Max(400)),
		validation.Field(&in.Aorta),
		validation.Field(&in.AorticValve),
		validation.Field(&in.LeftVentricle),
		validation.Field(&in.OtherChambers),
		validation.Field(&in.MitralValve),
		validation.Field(&in.TricuspidValve),
		validation.Field(&in.PulmonaryArtery),
		validation.Field(&in.Segments),
	)
}

func (p Aorta) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Diameter),
		validation.Field(&p.ValveOpening),
	)
}

func (p AorticValve) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PSK),
		validation.Field(&p.GradMax),
		validation.Field(&p.GradMean),
		validation.Field(&p.Regurgitation, regurgitationDegree...),
		validation.Field(&p.Area),
	)
}

func (p LeftVentricle) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.IVSd),
		validation.Field(&p.EDD),
		validation.Field(&p.ESD),
		validation.Field(&p.PW),
		validation.Field(&p.EDV),
		validation.Field(&p.ESV),
		validation.Field(&p.HR, validation.Min(0), validation.Max(400)),
	)
}

func (p OtherChambers) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LA),
		validation.Field(&p.RA),
		validation.Field(&p.RV),
		validation.Field(&p.LAV),
	)
}

func (p MitralValve) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.E),
		validation.Field(&p.A),
		validation.Field(&p.GradMax),
		validation.Field(&p.DTE),
		validation.Field(&p.IVRT),
		validation.Field(&p.Reg, regurgitationDegree...),
	)
}

func (p TricuspidValve) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.E),
		validation.Field(&p.A),
		validation.Field(&p.GradMax),
		validation.Field(&p.TAPSE),
		validation.Field(&p.Reg, regurgitationDegree...),
	)
}

func (p PulmonaryArtery) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Diameter),
		validation.Field(&p.GradMax),
		validation.Field(&p.Velocity),
		validation.Field(&p.AT),
		validation.Field(&p.ET),
		validation.Field(&p.Reg, regurgitationDegree...),
		validation.Field(&p.IVC),
	)
}
