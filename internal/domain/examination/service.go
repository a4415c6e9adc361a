package examination

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Pryanik-M/LiveHeart/pkg/pagination"
)

// Document is a rendered export.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Exporter renders an examination in a named format.
type Exporter interface {
	Supports(format string) bool
	Export(ctx context.Context, e *Examination, format string) (*Document, error)
}

// TxFunc runs fn in one database transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo     Repository
	tx       TxFunc
	exporter Exporter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx TxFunc, exporter Exporter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		exporter: exporter,
		logger:   logger.With().Str("component", "examination").Logger(),
		now:      time.Now,
	}
}

// Create stores a new patient with its first examination in one
// transaction.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*Examination, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if format := in.ExportType; format != "" && !s.exporter.Supports(format) {
		return nil, validation.Errors{"export_type": errors.New("must be one of docx, xlsx, pdf, csv")}
	}

	p := &Patient{UserID: userID, FullName: in.FullName}
	e := s.examinationFrom(in)

	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreatePatient(ctx, p); err != nil {
			return err
		}
		e.PatientID = p.ID
		return s.repo.CreateExamination(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	e.Patient = p

	s.logger.Info().Str("user_id", userID.String()).Str("patient_id", p.ID.String()).
		Str("examination_id", e.ID.String()).Msg("examination created")
	return e, nil
}

func (s *Service) examinationFrom(in CreateInput) *Examination {
	e := &Examination{
		ExamDatetime:    s.examTime(in.ExamDatetime),
		Age:             in.Age,
		Height:          in.Height,
		Weight:          in.Weight,
		BMI:             in.BMI,
		BSA:             in.BSA,
		HR:              in.HR,
		Aorta:           in.Aorta,
		AorticValve:     in.AorticValve,
		LeftVentricle:   in.LeftVentricle,
		OtherChambers:   in.OtherChambers,
		MitralValve:     in.MitralValve,
		TricuspidValve:  in.TricuspidValve,
		PulmonaryArtery: in.PulmonaryArtery,
		Segments:        in.Segments,
	}
	if !e.BMI.Valid {
		if v, ok := BMI(e.Height, e.Weight); ok {
			e.BMI = NewMeasure(v)
		}
	}
	if !e.BSA.Valid {
		if v, ok := BSA(e.Height, e.Weight); ok {
			e.BSA = NewMeasure(v)
		}
	}
	if !e.LeftVentricle.HR.Valid {
		e.LeftVentricle.HR = e.HR
	}
	return e
}

// examTime parses raw leniently and falls back to now.
func (s *Service) examTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if t, err := dateparse.ParseLocal(raw); err == nil {
			return t.UTC()
		}
		s.logger.Debug().Str("exam_datetime", raw).Msg("unparsable exam date, using now")
	}
	return s.now().UTC()
}

func (s *Service) ListPatients(ctx context.Context, userID uuid.UUID, p pagination.Params) ([]*PatientSummary, int, error) {
	items, total, err := s.repo.ListPatients(ctx, userID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*PatientSummary{}
	}
	return items, total, nil
}

func (s *Service) GetPatient(ctx context.Context, userID, id uuid.UUID) (*PatientDetail, error) {
	p, err := s.repo.GetPatient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	exams, err := s.repo.ListExaminations(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &PatientDetail{Patient: *p, Examinations: exams}, nil
}

// DeletePatient removes the user's patient. Unknown ids and other users'
// patients are ignored.
func (s *Service) DeletePatient(ctx context.Context, userID, id uuid.UUID) error {
	deleted, err := s.repo.DeletePatient(ctx, userID, id)
	if err != nil {
		return err
	}
	if deleted {
		s.logger.Info().Str("user_id", userID.String()).Str("patient_id", id.String()).Msg("patient deleted")
	}
	return nil
}

func (s *Service) GetExamination(ctx context.Context, userID, id uuid.UUID) (*Examination, error) {
	return s.repo.GetExamination(ctx, userID, id)
}

// Export loads the user's examination and renders it.
func (s *Service) Export(ctx context.Context, userID, id uuid.UUID, format string) (*Document, error) {
	if !s.exporter.Supports(format) {
		return nil, ErrUnknownFormat
	}
	e, err := s.repo.GetExamination(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.Render(ctx, e, format)
}

// Render renders an examination that is already loaded.
func (s *Service) Render(ctx context.Context, e *Examination, format string) (*Document, error) {
	if !s.exporter.Supports(format) {
		return nil, ErrUnknownFormat
	}
	return s.exporter.Export(ctx, e, format)
}

// CountPatients returns how many patients the user owns.
func (s *Service) CountPatients(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountPatients(ctx, userID)
}
