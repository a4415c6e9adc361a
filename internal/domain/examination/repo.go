package examination

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients and examinations. Every read and delete is
// scoped to the owning user.
type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	// CreateExamination stores the examination, its seven panels and the 17
	// segments. Callers wrap it in a transaction.
	CreateExamination(ctx context.Context, e *Examination) error
	ListPatients(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error)
	GetPatient(ctx context.Context, userID, id uuid.UUID) (*Patient, error)
	ListExaminations(ctx context.Context, patientID uuid.UUID) ([]ExaminationSummary, error)
	GetExamination(ctx context.Context, userID, id uuid.UUID) (*Examination, error)
	// DeletePatient reports whether a patient of userID was removed.
	DeletePatient(ctx context.Context, userID, id uuid.UUID) (bool, error)
	CountPatients(ctx context.Context, userID uuid.UUID) (int, error)
}
