package examination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pryanik-M/LiveHeart/internal/platform/db"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO patient (id, user_id, full_name, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.UserID, p.FullName, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) CreateExamination(ctx context.Context, e *Examination) error {
	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	b := &pgx.Batch{}
	b.Queue(`INSERT INTO examination (id, patient_id, exam_datetime, age, height, weight, bmi, bsa, hr, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PatientID, e.ExamDatetime, e.Age, e.Height, e.Weight, e.BMI, e.BSA, e.HR, e.CreatedAt)

	a := e.Aorta
	b.Queue(`INSERT INTO exam_aorta (examination_id, is_enabled, diameter, valve_opening) VALUES ($1, $2, $3, $4)`,
		e.ID, a.Enabled, a.Diameter, a.ValveOpening)
	av := e.AorticValve
	b.Queue(`INSERT INTO exam_aortic_valve (examination_id, is_enabled, psk, grad_max, grad_mean, regurgitation, area)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, av.Enabled, av.PSK, av.GradMax, av.GradMean, av.Regurgitation, av.Area)
	lv := e.LeftVentricle
	b.Queue(`INSERT INTO exam_left_ventricle (examination_id, is_enabled, ivsd, edd, esd, pw, edv, esv, hr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, lv.Enabled, lv.IVSd, lv.EDD, lv.ESD, lv.PW, lv.EDV, lv.ESV, lv.HR)
	oc := e.OtherChambers
	b.Queue(`INSERT INTO exam_other_chambers (examination_id, is_enabled, la, ra, rv, lav) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, oc.Enabled, oc.LA, oc.RA, oc.RV, oc.LAV)
	mv := e.MitralValve
	b.Queue(`INSERT INTO exam_mitral_valve (examination_id, is_enabled, e, a, grad_max, dte, ivrt, reg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, mv.Enabled, mv.E, mv.A, mv.GradMax, mv.DTE, mv.IVRT, mv.Reg)
	tv := e.TricuspidValve
	b.Queue(`INSERT INTO exam_tricuspid_valve (examination_id, is_enabled, e, a, grad_max, tapse, reg)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, tv.Enabled, tv.E, tv.A, tv.GradMax, tv.TAPSE, tv.Reg)
	pa := e.PulmonaryArtery
	b.Queue(`INSERT INTO exam_pulmonary_artery (examination_id, is_enabled, diameter, grad_max, velocity, at, et, reg, ivc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, pa.Enabled, pa.Diameter, pa.GradMax, pa.Velocity, pa.AT, pa.ET, pa.Reg, pa.IVC)

	for i, st := range e.Segments {
		b.Queue(`INSERT INTO myocardial_segment (examination_id, segment_number, state) VALUES ($1, $2, $3)`,
			e.ID, i+1, int(st))
	}

	br := r.conn(ctx).SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert examination (statement %d): %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert examination: %w", err)
	}
	return nil
}

func (r *repoPG) ListPatients(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.id, p.user_id, p.full_name, p.created_at, COUNT(e.id), MAX(e.exam_datetime)
		FROM patient p
		LEFT JOIN examination e ON e.patient_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.full_name, p.created_at
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*PatientSummary
	for rows.Next() {
		var s PatientSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.FullName, &s.CreatedAt, &s.ExaminationCount, &s.LatestExamAt); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, &s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetPatient(ctx context.Context, userID, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, user_id, full_name, created_at FROM patient WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&p.ID, &p.UserID, &p.FullName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (r *repoPG) ListExaminations(ctx context.Context, patientID uuid.UUID) ([]ExaminationSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, exam_datetime, age, created_at FROM examination
		WHERE patient_id = $1 ORDER BY exam_datetime DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list examinations: %w", err)
	}
	defer rows.Close()

	items := []ExaminationSummary{}
	for rows.Next() {
		var s ExaminationSummary
		if err := rows.Scan(&s.ID, &s.ExamDatetime, &s.Age, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan examination: %w", err)
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) GetExamination(ctx context.Context, userID, id uuid.UUID) (*Examination, error) {
	e := Examination{Patient: &Patient{}}
	a, av, lv, oc := &e.Aorta, &e.AorticValve, &e.LeftVentricle, &e.OtherChambers
	mv, tv, pa := &e.MitralValve, &e.TricuspidValve, &e.PulmonaryArtery

	// Panels are inner joins: every examination is created with all seven.
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT e.id, e.patient_id, e.exam_datetime, e.age, e.height, e.weight, e.bmi, e.bsa, e.hr, e.created_at,
		       p.id, p.user_id, p.full_name, p.created_at,
		       ao.is_enabled, ao.diameter, ao.valve_opening,
		       av.is_enabled, av.psk, av.grad_max, av.grad_mean, av.regurgitation, av.area,
		       lv.is_enabled, lv.ivsd, lv.edd, lv.esd, lv.pw, lv.edv, lv.esv, lv.hr,
		       oc.is_enabled, oc.la, oc.ra, oc.rv, oc.lav,
		       mv.is_enabled, mv.e, mv.a, mv.grad_max, mv.dte, mv.ivrt, mv.reg,
		       tv.is_enabled, tv.e, tv.a, tv.grad_max, tv.tapse, tv.reg,
		       pa.is_enabled, pa.diameter, pa.grad_max, pa.velocity, pa.at, pa.et, pa.reg, pa.ivc
		FROM examination e
		JOIN patient p ON p.id = e.patient_id
		JOIN exam_aorta ao ON ao.examination_id = e.id
		JOIN exam_aortic_valve av ON av.examination_id = e.id
		JOIN exam_left_ventricle lv ON lv.examination_id = e.id
		JOIN exam_other_chambers oc ON oc.examination_id = e.id
		JOIN exam_mitral_valve mv ON mv.examination_id = e.id
		JOIN exam_tricuspid_valve tv ON tv.examination_id = e.id
		JOIN exam_pulmonary_artery pa ON pa.examination_id = e.id
		WHERE e.id = $1 AND p.user_id = $2`, id, userID,
	).Scan(
		&e.ID, &e.PatientID, &e.ExamDatetime, &e.Age, &e.Height, &e.Weight, &e.BMI, &e.BSA, &e.HR, &e.CreatedAt,
		&e.Patient.ID, &e.Patient.UserID, &e.Patient.FullName, &e.Patient.CreatedAt,
		&a.Enabled, &a.Diameter, &a.ValveOpening,
		&av.Enabled, &av.PSK, &av.GradMax, &av.GradMean, &av.Regurgitation, &av.Area,
		&lv.Enabled, &lv.IVSd, &lv.EDD, &lv.ESD, &lv.PW, &lv.EDV, &lv.ESV, &lv.HR,
		&oc.Enabled, &oc.LA, &oc.RA, &oc.RV, &oc.LAV,
		&mv.Enabled, &mv.E, &mv.A, &mv.GradMax, &mv.DTE, &mv.IVRT, &mv.Reg,
		&tv.Enabled, &tv.E, &tv.A, &tv.GradMax, &tv.TAPSE, &tv.Reg,
		&pa.Enabled, &pa.Diameter, &pa.GradMax, &pa.Velocity, &pa.AT, &pa.ET, &pa.Reg, &pa.IVC,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get examination: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT segment_number, state FROM myocardial_segment WHERE examination_id = $1`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("get segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n, state int
		if err := rows.Scan(&n, &state); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if n >= 1 && n <= SegmentCount {
			e.Segments[n-1] = SegmentState(state)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) DeletePatient(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) CountPatients(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}
