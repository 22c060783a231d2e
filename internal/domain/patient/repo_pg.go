package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE Postgres reports for a UNIQUE constraint.
const uniqueViolation = "23505"

type patientRepoPG struct {
	pool querier
}

func NewPatientRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, email, birthdate, created_at`

func (r *patientRepoPG) Save(ctx context.Context, p *Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patient (id, name, email, birthdate, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+patientCols,
		p.ID(), p.Name(), p.Email(), p.Birthdate(), p.CreatedAt(),
	)
	saved, err := scanPatient(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("patient save: %w", err)
	}
	return saved, nil
}

func (r *patientRepoPG) FindByID(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patient get by email: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) FindAll(ctx context.Context) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	return patients, nil
}

// scanPatient rebuilds a Patient from a row. Stored rows are re-validated
// through NewPatient so nothing invalid leaves the repository.
func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		id, name, email      string
		birthdate, createdAt time.Time
	)
	if err := row.Scan(&id, &name, &email, &birthdate, &createdAt); err != nil {
		return nil, err
	}
	return NewPatient(id, name, email, birthdate, createdAt)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
