package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elalerce/records/internal/platform/search"
)

const uniqueViolation = "23505"

type recordRepoPG struct {
	pool *pgxpool.Pool
}

// NewPGRepo returns a Repository backed by the patient_record table.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, national_id, full_name, age, sex, photo_reference,
	admission_date, diagnosis, reviewed, created_at, updated_at`

// textColumns are searched by the free-text filter.
var textColumns = []string{"full_name", "national_id", "diagnosis"}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	id := uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patient_record (
			id, national_id, full_name, age, sex, photo_reference,
			admission_date, diagnosis, reviewed
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		id, rec.NationalID, rec.FullName, rec.Age, string(rec.Sex), rec.PhotoReference,
		rec.AdmissionDate, rec.Diagnosis, rec.Reviewed,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert patient_record: %w", err)
	}
	rec.ID = id.String()
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id string) (*Record, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordCols+` FROM patient_record WHERE id = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select patient_record: %w", err)
	}
	return rec, nil
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	uid, err := uuid.Parse(rec.ID)
	if err != nil {
		return ErrInvalidID
	}
	err = r.pool.QueryRow(ctx, `
		UPDATE patient_record SET
			national_id=$2, full_name=$3, age=$4, sex=$5, photo_reference=$6,
			admission_date=$7, diagnosis=$8, reviewed=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		uid, rec.NationalID, rec.FullName, rec.Age, string(rec.Sex), rec.PhotoReference,
		rec.AdmissionDate, rec.Diagnosis, rec.Reviewed,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrConflict
	default:
		return fmt.Errorf("update patient_record: %w", err)
	}
}

func (r *recordRepoPG) Find(ctx context.Context, f Filter) ([]*Record, error) {
	q := findQuery(f)
	rows, err := r.pool.Query(ctx, q.SQL(), q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query patient_record: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient_record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patient_record: %w", err)
	}
	return records, nil
}

// findQuery pushes the filter's predicate into SQL. Rows come back in
// insertion order so the in-process sort can break ties on it.
func findQuery(f Filter) *search.Query {
	q := search.NewQuery("patient_record", recordCols)
	if f.Sex != "" {
		q.AddEqual("sex", string(f.Sex))
	}
	if f.Age != nil {
		q.AddGTE("age", f.Age.Min)
		if f.Age.Bounded {
			q.AddLTE("age", f.Age.Max)
		}
	}
	if f.From != nil {
		q.AddGTE("admission_date", *f.From)
	}
	if f.To != nil {
		q.AddLTE("admission_date", *f.To)
	}
	if f.Text != "" {
		q.AddContainsAny(textColumns, f.Text)
	}
	q.OrderBy("seq")
	return q
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec Record
		id  uuid.UUID
		sex string
	)
	err := row.Scan(
		&id, &rec.NationalID, &rec.FullName, &rec.Age, &sex, &rec.PhotoReference,
		&rec.AdmissionDate, &rec.Diagnosis, &rec.Reviewed, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = id.String()
	rec.Sex = Sex(sex)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
