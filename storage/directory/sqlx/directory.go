package sqlxdir

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/directory"
)

const pqUniqueViolation = "23505"

// Directory queries the role tables directly over a database connection,
// for deployments with direct access to the hosted Postgres.
type Directory struct {
	db *sqlx.DB
}

var _ directory.Repository = (*Directory)(nil)

func New(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

// trapUniqueErr maps a unique-constraint violation to a readable error.
func trapUniqueErr(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
		return errors.New("a record already exists for this user or USN")
	}
	return errors.Wrap(err, msg)
}

func (d *Directory) ProfileReady(ctx context.Context, userID string) (bool, error) {
	var ready bool
	err := d.db.GetContext(ctx, &ready, "SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)", userID)
	return ready, errors.Wrap(err, "checking profile row")
}

func (d *Directory) HasRecord(ctx context.Context, table directory.Table, userID string) (bool, error) {
	var query string
	switch table {
	case directory.Students:
		query = "SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)"
	case directory.Teachers:
		query = "SELECT EXISTS (SELECT 1 FROM teachers WHERE id = $1)"
	default:
		return false, errors.Errorf("unknown table %q", table)
	}

	var exists bool
	err := d.db.GetContext(ctx, &exists, query, userID)
	return exists, errors.Wrap(err, "checking role record")
}

func (d *Directory) GetStudent(ctx context.Context, userID string) (directory.Student, error) {
	var student directory.Student
	err := d.db.GetContext(
		ctx, &student,
		"SELECT id, usn, semester, department, year_of_admission, created_at FROM students WHERE id = $1",
		userID,
	)
	if err == sql.ErrNoRows {
		return directory.Student{}, directory.ErrNotFound
	}
	return student, errors.Wrap(err, "getting student record")
}

func (d *Directory) CreateStudent(ctx context.Context, student directory.Student) error {
	_, err := d.db.NamedExecContext(
		ctx,
		`INSERT INTO students (id, usn, semester, department, year_of_admission, created_at)
		 VALUES (:id, :usn, :semester, :department, :year_of_admission, :created_at)`,
		student,
	)
	if err != nil {
		return trapUniqueErr(err, "inserting student record")
	}
	return nil
}

func (d *Directory) GetTeacher(ctx context.Context, userID string) (directory.Teacher, error) {
	var teacher directory.Teacher
	err := d.db.GetContext(
		ctx, &teacher,
		"SELECT id, employee_id, department, specialization, created_at FROM teachers WHERE id = $1",
		userID,
	)
	if err == sql.ErrNoRows {
		return directory.Teacher{}, directory.ErrNotFound
	}
	return teacher, errors.Wrap(err, "getting teacher record")
}

func (d *Directory) CreateTeacher(ctx context.Context, teacher directory.Teacher) error {
	_, err := d.db.NamedExecContext(
		ctx,
		`INSERT INTO teachers (id, employee_id, department, specialization, created_at)
		 VALUES (:id, :employee_id, :department, :specialization, :created_at)`,
		teacher,
	)
	if err != nil {
		return trapUniqueErr(err, "inserting teacher record")
	}
	return nil
}
