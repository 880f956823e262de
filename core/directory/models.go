package directory

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

// ErrNotFound is returned when no record matches the user identifier.
var ErrNotFound = errors.New("record not found")

// Table names the two disjoint role record sets.
type Table string

const (
	Students Table = "students"
	Teachers Table = "teachers"
)

// Student links a user identifier to academic metadata. ID is the session
// store's user id (one-to-one); USN is stored uppercase.
type Student struct {
	ID              string    `json:"id" db:"id"`
	USN             string    `json:"usn" db:"usn"`
	Semester        int       `json:"semester" db:"semester"`
	Department      string    `json:"department" db:"department"`
	YearOfAdmission int       `json:"year_of_admission" db:"year_of_admission"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"` // UTC
}

// Teacher links a user identifier to employment metadata.
type Teacher struct {
	ID             string      `json:"id" db:"id"`
	EmployeeID     string      `json:"employee_id" db:"employee_id"`
	Department     string      `json:"department" db:"department"`
	Specialization null.String `json:"specialization" db:"specialization"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
}

type Repository interface {
	// ProfileReady reports whether the base profile row (created by the
	// store-side trigger after sign-up) exists for the user.
	ProfileReady(ctx context.Context, userID string) (bool, error)
	// HasRecord reports whether a role record exists in the given table for
	// the user. Membership is determined solely by row existence.
	HasRecord(ctx context.Context, table Table, userID string) (bool, error)
	GetStudent(ctx context.Context, userID string) (Student, error)
	CreateStudent(ctx context.Context, student Student) error
	GetTeacher(ctx context.Context, userID string) (Teacher, error)
	CreateTeacher(ctx context.Context, teacher Teacher) error
}
