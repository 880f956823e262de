package portal

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/directory"
)

const (
	minSemester      = 1
	maxSemester      = 8
	minAdmissionYear = 2000
)

var (
	errPasswordMismatch = errors.New("passwords do not match")

	passwordMismatchText = "passwords do not match"
	semesterRangeText    = "semester must be an integer between 1 and 8"
)

func admissionYearRangeText(maxYear int) string {
	return "year of admission must be an integer between 2000 and " + strconv.Itoa(maxYear)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate checks both credentials are present; nothing leaves the process
// on failure.
func (in *LoginInput) Validate(validate *validator.Validate) error {
	in.Email = core.CleanString(in.Email, true /* lower */)
	return validate.Struct(in)
}

// StudentSignupInput carries the student signup form. Semester and
// YearOfAdmission arrive as form strings and are parsed during validation.
type StudentSignupInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	USN             string `json:"usn" validate:"required,alphanum_"`
	Semester        string `json:"semester" validate:"required"`
	Department      string `json:"department" validate:"required"`
	YearOfAdmission string `json:"year_of_admission" validate:"required"`

	semester        int
	yearOfAdmission int
}

// Validate applies the signup rules in order: password confirmation,
// required fields, then the student integer ranges. The first failing
// group is reported.
func (in *StudentSignupInput) Validate(validate *validator.Validate) error {
	if in.Password != in.ConfirmPassword {
		return core.NewValidationError(
			errPasswordMismatch,
			core.FieldError{Field: "confirm_password", Error: passwordMismatchText},
		)
	}

	in.clean()
	if err := validate.Struct(in); err != nil {
		return err
	}

	var err error
	if in.semester, err = strconv.Atoi(in.Semester); err != nil || in.semester < minSemester || in.semester > maxSemester {
		return core.NewValidationError(
			errors.New(semesterRangeText),
			core.FieldError{Field: "semester", Error: semesterRangeText},
		)
	}
	maxYear := time.Now().Year() + 1
	if in.yearOfAdmission, err = strconv.Atoi(in.YearOfAdmission); err != nil || in.yearOfAdmission < minAdmissionYear || in.yearOfAdmission > maxYear {
		text := admissionYearRangeText(maxYear)
		return core.NewValidationError(
			errors.New(text),
			core.FieldError{Field: "year_of_admission", Error: text},
		)
	}
	return nil
}

func (in *StudentSignupInput) clean() {
	in.Email = core.CleanString(in.Email, true /* lower */)
	in.FirstName = core.CleanString(in.FirstName)
	in.LastName = core.CleanString(in.LastName)
	in.USN = strings.ToUpper(core.CleanString(in.USN))
	in.Semester = core.CleanString(in.Semester)
	in.Department = core.CleanString(in.Department)
	in.YearOfAdmission = core.CleanString(in.YearOfAdmission)
}

// Record builds the role record to persist; USN is already uppercased by
// validation.
func (in *StudentSignupInput) Record(userID string) directory.Student {
	return directory.Student{
		ID:              userID,
		USN:             in.USN,
		Semester:        in.semester,
		Department:      in.Department,
		YearOfAdmission: in.yearOfAdmission,
		CreatedAt:       time.Now().UTC(),
	}
}

type TeacherSignupInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	EmployeeID      string `json:"employee_id" validate:"required,alphanum_"`
	Department      string `json:"department" validate:"required"`
	Specialization  string `json:"specialization"` // optional
}

// Validate applies the signup rules in order: password confirmation first,
// then the teacher required set.
func (in *TeacherSignupInput) Validate(validate *validator.Validate) error {
	if in.Password != in.ConfirmPassword {
		return core.NewValidationError(
			errPasswordMismatch,
			core.FieldError{Field: "confirm_password", Error: passwordMismatchText},
		)
	}

	in.clean()
	return validate.Struct(in)
}

func (in *TeacherSignupInput) clean() {
	in.Email = core.CleanString(in.Email, true /* lower */)
	in.FirstName = core.CleanString(in.FirstName)
	in.LastName = core.CleanString(in.LastName)
	in.EmployeeID = core.CleanString(in.EmployeeID)
	in.Department = core.CleanString(in.Department)
	in.Specialization = core.CleanString(in.Specialization)
}

func (in *TeacherSignupInput) Record(userID string) directory.Teacher {
	return directory.Teacher{
		ID:             userID,
		EmployeeID:     in.EmployeeID,
		Department:     in.Department,
		Specialization: null.NewString(in.Specialization, in.Specialization != ""),
		CreatedAt:      time.Now().UTC(),
	}
}
