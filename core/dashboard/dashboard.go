package dashboard

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/directory"
)

func fieldError(field, text string) error {
	return core.NewValidationError(errors.New(text), core.FieldError{Field: field, Error: text})
}

// Presentation-only dashboard data. Assignments live in an in-memory
// collection seeded with demo content; they are not part of the role
// directory and carry no persistence guarantees.

var (
	Branches  = []string{"AIML", "CSBS", "CSE", "CIVIL", "ECE", "ETE", "EEE", "ISE", "MECH"}
	Sections  = []string{"A", "B", "C", "D"}
	Semesters = []string{"1", "2", "3", "4", "5", "6", "7", "8"}
)

type Assignment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	Branch      string    `json:"branch"`
	Section     string    `json:"section"`
	Semester    int       `json:"semester"`
	DueDate     time.Time `json:"due_date"`
	Submitted   bool      `json:"submitted"`
}

type StudentHome struct {
	Student     directory.Student `json:"student"`
	Assignments []Assignment      `json:"assignments"`
	Pending     int               `json:"pending"`
	Submitted   int               `json:"submitted"`
}

type TeacherHome struct {
	Teacher     directory.Teacher `json:"teacher"`
	Assignments []Assignment      `json:"assignments"`
	Branches    []string          `json:"branches"`
	Sections    []string          `json:"sections"`
	Semesters   []string          `json:"semesters"`
}

type Service struct {
	mu          sync.RWMutex
	assignments []Assignment
}

func NewService() *Service {
	now := time.Now().UTC()
	return &Service{
		assignments: []Assignment{
			{
				ID:          "1",
				Title:       "Data Structures Assignment",
				Description: "Implement Binary Search Tree with insertion, deletion, and traversal operations",
				Subject:     "Data Structures",
				Branch:      "CSE",
				Section:     "A",
				Semester:    3,
				DueDate:     now.Add(7 * 24 * time.Hour),
			},
			{
				ID:          "2",
				Title:       "Database Design Project",
				Description: "Design a complete database schema for a library management system",
				Subject:     "DBMS",
				Branch:      "CSE",
				Section:     "A",
				Semester:    3,
				DueDate:     now.Add(12 * 24 * time.Hour),
			},
		},
	}
}

func (svc *Service) list() []Assignment {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	assignments := make([]Assignment, len(svc.assignments))
	copy(assignments, svc.assignments)
	return assignments
}

func (svc *Service) StudentHome(student directory.Student) StudentHome {
	assignments := svc.list()
	home := StudentHome{
		Student:     student,
		Assignments: assignments,
	}
	for _, a := range assignments {
		if a.Submitted {
			home.Submitted++
		} else {
			home.Pending++
		}
	}
	return home
}

type NewAssignmentInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Branch      string `json:"branch" validate:"required"`
	Section     string `json:"section" validate:"required"`
	Semester    string `json:"semester" validate:"required"`
	DueDate     string `json:"due_date" validate:"required"`
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// CreateAssignment validates and appends a new assignment to the demo
// collection. The due date is expected in ISO date form (2006-01-02).
func (svc *Service) CreateAssignment(validate *validator.Validate, in NewAssignmentInput) (Assignment, error) {
	if err := validate.Struct(in); err != nil {
		return Assignment{}, err
	}
	if !contains(Branches, in.Branch) {
		return Assignment{}, fieldError("branch", "unknown branch")
	}
	if !contains(Sections, in.Section) {
		return Assignment{}, fieldError("section", "unknown section")
	}
	sem, err := strconv.Atoi(in.Semester)
	if err != nil || sem < 1 || sem > 8 {
		return Assignment{}, fieldError("semester", "semester must be an integer between 1 and 8")
	}
	due, err := time.Parse("2006-01-02", in.DueDate)
	if err != nil {
		return Assignment{}, fieldError("due_date", "invalid date, expected YYYY-MM-DD")
	}

	a := Assignment{
		ID:          uuid.New().String(),
		Title:       core.CleanString(in.Title),
		Description: core.CleanString(in.Description),
		Subject:     core.CleanString(in.Subject),
		Branch:      in.Branch,
		Section:     in.Section,
		Semester:    sem,
		DueDate:     due,
	}
	svc.mu.Lock()
	svc.assignments = append(svc.assignments, a)
	svc.mu.Unlock()
	return a, nil
}

func (svc *Service) TeacherHome(teacher directory.Teacher) TeacherHome {
	return TeacherHome{
		Teacher:     teacher,
		Assignments: svc.list(),
		Branches:    Branches,
		Sections:    Sections,
		Semesters:   Semesters,
	}
}
