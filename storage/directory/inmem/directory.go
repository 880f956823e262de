package inmemdir

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/directory"
)

var (
	errDuplicateRecord = errors.New("a record already exists for this user")
	errDuplicateUSN    = errors.New("a student with this USN already exists")
)

// Directory is the in-memory role directory used in DEV|TEST.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]bool
	students map[string]directory.Student
	teachers map[string]directory.Teacher
}

var _ directory.Repository = (*Directory)(nil)

func New() *Directory {
	return &Directory{
		profiles: make(map[string]bool),
		students: make(map[string]directory.Student),
		teachers: make(map[string]directory.Teacher),
	}
}

// AddProfile marks the base profile row as created; wired to the session
// backend's sign-up hook in DEV, called directly in tests.
func (d *Directory) AddProfile(userID string) {
	d.mu.Lock()
	d.profiles[userID] = true
	d.mu.Unlock()
}

func (d *Directory) ProfileReady(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profiles[userID], nil
}

func (d *Directory) HasRecord(ctx context.Context, table directory.Table, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch table {
	case directory.Students:
		_, ok := d.students[userID]
		return ok, nil
	case directory.Teachers:
		_, ok := d.teachers[userID]
		return ok, nil
	}
	return false, errors.Errorf("unknown table %q", table)
}

func (d *Directory) GetStudent(ctx context.Context, userID string) (directory.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	student, ok := d.students[userID]
	if !ok {
		return directory.Student{}, directory.ErrNotFound
	}
	return student, nil
}

func (d *Directory) CreateStudent(ctx context.Context, student directory.Student) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.students[student.ID]; exists {
		return errDuplicateRecord
	}
	for _, existing := range d.students {
		if strings.EqualFold(existing.USN, student.USN) {
			return errDuplicateUSN
		}
	}
	d.students[student.ID] = student
	return nil
}

func (d *Directory) GetTeacher(ctx context.Context, userID string) (directory.Teacher, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	teacher, ok := d.teachers[userID]
	if !ok {
		return directory.Teacher{}, directory.ErrNotFound
	}
	return teacher, nil
}

func (d *Directory) CreateTeacher(ctx context.Context, teacher directory.Teacher) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.teachers[teacher.ID]; exists {
		return errDuplicateRecord
	}
	d.teachers[teacher.ID] = teacher
	return nil
}
