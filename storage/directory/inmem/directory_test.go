package inmemdir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusdesk/portal/core/directory"
)

func Test_Directory(t *testing.T) {
	ctx := context.Background()

	t.Run("profile flag", func(t *testing.T) {
		dir := New()

		ok, err := dir.ProfileReady(ctx, "u1")
		assert.NoError(t, err)
		assert.False(t, ok)

		dir.AddProfile("u1")
		ok, err = dir.ProfileReady(ctx, "u1")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("student records", func(t *testing.T) {
		dir := New()

		_, err := dir.GetStudent(ctx, "u1")
		assert.True(t, err == directory.ErrNotFound)

		student := directory.Student{ID: "u1", USN: "1BM21CS001", Semester: 3, Department: "CSE", YearOfAdmission: 2021}
		assert.NoError(t, dir.CreateStudent(ctx, student))

		got, err := dir.GetStudent(ctx, "u1")
		assert.NoError(t, err)
		assert.Equal(t, student, got)

		ok, err := dir.HasRecord(ctx, directory.Students, "u1")
		assert.NoError(t, err)
		assert.True(t, ok)

		// no record in the other table
		ok, err = dir.HasRecord(ctx, directory.Teachers, "u1")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate student record", func(t *testing.T) {
		dir := New()
		assert.NoError(t, dir.CreateStudent(ctx, directory.Student{ID: "u1", USN: "1BM21CS001"}))
		assert.EqualError(t, dir.CreateStudent(ctx, directory.Student{ID: "u1", USN: "1BM21CS999"}),
			"a record already exists for this user")
	})

	t.Run("duplicate USN is case insensitive", func(t *testing.T) {
		dir := New()
		assert.NoError(t, dir.CreateStudent(ctx, directory.Student{ID: "u1", USN: "1BM21CS001"}))
		assert.EqualError(t, dir.CreateStudent(ctx, directory.Student{ID: "u2", USN: "1bm21cs001"}),
			"a student with this USN already exists")
	})

	t.Run("teacher records", func(t *testing.T) {
		dir := New()

		_, err := dir.GetTeacher(ctx, "u1")
		assert.True(t, err == directory.ErrNotFound)

		teacher := directory.Teacher{ID: "u1", EmployeeID: "EMP001", Department: "CSE"}
		assert.NoError(t, dir.CreateTeacher(ctx, teacher))

		got, err := dir.GetTeacher(ctx, "u1")
		assert.NoError(t, err)
		assert.Equal(t, teacher, got)

		assert.EqualError(t, dir.CreateTeacher(ctx, teacher), "a record already exists for this user")
	})

	t.Run("unknown table", func(t *testing.T) {
		dir := New()
		_, err := dir.HasRecord(ctx, directory.Table("admins"), "u1")
		assert.Error(t, err)
	})
}
