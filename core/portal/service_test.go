package portal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/directory"
	"github.com/campusdesk/portal/core/portal"
	emailsvc "github.com/campusdesk/portal/services/email"
	sessionsvc "github.com/campusdesk/portal/services/session"
	inmemdir "github.com/campusdesk/portal/storage/directory/inmem"
	testutil "github.com/campusdesk/portal/tests"
)

var validate = func() *validator.Validate {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	v := validator.New()
	core.InitValidators(v, translator)
	return v
}()

type fixture struct {
	backend *sessionsvc.Backend
	dir     *inmemdir.Directory
	svc     *portal.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(conf, testutil.Logger{})
	backend := sessionsvc.NewBackend()
	dir := inmemdir.New()
	backend.OnSignUp(dir.AddProfile)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.SentMessages = nil // reset
	return fixture{
		backend: backend,
		dir:     dir,
		svc:     portal.NewService(conf, dir, mailSvc, testutil.Logger{}),
	}
}

func studentSignup() portal.StudentSignupInput {
	return portal.StudentSignupInput{
		Email:           "s@bmsit.in",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
		FirstName:       "Asha",
		LastName:        "Rao",
		USN:             "1bm21cs001",
		Semester:        "3",
		Department:      "CSE",
		YearOfAdmission: "2024",
	}
}

func Test_Service_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success redirects to the role dashboard", func(t *testing.T) {
		f := setup(t)
		usr := testutil.CreateAccount(t, f.backend, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{FirstName: "Asha"})
		assert.NoError(t, f.dir.CreateStudent(ctx, studentRecord(usr.ID)))

		mgr := testutil.StartManager(t, f.backend)
		res, err := f.svc.Login(ctx, mgr, portal.Student, portal.LoginInput{Email: "s@bmsit.in", Password: "Passw0rd!"})
		assert.NoError(t, err)
		assert.Equal(t, "/student-dashboard", res.Redirect)
		assert.Equal(t, usr.ID, res.User.ID)

		// manager mirror followed the sign-in event
		mUsr, mSess, loading := mgr.Current()
		assert.False(t, loading)
		assert.NotNil(t, mSess)
		assert.Equal(t, usr.ID, mUsr.ID)
	})

	t.Run("store error surfaced verbatim", func(t *testing.T) {
		f := setup(t)
		testutil.CreateAccount(t, f.backend, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})

		mgr := testutil.StartManager(t, f.backend)
		_, err := f.svc.Login(ctx, mgr, portal.Student, portal.LoginInput{Email: "s@bmsit.in", Password: "wrong"})
		var sErr *auth.StoreError
		if assert.True(t, errors.As(err, &sErr)) {
			assert.Equal(t, "Invalid login credentials", sErr.Message)
		}
	})

	t.Run("no role record denies access but keeps the session", func(t *testing.T) {
		f := setup(t)
		usr := testutil.CreateAccount(t, f.backend, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
		assert.NoError(t, f.dir.CreateStudent(ctx, studentRecord(usr.ID)))

		// a student signing into the teacher portal
		mgr := testutil.StartManager(t, f.backend)
		_, err := f.svc.Login(ctx, mgr, portal.Teacher, portal.LoginInput{Email: "s@bmsit.in", Password: "Passw0rd!"})
		var dErr *portal.AccessDeniedError
		if assert.True(t, errors.As(err, &dErr)) {
			assert.Equal(t, "teacher", dErr.Role)
			assert.Equal(t, "access denied: this account is not registered as a teacher", dErr.Error())
		}

		// the sign-in itself stands
		_, sess, _ := mgr.Current()
		assert.NotNil(t, sess)
	})

	t.Run("directory lookup failure reported as a role check error", func(t *testing.T) {
		f := setup(t)
		testutil.CreateAccount(t, f.backend, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})

		repoErr := errors.New("connection refused")
		conf := testutil.NewConfig()
		svc := portal.NewService(conf, &failingDirectory{Directory: f.dir, err: repoErr},
			emailsvc.NewConsoleServiceMock(conf), testutil.Logger{})

		mgr := testutil.StartManager(t, f.backend)
		_, err := svc.Login(ctx, mgr, portal.Student, portal.LoginInput{Email: "s@bmsit.in", Password: "Passw0rd!"})
		var cErr *portal.RoleCheckError
		if assert.True(t, errors.As(err, &cErr)) {
			assert.Equal(t, "student", cErr.Role)
			assert.Equal(t, "failed to verify student status", cErr.Error())
			assert.True(t, errors.Is(err, repoErr))
		}

		// the sign-in itself stands; nothing is known about membership
		_, sess, _ := mgr.Current()
		assert.NotNil(t, sess)
	})

	t.Run("dual-role account may enter either portal", func(t *testing.T) {
		f := setup(t)
		usr := testutil.CreateAccount(t, f.backend, "both@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
		assert.NoError(t, f.dir.CreateStudent(ctx, studentRecord(usr.ID)))
		assert.NoError(t, f.dir.CreateTeacher(ctx, teacherRecord(usr.ID)))

		for _, role := range portal.Roles() {
			mgr := testutil.StartManager(t, f.backend)
			res, err := f.svc.Login(ctx, mgr, role, portal.LoginInput{Email: "both@bmsit.in", Password: "Passw0rd!"})
			assert.NoError(t, err, role.Name)
			assert.Equal(t, role.Dashboard, res.Redirect)
		}
	})
}

func Test_Service_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("student signup inserts the uppercased record", func(t *testing.T) {
		f := setup(t)
		in := studentSignup()
		assert.NoError(t, in.Validate(validate))

		mgr := testutil.StartManager(t, f.backend)
		usr, err := f.svc.SignUpStudent(ctx, mgr, in)
		assert.NoError(t, err)
		assert.NotEmpty(t, usr.ID)
		assert.False(t, usr.EmailConfirmed)

		rec, err := f.dir.GetStudent(ctx, usr.ID)
		assert.NoError(t, err)
		assert.Equal(t, "1BM21CS001", rec.USN)
		assert.Equal(t, 3, rec.Semester)
		assert.Equal(t, 2024, rec.YearOfAdmission)

		// welcome email went out (mock service runs synchronously)
		assert.NotEmpty(t, emailsvc.SentMessages)
		last := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
		assert.Equal(t, "s@bmsit.in", last.To[0].Address)
		assert.Equal(t, "welcome", last.TemplateName)
	})

	t.Run("duplicate email surfaced verbatim", func(t *testing.T) {
		f := setup(t)
		testutil.CreateAccount(t, f.backend, "s@bmsit.in", "Other1!", auth.ProfileMeta{})

		in := studentSignup()
		assert.NoError(t, in.Validate(validate))

		mgr := testutil.StartManager(t, f.backend)
		_, err := f.svc.SignUpStudent(ctx, mgr, in)
		var sErr *auth.StoreError
		if assert.True(t, errors.As(err, &sErr)) {
			assert.Equal(t, "User already registered", sErr.Message)
		}
	})

	t.Run("record insert failure reported distinctly, account orphaned", func(t *testing.T) {
		f := setup(t)
		// occupy the USN so the insert fails after account creation
		other := testutil.CreateAccount(t, f.backend, "other@bmsit.in", "Other1!", auth.ProfileMeta{})
		assert.NoError(t, f.dir.CreateStudent(ctx, studentRecord(other.ID)))

		in := studentSignup()
		assert.NoError(t, in.Validate(validate))

		mgr := testutil.StartManager(t, f.backend)
		_, err := f.svc.SignUpStudent(ctx, mgr, in)
		var iErr *portal.RecordInsertError
		if assert.True(t, errors.As(err, &iErr)) {
			assert.Equal(t, "student", iErr.Role)
		}

		// the account exists with no role record
		users, _ := f.backend.ListUsers(ctx)
		var orphan *auth.User
		for i := range users {
			if users[i].Email == "s@bmsit.in" {
				orphan = &users[i]
			}
		}
		if assert.NotNil(t, orphan) {
			ok, _ := f.dir.HasRecord(ctx, "students", orphan.ID)
			assert.False(t, ok)
		}
	})

	t.Run("store success without a user reported as account not created", func(t *testing.T) {
		f := setup(t)
		in := studentSignup()
		assert.NoError(t, in.Validate(validate))

		mgr := auth.NewManager(&emptySignUpStore{Store: f.backend.NewSession()}, testutil.Logger{})
		mgr.Start(ctx)
		_, err := f.svc.SignUpStudent(ctx, mgr, in)
		assert.Equal(t, portal.ErrAccountNotCreated, err)
		assert.EqualError(t, err, "failed to create user account")

		// the workflow stopped before the record insert and the email
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("teacher signup", func(t *testing.T) {
		f := setup(t)
		in := portal.TeacherSignupInput{
			Email:           "t@bmsit.in",
			Password:        "Passw0rd!",
			ConfirmPassword: "Passw0rd!",
			FirstName:       "Ravi",
			LastName:        "Kumar",
			EmployeeID:      "EMP042",
			Department:      "CSE",
			Specialization:  "Networks",
		}
		assert.NoError(t, in.Validate(validate))

		mgr := testutil.StartManager(t, f.backend)
		usr, err := f.svc.SignUpTeacher(ctx, mgr, in)
		assert.NoError(t, err)

		rec, err := f.dir.GetTeacher(ctx, usr.ID)
		assert.NoError(t, err)
		assert.Equal(t, "EMP042", rec.EmployeeID)
		assert.Equal(t, "Networks", rec.Specialization.String)
	})
}

// failingDirectory fails every role-membership lookup, delegating the
// rest.
type failingDirectory struct {
	*inmemdir.Directory
	err error
}

func (d *failingDirectory) HasRecord(context.Context, directory.Table, string) (bool, error) {
	return false, d.err
}

// emptySignUpStore reports sign-up success with an empty payload.
type emptySignUpStore struct {
	auth.Store
}

func (s *emptySignUpStore) SignUp(context.Context, string, string, auth.ProfileMeta) (*auth.SignUpResult, error) {
	return &auth.SignUpResult{}, nil
}

func studentRecord(userID string) directory.Student {
	return directory.Student{
		ID:              userID,
		USN:             "1BM21CS001",
		Semester:        3,
		Department:      "CSE",
		YearOfAdmission: 2024,
		CreatedAt:       time.Now().UTC(),
	}
}

func teacherRecord(userID string) directory.Teacher {
	return directory.Teacher{
		ID:         userID,
		EmployeeID: "EMP001",
		Department: "CSE",
		CreatedAt:  time.Now().UTC(),
	}
}
