package portal

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/directory"
)

// Service runs the role-gated login and signup workflows. Inputs are
// expected to be validated by the caller; every error returned here is
// terminal to the current submission and the caller may simply retry.
type Service struct {
	repo   directory.Repository
	mail   core.EmailService
	logger core.Logger
	conf   *core.Config
}

func NewService(conf *core.Config, repo directory.Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		mail:   mailSvc,
		logger: logger,
		conf:   conf,
	}
}

type LoginResult struct {
	User     *auth.User `json:"user"`
	Redirect string     `json:"redirect"`
}

// Login authenticates against the session store, waits for the fresh
// session to become readable, then confirms role membership in the
// directory. A store error is returned verbatim. A missing role record
// yields AccessDeniedError without rolling the sign-in back.
func (svc *Service) Login(ctx context.Context, mgr *auth.Manager, role Role, in LoginInput) (*LoginResult, error) {
	if err := mgr.SignIn(ctx, in.Email, in.Password); err != nil {
		return nil, err
	}

	usr, err := svc.awaitUser(ctx, mgr)
	if err != nil {
		return nil, &RoleCheckError{Role: role.Name, Err: err}
	}

	ok, err := svc.repo.HasRecord(ctx, role.Table, usr.ID)
	if err != nil {
		return nil, &RoleCheckError{Role: role.Name, Err: err}
	}
	if !ok {
		return nil, &AccessDeniedError{Role: role.Name}
	}

	return &LoginResult{User: usr, Redirect: role.Dashboard}, nil
}

// awaitUser polls the store until the just-issued session is readable.
// The store is eventually consistent right after sign-in; polling with a
// deadline replaces a fixed post-signin sleep.
func (svc *Service) awaitUser(ctx context.Context, mgr *auth.Manager) (*auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, svc.conf.Portal.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(svc.conf.Portal.SettleInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		usr, err := mgr.Store().CurrentUser(ctx)
		if err == nil && usr != nil {
			return usr, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, lastErr
		case <-ticker.C:
		}
	}
}

func (svc *Service) SignUpStudent(ctx context.Context, mgr *auth.Manager, in StudentSignupInput) (*auth.User, error) {
	meta := auth.ProfileMeta{FirstName: in.FirstName, LastName: in.LastName}
	return svc.signUp(ctx, mgr, Student, in.Email, in.Password, meta, func(ctx context.Context, userID string) error {
		return svc.repo.CreateStudent(ctx, in.Record(userID))
	})
}

func (svc *Service) SignUpTeacher(ctx context.Context, mgr *auth.Manager, in TeacherSignupInput) (*auth.User, error) {
	meta := auth.ProfileMeta{FirstName: in.FirstName, LastName: in.LastName}
	return svc.signUp(ctx, mgr, Teacher, in.Email, in.Password, meta, func(ctx context.Context, userID string) error {
		return svc.repo.CreateTeacher(ctx, in.Record(userID))
	})
}

// signUp is the shared role signup workflow: create the account, wait for
// the store-side profile trigger, insert the role record, notify.
func (svc *Service) signUp(
	ctx context.Context,
	mgr *auth.Manager,
	role Role,
	email, password string,
	meta auth.ProfileMeta,
	insert func(ctx context.Context, userID string) error,
) (*auth.User, error) {
	res, err := mgr.SignUp(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	if res == nil || res.User == nil {
		return nil, ErrAccountNotCreated
	}
	usr := res.User

	svc.awaitProfile(ctx, usr.ID)

	if err = insert(ctx, usr.ID); err != nil {
		// The account now exists without a role record. It is not rolled
		// back here; apps/admin surfaces orphans for reconciliation.
		svc.logger.Warn(fmt.Sprintf("orphaned account %s: %s record insert failed: %v", usr.ID, role.Name, err), err)
		return nil, &RecordInsertError{Role: role.Name, Err: err}
	}

	svc.sendWelcomeEmail(usr, role)
	return usr, nil
}

// awaitProfile polls for the base profile row the store-side trigger
// creates after sign-up. On timeout it returns anyway: the role record
// insert is the authoritative step, the wait only narrows the race.
func (svc *Service) awaitProfile(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, svc.conf.Portal.ProfileTimeout)
	defer cancel()

	ticker := time.NewTicker(svc.conf.Portal.ProfileInterval)
	defer ticker.Stop()

	for {
		ready, err := svc.repo.ProfileReady(ctx, userID)
		if err != nil {
			svc.logger.Debug(fmt.Sprintf("checking profile row for %s: %v", userID, err))
		} else if ready {
			return
		}

		select {
		case <-ctx.Done():
			svc.logger.Warn(fmt.Sprintf("profile row for %s not visible after %s; proceeding", userID, svc.conf.Portal.ProfileTimeout))
			return
		case <-ticker.C:
		}
	}
}

func (svc *Service) sendWelcomeEmail(usr *auth.User, role Role) {
	svc.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FirstName + " " + usr.LastName, Address: usr.Email}},
		Subject:      "Welcome to the " + strings.Title(role.Name) + " Portal",
		TemplateName: "welcome",
		TemplateData: struct {
			FirstName string
			Role      string
		}{usr.FirstName, role.Name},
	})
}
