package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/dashboard"
	"github.com/campusdesk/portal/core/directory"
	"github.com/campusdesk/portal/core/portal"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type dashboardApi struct {
	deps ServerDeps
}

func registerDashboardAPI(g *echo.Group, deps ServerDeps) {
	api := dashboardApi{deps: deps}

	sg := g.Group("/student/dashboard", roleMiddleware(deps.Repo, portal.Student))
	sg.GET("", api.studentHome)

	tg := g.Group("/teacher/dashboard", roleMiddleware(deps.Repo, portal.Teacher))
	tg.GET("", api.teacherHome)
	tg.POST("/assignments", api.createAssignment)
}

func getContextUser(ctx echo.Context) (auth.User, error) {
	usr, ok := ctx.Get("user").(auth.User)
	if !ok {
		return auth.User{}, errUsrNotFoundInCtx
	}
	return usr, nil
}

// Handlers

func (api *dashboardApi) studentHome(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	student, err := api.deps.Repo.GetStudent(ctx.Request().Context(), usr.ID)
	if err != nil {
		if errors.Cause(err) == directory.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding student record")
	}

	return ctx.JSON(http.StatusOK, api.deps.DashboardSvc.StudentHome(student))
}

func (api *dashboardApi) teacherHome(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	teacher, err := api.deps.Repo.GetTeacher(ctx.Request().Context(), usr.ID)
	if err != nil {
		if errors.Cause(err) == directory.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding teacher record")
	}

	return ctx.JSON(http.StatusOK, api.deps.DashboardSvc.TeacherHome(teacher))
}

func (api *dashboardApi) createAssignment(ctx echo.Context) error {
	var data dashboard.NewAssignmentInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignmentInput")
	}

	a, err := api.deps.DashboardSvc.CreateAssignment(api.deps.Validate, data)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, AssignmentResponse{
		Toast: Toast{
			Title:       "Assignment Created",
			Description: "Your assignment has been successfully created.",
		},
		Assignment: a,
	})
}

type AssignmentResponse struct {
	Toast
	Assignment dashboard.Assignment `json:"assignment"`
}
