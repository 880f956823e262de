package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/portal"
)

type portalApi struct {
	deps ServerDeps
}

func registerPortalAPI(g *echo.Group, deps ServerDeps) {
	api := portalApi{deps: deps}

	// un-authed endpoints
	rg := g.Group("/:role", roleParamMiddleware())
	rg.POST("/login", api.login)
	rg.POST("/signup", api.signup)

	g.POST("/logout", api.logout)
	g.GET("/session", api.session)
}

// roleParamMiddleware resolves the :role path param to a portal role.
func roleParamMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			role, ok := portal.RoleByName(ctx.Param("role"))
			if !ok {
				return errHttpNotFound
			}
			ctx.Set("role", role)
			return next(ctx)
		}
	}
}

func getContextRole(ctx echo.Context) portal.Role {
	return ctx.Get("role").(portal.Role)
}

// Handlers

func (api *portalApi) login(ctx echo.Context) error {
	role := getContextRole(ctx)

	var data portal.LoginInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	mgr, err := getContextManager(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context manager")
	}

	res, err := api.deps.PortalSvc.Login(ctx.Request().Context(), mgr, role, data)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Toast: Toast{
			Title:       "Login Successful",
			Description: "Welcome to the " + strings.Title(role.Name) + " Dashboard!",
		},
		User:     res.User,
		Redirect: res.Redirect,
	})
}

func (api *portalApi) signup(ctx echo.Context) error {
	role := getContextRole(ctx)

	mgr, err := getContextManager(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context manager")
	}

	var usr *auth.User
	switch role {
	case portal.Student:
		var data portal.StudentSignupInput
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to StudentSignupInput")
		}
		if err := data.Validate(api.deps.Validate); err != nil {
			return err
		}
		usr, err = api.deps.PortalSvc.SignUpStudent(ctx.Request().Context(), mgr, data)
	case portal.Teacher:
		var data portal.TeacherSignupInput
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to TeacherSignupInput")
		}
		if err := data.Validate(api.deps.Validate); err != nil {
			return err
		}
		usr, err = api.deps.PortalSvc.SignUpTeacher(ctx.Request().Context(), mgr, data)
	default:
		return errHttpNotFound
	}
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, SignupResponse{
		Toast: Toast{
			Title:       "Account created!",
			Description: "Please check your email to verify your account.",
		},
		User: usr,
	})
}

func (api *portalApi) logout(ctx echo.Context) error {
	mgr, err := getContextManager(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context manager")
	}

	if err := mgr.SignOut(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "signing out")
	}

	// drop the browser session entirely; a fresh manager is minted on the
	// next request
	if sid, ok := ctx.Get(sidCtxKey).(string); ok {
		api.deps.Registry.Remove(sid)
	}
	ctx.SetCookie(&http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return ctx.JSON(http.StatusOK, Toast{
		Title:       "Logged Out",
		Description: "You have been successfully logged out.",
	})
}

func (api *portalApi) session(ctx echo.Context) error {
	mgr, err := getContextManager(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context manager")
	}

	usr, sess, loading := mgr.Current()
	return ctx.JSON(http.StatusOK, SessionResponse{
		User:    usr,
		Session: sess,
		Loading: loading,
	})
}

type (
	Toast struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}

	LoginResponse struct {
		Toast
		User     *auth.User `json:"user"`
		Redirect string     `json:"redirect"`
	}

	SignupResponse struct {
		Toast
		User *auth.User `json:"user"`
	}

	SessionResponse struct {
		User    *auth.User    `json:"user"`
		Session *auth.Session `json:"session"`
		Loading bool          `json:"loading"`
	}
)
