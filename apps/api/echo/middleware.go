package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/directory"
	"github.com/campusdesk/portal/core/portal"
)

const (
	sidCookieName = "portal_sid"
	managerCtxKey = "authManager"
	sidCtxKey     = "authSid"
)

var errMgrNotFoundInCtx = errors.New("auth manager not found in echo.Context")

// sessionMiddleware resolves the browser session cookie to its auth
// manager, creating a fresh one (and setting the cookie) on first contact
// or after an idle sweep.
func sessionMiddleware(registry *auth.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			var sid string
			var mgr *auth.Manager

			if cookie, err := ctx.Cookie(sidCookieName); err == nil {
				if m, ok := registry.Get(cookie.Value); ok {
					sid, mgr = cookie.Value, m
				}
			}
			if mgr == nil {
				sid, mgr = registry.Create(ctx.Request().Context())
				ctx.SetCookie(&http.Cookie{
					Name:     sidCookieName,
					Value:    sid,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx.Set(sidCtxKey, sid)
			ctx.Set(managerCtxKey, mgr)
			return next(ctx)
		}
	}
}

func getContextManager(ctx echo.Context) (*auth.Manager, error) {
	mgr, ok := ctx.Get(managerCtxKey).(*auth.Manager)
	if !ok {
		return nil, errMgrNotFoundInCtx
	}
	return mgr, nil
}

// roleMiddleware gates a route group on confirmed membership in the
// role's directory. The authenticated user is stashed in the context for
// the handler.
func roleMiddleware(repo directory.Repository, role portal.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			mgr, err := getContextManager(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context manager")
			}

			usr, _, loading := mgr.Current()
			if loading || usr == nil {
				return errUnauthorized
			}

			ok, err := repo.HasRecord(ctx.Request().Context(), role.Table, usr.ID)
			if err != nil {
				return &portal.RoleCheckError{Role: role.Name, Err: err}
			}
			if !ok {
				return &portal.AccessDeniedError{Role: role.Name}
			}

			ctx.Set("user", *usr)
			return next(ctx)
		}
	}
}
