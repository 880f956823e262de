package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/portal"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *auth.StoreError:
			// the store's message goes to the end user verbatim
			code = origErr.Code
			if code == 0 || code < http.StatusBadRequest {
				code = http.StatusBadRequest
			}
			message = origErr.Message
		case *portal.AccessDeniedError:
			code = http.StatusForbidden
			message = origErr.Error()
		case *portal.RoleCheckError:
			code = http.StatusInternalServerError
			message = origErr.Error()
			logger.Error(origErr.Error(), errors.Wrap(err, "role check"))
		case *portal.RecordInsertError:
			code = http.StatusInternalServerError
			message = origErr.Error()
			logger.Error(origErr.Error(), errors.Wrap(err, "record insert"))
		default:
			if origErr == portal.ErrAccountNotCreated {
				code = http.StatusInternalServerError
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			logArgs := []interface{}{errors.Wrap(err, msg)}
			if mgr, mErr := getContextManager(ctx); mErr == nil {
				if usr, _, _ := mgr.Current(); usr != nil {
					logArgs = append(logArgs, *usr)
				}
			}
			logger.Error(msg, logArgs...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		// every failure goes out as a destructive toast
		res := ErrorResponse{Toast: Toast{Title: failureTitle(ctx.Request().URL.Path, code)}}
		switch m := message.(type) {
		case string:
			res.Description = m
		case map[string]string:
			res.Errors = m
			res.Description = "Please fill in all required fields."
			if len(m) == 1 {
				for _, text := range m {
					res.Description = text
				}
			}
		default:
			res.Description = fmt.Sprint(m)
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, res)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// ErrorResponse is the failure payload: a toast plus, for validation
// failures, the per-field messages.
type ErrorResponse struct {
	Toast
	Errors map[string]string `json:"errors,omitempty"`
}

// failureTitle picks the toast title for the request that failed.
func failureTitle(path string, code int) string {
	switch {
	case strings.HasSuffix(path, "/login"):
		return "Login Failed"
	case strings.HasSuffix(path, "/signup"):
		return "Signup Failed"
	case code == http.StatusBadRequest:
		return "Missing Information"
	default:
		return "Request Failed"
	}
}
