package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/shibl-edu/shibl/core"
	"github.com/shibl-edu/shibl/core/verification"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that renders
// every failure in the API envelope. Message stays machine-readable English;
// LocalizedMessage follows the request's Accept-Language.
func newAppHTTPErrorHandler(api *authAPI) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message, localized string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = fmt.Sprintf("%v", origErr.Message)
			// JWT middleware failures all mean the session is gone
			if origErr == middleware.ErrJWTMissing || message == "invalid or expired jwt" {
				code = http.StatusUnauthorized
				message = "Unauthenticated."
			}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			trans := api.requestTranslator(ctx)
			fldMsgs := make([]string, 0, len(origErr))
			locMsgs := make([]string, 0, len(origErr))
			for _, vErr := range origErr {
				fldMsgs = append(fldMsgs, fmt.Sprintf("The %s field is invalid (%s)", vErr.Field(), vErr.Tag()))
				locMsgs = append(locMsgs, vErr.Translate(trans))
			}
			message = strings.Join(fldMsgs, "; ")
			localized = strings.Join(locMsgs, "; ")
		case *core.ValidationError:
			code = http.StatusBadRequest
			if len(origErr.Fields) > 0 {
				fldMsgs := make([]string, 0, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldMsgs = append(fldMsgs, fmt.Sprintf("The %s field is invalid (%s)", fErr.Field, fErr.Error))
				}
				message = strings.Join(fldMsgs, "; ")
			} else {
				message = origErr.Error()
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			if api.logger != nil {
				api.logger.Error(message, errors.Wrap(err, message))
			}
		}

		res := response{Success: false, Message: message, LocalizedMessage: localized}
		if res.LocalizedMessage == "" {
			if verr := verification.Classify(code, message, ""); verr.Kind != verification.KindUnknown {
				res.LocalizedMessage = verr.Display(api.requestTranslator(ctx))
			}
		}

		if !ctx.Response().Committed {
			var werr error
			if ctx.Request().Method == http.MethodHead {
				werr = ctx.NoContent(code)
			} else {
				werr = ctx.JSON(code, res)
			}
			if werr != nil {
				ctx.Echo().Logger.Error(werr)
			}
		}
	}
}

// requestTranslator resolves the translator for the request's
// Accept-Language, defaulting to the configured language.
func (api *authAPI) requestTranslator(ctx echo.Context) ut.Translator {
	lang := ctx.Request().Header.Get("Accept-Language")
	if lang == "" {
		lang = api.conf.Language
	}
	if trans, ok := api.uni.GetTranslator(lang); ok {
		return trans
	}
	return api.uni.GetFallback()
}
