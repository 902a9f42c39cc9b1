// Package echoapi serves a development stand-in for the platform auth API so
// the verification screens can be exercised without the production backend.
// Codes land in the configured email service (the console in dev).
package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/shibl-edu/shibl/core"
	"github.com/shibl-edu/shibl/core/verification"
)

type (
	Options struct {
		Addr           string
		Conf           *core.Config
		Store          *Store
		EmailSvc       core.EmailService
		Logger         core.Logger
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}

	authAPI struct {
		conf      *core.Config
		store     *Store
		mail      core.EmailService
		logger    core.Logger
		validate  *validator.Validate
		uni       *ut.UniversalTranslator
		jwtConfig middleware.JWTConfig
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	validate := validator.New()
	uni := core.NewUniversalTranslator()
	core.InitValidators(validate, uni)
	registerCustomValidators(validate, uni)
	verification.RegisterMessages(uni)

	api := &authAPI{
		conf:     conf,
		store:    s.opts.Store,
		mail:     s.opts.EmailSvc,
		logger:   s.opts.Logger,
		validate: validate,
		uni:      uni,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    conf.SecretKey,
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    "accountToken",
			Claims:        new(Claims),
		},
	}

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(api)

	s.app.GET("/", home(conf))

	v1 := s.app.Group("/api/v1")
	registerAuthAPI(v1, api)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Addr))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" dev API!")
	}
}

func (api *authAPI) jwtMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(api.jwtConfig)
}

func (api *authAPI) bind(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		return err
	}
	return api.validate.Struct(dst)
}

type (
	accountPayload struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone,omitempty"`
	}

	responseData struct {
		Student *accountPayload `json:"student,omitempty"`
		Parent  *accountPayload `json:"parent,omitempty"`
		Teacher *accountPayload `json:"teacher,omitempty"`
		Token   string          `json:"token,omitempty"`
	}

	response struct {
		Success          bool          `json:"success"`
		Message          string        `json:"message,omitempty"`
		LocalizedMessage string        `json:"localized_message,omitempty"`
		Data             *responseData `json:"data,omitempty"`
	}
)

func (api *authAPI) respond(ctx echo.Context, status int, message, flow string, acct *Account, token string) error {
	res := response{Success: true, Message: message}
	if acct != nil || token != "" {
		data := &responseData{Token: token}
		if acct != nil {
			p := &accountPayload{ID: acct.ID, Name: acct.Name, Email: acct.Email, Phone: acct.Phone}
			switch flow {
			case "parents":
				data.Parent = p
			case "teachers":
				data.Teacher = p
			default:
				data.Student = p
			}
		}
		res.Data = data
	}
	return ctx.JSON(status, res)
}
